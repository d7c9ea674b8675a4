package repository

import (
	"github.com/yourusername/livequiz-api/internal/domain/entity"
)

// QuizRepository определяет методы для работы с определениями викторин
type QuizRepository interface {
	Create(quiz *entity.Quiz) error
	GetByID(id uint) (*entity.Quiz, error)
	// GetWithQuestions возвращает викторину вместе с упорядоченным списком вопросов
	GetWithQuestions(id uint) (*entity.Quiz, error)
	List(limit, offset int) ([]entity.Quiz, error)
	Delete(id uint) error
}
