package service

import (
	"fmt"

	"github.com/yourusername/livequiz-api/internal/domain/entity"
	"github.com/yourusername/livequiz-api/internal/domain/repository"
	apperrors "github.com/yourusername/livequiz-api/internal/pkg/errors"
)

// QuizService отвечает за хранение определений викторин.
// Содержательная редактура квизов - задача внешнего администрирования;
// здесь выполняется только структурная проверка перед сохранением.
type QuizService struct {
	quizRepo repository.QuizRepository
}

// NewQuizService создает новый сервис викторин
func NewQuizService(quizRepo repository.QuizRepository) *QuizService {
	return &QuizService{quizRepo: quizRepo}
}

// CreateQuiz сохраняет определение викторины
func (s *QuizService) CreateQuiz(quiz *entity.Quiz) error {
	if err := validateQuizStructure(quiz); err != nil {
		return err
	}
	quiz.Settings.Normalize()
	return s.quizRepo.Create(quiz)
}

// GetQuizByID возвращает викторину по ID
func (s *QuizService) GetQuizByID(id uint) (*entity.Quiz, error) {
	return s.quizRepo.GetByID(id)
}

// GetQuizWithQuestions возвращает викторину вместе с вопросами
func (s *QuizService) GetQuizWithQuestions(id uint) (*entity.Quiz, error) {
	return s.quizRepo.GetWithQuestions(id)
}

// ListQuizzes возвращает викторины с пагинацией
func (s *QuizService) ListQuizzes(limit, offset int) ([]entity.Quiz, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.quizRepo.List(limit, offset)
}

// DeleteQuiz удаляет викторину
func (s *QuizService) DeleteQuiz(id uint) error {
	return s.quizRepo.Delete(id)
}

// validateQuizStructure проверяет структурную корректность определения:
// есть хотя бы один вопрос, у каждого не меньше двух вариантов
// и индекс правильного варианта валиден
func validateQuizStructure(quiz *entity.Quiz) error {
	if quiz == nil || quiz.Title == "" {
		return fmt.Errorf("%w: quiz title is required", apperrors.ErrValidation)
	}
	if len(quiz.Questions) == 0 {
		return fmt.Errorf("%w: quiz must have at least one question", apperrors.ErrValidation)
	}
	for i, q := range quiz.Questions {
		if q.OptionsCount() < 2 {
			return fmt.Errorf("%w: question %d must have at least 2 options", apperrors.ErrValidation, i+1)
		}
		if !q.IsValidOption(q.CorrectOption) {
			return fmt.Errorf("%w: question %d has invalid correct option %d", apperrors.ErrValidation, i+1, q.CorrectOption)
		}
	}
	return nil
}
