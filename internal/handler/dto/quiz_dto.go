package dto

import (
	"time"

	"github.com/yourusername/livequiz-api/internal/domain/entity"
)

// QuestionResponse представляет вопрос в формате для ответа клиенту.
// Правильный вариант не включается.
type QuestionResponse struct {
	ID          uint      `json:"id"`
	QuizID      uint      `json:"quiz_id"`
	Text        string    `json:"text"`
	Options     []string  `json:"options"`
	Explanation string    `json:"explanation,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// QuizResponse представляет викторину в формате для ответа клиенту
type QuizResponse struct {
	ID            uint                   `json:"id"`
	Title         string                 `json:"title"`
	Settings      entity.SessionSettings `json:"settings"`
	QuestionCount int                    `json:"question_count"`
	Questions     []QuestionResponse     `json:"questions,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

// NewQuestionResponse создает DTO для вопроса
func NewQuestionResponse(q *entity.Question) QuestionResponse {
	return QuestionResponse{
		ID:          q.ID,
		QuizID:      q.QuizID,
		Text:        q.Text,
		Options:     q.Options,
		Explanation: q.Explanation,
		CreatedAt:   q.CreatedAt,
		UpdatedAt:   q.UpdatedAt,
	}
}

// NewQuizResponse создает DTO для викторины
func NewQuizResponse(quiz *entity.Quiz, includeQuestions bool) *QuizResponse {
	resp := &QuizResponse{
		ID:            quiz.ID,
		Title:         quiz.Title,
		Settings:      quiz.Settings,
		QuestionCount: len(quiz.Questions),
		CreatedAt:     quiz.CreatedAt,
		UpdatedAt:     quiz.UpdatedAt,
	}
	if includeQuestions {
		resp.Questions = make([]QuestionResponse, 0, len(quiz.Questions))
		for i := range quiz.Questions {
			resp.Questions = append(resp.Questions, NewQuestionResponse(&quiz.Questions[i]))
		}
	}
	return resp
}
