package dto

import (
	"github.com/yourusername/livequiz-api/internal/domain/entity"
	"github.com/yourusername/livequiz-api/internal/session"
)

// SessionResponse представляет живую сессию в формате для ответа клиенту
type SessionResponse struct {
	Code                 string                 `json:"code"`
	State                string                 `json:"state"`
	QuizID               uint                   `json:"quiz_id"`
	QuizTitle            string                 `json:"quiz_title"`
	CurrentQuestionIndex int                    `json:"current_question_index"`
	TotalQuestions       int                    `json:"total_questions"`
	ParticipantCount     int                    `json:"participant_count"`
	AnsweredCount        int                    `json:"answered_count"`
	Settings             entity.SessionSettings `json:"settings"`
}

// ParticipantResponse представляет участника сессии
type ParticipantResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Status         string `json:"status"`
	Score          int    `json:"score"`
	AnswersCount   int    `json:"answers_count"`
	CorrectAnswers int    `json:"correct_answers"`
}

// NewSessionResponse создает DTO живой сессии
func NewSessionResponse(sess *session.Session) *SessionResponse {
	quiz := sess.Quiz()
	return &SessionResponse{
		Code:                 sess.Code(),
		State:                sess.State().String(),
		QuizID:               quiz.ID,
		QuizTitle:            quiz.Title,
		CurrentQuestionIndex: sess.CurrentQuestionIndex(),
		TotalQuestions:       len(quiz.Questions),
		ParticipantCount:     sess.ParticipantCount(),
		AnsweredCount:        sess.AnsweredCount(),
		Settings:             sess.Settings(),
	}
}

// NewParticipantResponse создает DTO участника
func NewParticipantResponse(p *entity.Participant) ParticipantResponse {
	return ParticipantResponse{
		ID:             p.ID,
		Name:           p.Name,
		Status:         string(p.Status),
		Score:          p.Score,
		AnswersCount:   len(p.Answers),
		CorrectAnswers: p.CorrectCount(),
	}
}
