package entity

import "time"

// Статусы участника живой сессии
type ParticipantStatus string

const (
	ParticipantConnected    ParticipantStatus = "connected"
	ParticipantDisconnected ParticipantStatus = "disconnected"
	ParticipantAnswered     ParticipantStatus = "answered"
	ParticipantWaiting      ParticipantStatus = "waiting"
)

// Participant представляет участника живой сессии.
// Принадлежит исключительно своей сессии: удаленные участники помечаются
// как disconnected, их счет и история ответов сохраняются.
type Participant struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Status   ParticipantStatus `json:"status"`
	Score    int               `json:"score"`
	Answers  []AnswerRecord    `json:"answers"`
	JoinedAt time.Time         `json:"joined_at"`
	LastSeen time.Time         `json:"last_seen"`
}

// CorrectCount возвращает количество правильных ответов участника
func (p *Participant) CorrectCount() int {
	count := 0
	for _, a := range p.Answers {
		if a.Correct {
			count++
		}
	}
	return count
}

// AnswerRecord представляет запись об ответе участника на один вопрос
type AnswerRecord struct {
	QuestionIndex   int     `json:"question_index"`
	Answer          int     `json:"answer"`
	Correct         bool    `json:"correct"`
	Points          int     `json:"points"`
	ResponseTimeSec float64 `json:"response_time"`
}
