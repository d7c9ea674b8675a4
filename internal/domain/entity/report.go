package entity

import "time"

// SessionReport представляет архивный итог завершенной сессии.
// Создается ядром при завершении и передается слою персистентности.
type SessionReport struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	SessionCode string        `gorm:"size:12;not null;uniqueIndex" json:"session_code"`
	QuizTitle   string        `gorm:"size:100;not null" json:"quiz_title"`
	Entries     []ReportEntry `gorm:"foreignKey:ReportID" json:"leaderboard"`
	Stats       SessionStats  `gorm:"embedded;embeddedPrefix:stats_" json:"stats"`
	CreatedAt   time.Time     `json:"created_at"`
}

// TableName определяет имя таблицы для GORM
func (SessionReport) TableName() string {
	return "session_reports"
}

// ReportEntry представляет одну строку итогового лидерборда
type ReportEntry struct {
	ID             uint   `gorm:"primaryKey" json:"-"`
	ReportID       uint   `gorm:"not null;index" json:"-"`
	Rank           int    `gorm:"not null" json:"rank"`
	ParticipantID  string `gorm:"size:64;not null" json:"participant_id"`
	Name           string `gorm:"size:100;not null" json:"name"`
	Score          int    `gorm:"not null;default:0" json:"score"`
	AnswersCount   int    `gorm:"not null;default:0" json:"answers_count"`
	CorrectAnswers int    `gorm:"not null;default:0" json:"correct_answers"`
}

// TableName определяет имя таблицы для GORM
func (ReportEntry) TableName() string {
	return "session_report_entries"
}

// SessionStats содержит агрегированную статистику сессии
type SessionStats struct {
	StartedAt          time.Time `json:"started_at"`
	EndedAt            time.Time `json:"ended_at"`
	DurationSec        float64   `gorm:"not null;default:0" json:"duration"`
	TotalQuestions     int       `gorm:"not null;default:0" json:"total_questions"`
	QuestionsCompleted int       `gorm:"not null;default:0" json:"questions_completed"`
	ParticipantsJoined int       `gorm:"not null;default:0" json:"participants_joined"`
	TotalAnswers       int       `gorm:"not null;default:0" json:"total_answers"`
	CompletionRate     float64   `gorm:"not null;default:0" json:"completion_rate"`
}
