package entity

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// StringArray - пользовательский тип для работы с JSONB
type StringArray []string

// Scan реализует интерфейс sql.Scanner для StringArray
// Используется GORM для чтения JSONB данных из базы
func (o *StringArray) Scan(value interface{}) error {
	if value == nil {
		*o = StringArray{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to unmarshal JSONB value: expected []byte")
	}

	if len(bytes) == 0 {
		*o = StringArray{}
		return nil
	}

	return json.Unmarshal(bytes, o)
}

// Value реализует интерфейс driver.Valuer для StringArray
// Используется GORM для записи StringArray в JSONB в базе
func (o StringArray) Value() (driver.Value, error) {
	if len(o) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal(o)
}

// Quiz представляет определение викторины - неизменяемый вход для живой сессии.
// Структурная валидация (наличие вопросов, >=2 вариантов) выполняется слоем,
// который создает Quiz; ядро сессии принимает его как уже проверенный.
type Quiz struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Title     string          `gorm:"size:100;not null" json:"title"`
	Questions []Question      `gorm:"foreignKey:QuizID" json:"questions,omitempty"`
	Settings  SessionSettings `gorm:"embedded;embeddedPrefix:settings_" json:"settings"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Quiz) TableName() string {
	return "quizzes"
}

// Question представляет вопрос в викторине
type Question struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	QuizID        uint        `gorm:"not null;index" json:"quiz_id"`
	Text          string      `gorm:"size:500;not null" json:"text"`
	Options       StringArray `gorm:"type:jsonb;not null" json:"options"`
	CorrectOption int         `gorm:"not null" json:"-"` // Скрыто от клиента
	Explanation   string      `gorm:"size:500;not null;default:''" json:"explanation,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// TableName определяет имя таблицы для GORM
func (Question) TableName() string {
	return "questions"
}

// IsCorrect проверяет, является ли выбранный вариант правильным
func (q *Question) IsCorrect(selectedOption int) bool {
	return selectedOption == q.CorrectOption
}

// IsValidOption проверяет, является ли выбранный вариант допустимым
func (q *Question) IsValidOption(selectedOption int) bool {
	return selectedOption >= 0 && selectedOption < len(q.Options)
}

// OptionsCount возвращает количество вариантов ответа
func (q *Question) OptionsCount() int {
	return len(q.Options)
}

// SessionSettings содержит настройки проведения живой сессии викторины
type SessionSettings struct {
	QuestionTimeLimitSec int  `gorm:"not null;default:30" json:"question_time_limit"`
	ShowResultsSec       int  `gorm:"not null;default:5" json:"show_results_time"`
	AllowLateJoin        bool `gorm:"not null;default:true" json:"allow_late_join"`
	PointsForCorrect     int  `gorm:"not null;default:100" json:"points_for_correct"`
	SpeedBonusEnabled    bool `gorm:"not null;default:true" json:"speed_bonus_enabled"`
	MaxSpeedBonus        int  `gorm:"not null;default:50" json:"max_speed_bonus"`
}

// DefaultSessionSettings возвращает настройки сессии по умолчанию
func DefaultSessionSettings() SessionSettings {
	return SessionSettings{
		QuestionTimeLimitSec: 30,
		ShowResultsSec:       5,
		AllowLateJoin:        true,
		PointsForCorrect:     100,
		SpeedBonusEnabled:    true,
		MaxSpeedBonus:        50,
	}
}

// Normalize заменяет нулевые значения настроек значениями по умолчанию.
// Вызывается при создании сессии, чтобы частично заполненные настройки
// из хранилища не ломали тайминги.
func (s *SessionSettings) Normalize() {
	def := DefaultSessionSettings()
	if s.QuestionTimeLimitSec <= 0 {
		s.QuestionTimeLimitSec = def.QuestionTimeLimitSec
	}
	if s.ShowResultsSec <= 0 {
		s.ShowResultsSec = def.ShowResultsSec
	}
	if s.PointsForCorrect <= 0 {
		s.PointsForCorrect = def.PointsForCorrect
	}
	if s.MaxSpeedBonus < 0 {
		s.MaxSpeedBonus = def.MaxSpeedBonus
	}
}
