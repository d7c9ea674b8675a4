package session

// Константы по умолчанию для движка сессий
const (
	DefaultCountdownSeconds   = 3
	DefaultShowLeaderboardSec = 5
	DefaultLeaderboardEvery   = 3
	DefaultMaxParticipants    = 50
)

// Config содержит настройки движка живых сессий, не зависящие от
// конкретной викторины. Настройки уровня викторины (лимит времени,
// очки, бонус за скорость) приходят в entity.SessionSettings.
type Config struct {
	// CountdownSeconds - продолжительность обратного отсчета перед первым вопросом
	CountdownSeconds int

	// ShowLeaderboardSec - длительность показа промежуточного лидерборда
	ShowLeaderboardSec int

	// LeaderboardEvery - после каждого какого по счету вопроса показывать лидерборд
	LeaderboardEvery int

	// MaxParticipants - максимальное количество участников в одной сессии
	MaxParticipants int
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		CountdownSeconds:   DefaultCountdownSeconds,
		ShowLeaderboardSec: DefaultShowLeaderboardSec,
		LeaderboardEvery:   DefaultLeaderboardEvery,
		MaxParticipants:    DefaultMaxParticipants,
	}
}

// State представляет состояние конечного автомата сессии
type State int

const (
	StateWaiting State = iota
	StateStarting
	StateQuestion
	StateCollecting
	StateResults
	StateLeaderboard
	StatePaused
	StateFinished
)

// String возвращает строковое представление состояния
func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateStarting:
		return "starting"
	case StateQuestion:
		return "question"
	case StateCollecting:
		return "collecting"
	case StateResults:
		return "results"
	case StateLeaderboard:
		return "leaderboard"
	case StatePaused:
		return "paused"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// MarshalText реализует encoding.TextMarshaler, чтобы состояние
// сериализовалось в JSON своим строковым именем
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// LeaderboardEntry представляет одну строку лидерборда
type LeaderboardEntry struct {
	Rank           int    `json:"rank"`
	ParticipantID  string `json:"participant_id"`
	Name           string `json:"name"`
	Score          int    `json:"score"`
	AnswersCount   int    `json:"answers_count"`
	CorrectAnswers int    `json:"correct_answers"`
}
