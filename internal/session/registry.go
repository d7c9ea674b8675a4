package session

import (
	"crypto/rand"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/yourusername/livequiz-api/internal/domain/entity"
	apperrors "github.com/yourusername/livequiz-api/internal/pkg/errors"
)

// Алфавит кодов сессий без визуально похожих символов (0/O, 1/I)
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength - длина кода сессии
const CodeLength = 6

// Registry владеет активными сессиями: создает их под уникальными кодами,
// ищет по коду и выводит из оборота. Блокировка реестра не пересекается
// с блокировками отдельных сессий, сессии полностью независимы.
type Registry struct {
	config *Config

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry создает реестр сессий
func NewRegistry(config *Config) *Registry {
	if config == nil {
		config = DefaultConfig()
	}
	return &Registry{
		config:   config,
		sessions: make(map[string]*Session),
	}
}

// CreateSession создает сессию в состоянии Waiting и регистрирует ее.
// Пустой explicitCode означает сгенерировать код; явный код нормализуется
// к верхнему регистру и проверяется по алфавиту кодов, иначе созданная сессия
// была бы недостижима через валидацию кода в маршрутах. При коллизии явного
// кода с активной сессией возвращается apperrors.ErrConflict.
func (r *Registry) CreateSession(quiz *entity.Quiz, explicitCode string) (*Session, error) {
	if quiz == nil || len(quiz.Questions) == 0 {
		return nil, fmt.Errorf("%w: quiz must have at least one question", apperrors.ErrValidation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	code := explicitCode
	if code == "" {
		code = r.generateCodeLocked()
	} else {
		normalized, err := NormalizeCode(code)
		if err != nil {
			return nil, err
		}
		code = normalized
		if _, exists := r.sessions[code]; exists {
			return nil, fmt.Errorf("%w: session code %s already active", apperrors.ErrConflict, code)
		}
	}

	s := NewSession(code, quiz, r.config)
	r.sessions[code] = s

	log.Printf("[Registry] Сессия зарегистрирована: %s", code)
	return s, nil
}

// NormalizeCode приводит код сессии к каноническому виду: обрезает пробелы,
// поднимает регистр и проверяет длину и принадлежность символов алфавиту кодов.
// Невалидный код дает apperrors.ErrValidation.
func NormalizeCode(code string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if len(normalized) != CodeLength {
		return "", fmt.Errorf("%w: session code must be %d characters", apperrors.ErrValidation, CodeLength)
	}
	for _, ch := range normalized {
		if !strings.ContainsRune(codeAlphabet, ch) {
			return "", fmt.Errorf("%w: session code contains invalid character %q", apperrors.ErrValidation, ch)
		}
	}
	return normalized, nil
}

// generateCodeLocked генерирует код, перегенерируя при коллизии
// с активными сессиями. Вызывается только под блокировкой реестра.
func (r *Registry) generateCodeLocked() string {
	for {
		code := randomCode(CodeLength)
		if _, exists := r.sessions[code]; !exists {
			return code
		}
	}
}

// randomCode возвращает случайный код из неоднозначного алфавита.
// Длина алфавита равна 32, поэтому взятие байта по модулю не дает смещения.
func randomCode(length int) string {
	buf := make([]byte, length)
	rand.Read(buf)

	code := make([]byte, length)
	for i, b := range buf {
		code[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(code)
}

// GetSession возвращает сессию по коду или apperrors.ErrNotFound.
// Никогда не создает сессию как побочный эффект.
func (r *Registry) GetSession(code string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[code]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", apperrors.ErrNotFound, code)
	}
	return s, nil
}

// EndSession выводит сессию из оборота: снимает ее с регистрации,
// возвращает итоговый отчет для архивации и освобождает ресурсы сессии.
func (r *Registry) EndSession(code string) (*entity.SessionReport, error) {
	r.mu.Lock()
	s, ok := r.sessions[code]
	if ok {
		delete(r.sessions, code)
	}
	r.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: session %s", apperrors.ErrNotFound, code)
	}

	report := s.FinalResults()
	s.Cleanup()

	log.Printf("[Registry] Сессия завершена и снята с регистрации: %s", code)
	return report, nil
}

// ListActive возвращает коды всех активных сессий
func (r *Registry) ListActive() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	codes := make([]string, 0, len(r.sessions))
	for code := range r.sessions {
		codes = append(codes, code)
	}
	return codes
}

// ActiveCount возвращает количество активных сессий
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CleanupFinished снимает с регистрации сессии, дошедшие до Finished,
// но не завершенные явно. Возвращает их итоговые отчеты для архивации.
func (r *Registry) CleanupFinished() []*entity.SessionReport {
	r.mu.RLock()
	finished := make([]string, 0)
	for code, s := range r.sessions {
		if s.State() == StateFinished {
			finished = append(finished, code)
		}
	}
	r.mu.RUnlock()

	reports := make([]*entity.SessionReport, 0, len(finished))
	for _, code := range finished {
		report, err := r.EndSession(code)
		if err != nil {
			continue
		}
		reports = append(reports, report)
	}

	if len(reports) > 0 {
		log.Printf("[Registry] Зачищено завершенных сессий: %d", len(reports))
	}
	return reports
}
