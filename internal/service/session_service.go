package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/yourusername/livequiz-api/internal/domain/entity"
	"github.com/yourusername/livequiz-api/internal/domain/repository"
	apperrors "github.com/yourusername/livequiz-api/internal/pkg/errors"
	"github.com/yourusername/livequiz-api/internal/session"
)

const (
	// activeCodesKey - ключ Redis-множества с кодами активных сессий
	activeCodesKey = "sessions:active"

	// reportCacheTTL - время жизни кешированного итогового отчета
	reportCacheTTL = 24 * time.Hour

	// DefaultSweepInterval - период зачистки завершенных сессий
	DefaultSweepInterval = 30 * time.Second
)

// EventRelay ретранслирует события сессий внешним подписчикам
// (WebSocket-хаб). Реализация обязана не блокировать вызывающего.
type EventRelay interface {
	RelaySessionEvent(evt session.Event)
}

// SessionService - композиционная точка ядра живых сессий.
// Владеет реестром (никаких глобальных синглтонов), связывает сессии
// с транспортом событий и архивирует итоги через слой персистентности.
type SessionService struct {
	registry   *session.Registry
	quizRepo   repository.QuizRepository
	reportRepo repository.ReportRepository
	cacheRepo  repository.CacheRepository
	relay      EventRelay

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSessionService создает сервис сессий и запускает фоновую зачистку
// завершенных сессий
func NewSessionService(
	registry *session.Registry,
	quizRepo repository.QuizRepository,
	reportRepo repository.ReportRepository,
	cacheRepo repository.CacheRepository,
	relay EventRelay,
	sweepInterval time.Duration,
) *SessionService {
	ctx, cancel := context.WithCancel(context.Background())

	svc := &SessionService{
		registry:   registry,
		quizRepo:   quizRepo,
		reportRepo: reportRepo,
		cacheRepo:  cacheRepo,
		relay:      relay,
		ctx:        ctx,
		cancel:     cancel,
	}

	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	go svc.runSweeper(sweepInterval)

	log.Println("[SessionService] Сервис сессий инициализирован")
	return svc
}

// CreateSessionFromQuiz создает живую сессию из уже проверенного
// определения викторины
func (s *SessionService) CreateSessionFromQuiz(quiz *entity.Quiz, explicitCode string) (*session.Session, error) {
	sess, err := s.registry.CreateSession(quiz, explicitCode)
	if err != nil {
		return nil, err
	}

	s.attachRelay(sess)

	if err := s.cacheRepo.SAdd(activeCodesKey, sess.Code()); err != nil {
		log.Printf("[SessionService] WARNING: Не удалось добавить код %s в Redis: %v", sess.Code(), err)
	}
	return sess, nil
}

// CreateSession загружает викторину из хранилища и создает живую сессию
func (s *SessionService) CreateSession(quizID uint, explicitCode string) (*session.Session, error) {
	quiz, err := s.quizRepo.GetWithQuestions(quizID)
	if err != nil {
		return nil, err
	}
	return s.CreateSessionFromQuiz(quiz, explicitCode)
}

// attachRelay подписывает транспортный ретранслятор на все события сессии.
// Единая подписка через OnAll сохраняет порядок публикации между типами:
// клиенты не должны увидеть результаты вопроса раньше самого вопроса.
func (s *SessionService) attachRelay(sess *session.Session) {
	if s.relay == nil {
		return
	}
	sess.OnAll(s.relay.RelaySessionEvent)
}

// GetSession возвращает активную сессию по коду
func (s *SessionService) GetSession(code string) (*session.Session, error) {
	return s.registry.GetSession(code)
}

// ListActive возвращает коды всех активных сессий
func (s *SessionService) ListActive() []string {
	return s.registry.ListActive()
}

// EndSession завершает сессию, архивирует ее итоговый отчет
// и снимает с регистрации
func (s *SessionService) EndSession(code string) (*entity.SessionReport, error) {
	report, err := s.registry.EndSession(code)
	if err != nil {
		return nil, err
	}

	s.archiveReport(report)
	return report, nil
}

// GetArchivedReport возвращает архивный отчет: сначала из кеша,
// затем из базы данных
func (s *SessionService) GetArchivedReport(code string) (*entity.SessionReport, error) {
	var cached entity.SessionReport
	if err := s.cacheRepo.GetJSON(reportCacheKey(code), &cached); err == nil {
		return &cached, nil
	}
	return s.reportRepo.GetByCode(code)
}

// archiveReport сохраняет отчет в базу и кеш.
// Ошибки архивации логируются и не прерывают завершение сессии.
func (s *SessionService) archiveReport(report *entity.SessionReport) {
	if err := s.reportRepo.Save(report); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			log.Printf("[SessionService] Отчет сессии %s уже архивирован", report.SessionCode)
		} else {
			log.Printf("[SessionService] ОШИБКА при архивации отчета сессии %s: %v", report.SessionCode, err)
		}
	}

	if err := s.cacheRepo.SetJSON(reportCacheKey(report.SessionCode), report, reportCacheTTL); err != nil {
		log.Printf("[SessionService] WARNING: Не удалось закешировать отчет сессии %s: %v", report.SessionCode, err)
	}
	if err := s.cacheRepo.SRem(activeCodesKey, report.SessionCode); err != nil {
		log.Printf("[SessionService] WARNING: Не удалось убрать код %s из Redis: %v", report.SessionCode, err)
	}
}

// runSweeper периодически архивирует сессии, дошедшие до Finished,
// но не завершенные явной командой
func (s *SessionService) runSweeper(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, report := range s.registry.CleanupFinished() {
				s.archiveReport(report)
			}
		case <-s.ctx.Done():
			log.Println("[SessionService] Зачистка сессий остановлена")
			return
		}
	}
}

// Shutdown останавливает фоновые задачи и завершает все активные сессии
func (s *SessionService) Shutdown() {
	s.cancel()

	for _, code := range s.registry.ListActive() {
		report, err := s.registry.EndSession(code)
		if err != nil {
			continue
		}
		s.archiveReport(report)
	}

	log.Println("[SessionService] Сервис сессий остановлен")
}

func reportCacheKey(code string) string {
	return "sessions:report:" + code
}
