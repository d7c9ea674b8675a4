package session

import (
	"log"
	"sort"
	"sync"
	"time"

	"github.com/yourusername/livequiz-api/internal/domain/entity"
)

// Session управляет одним живым прогоном викторины.
// Все мутации состояния выполняются под одной блокировкой на сессию:
// команды извне (join, submitAnswer, pause), собственный таймер дедлайна
// и периодическая зачистка реестра видят согласованное состояние.
// Таймеры защищены счетчиком эпохи: устаревший колбэк обнаруживает,
// что сессия ушла вперед, и ничего не делает.
type Session struct {
	code     string
	quiz     *entity.Quiz
	settings entity.SessionSettings
	config   *Config

	mu    sync.Mutex
	state State
	done  bool

	// Поток вопросов
	currentQuestionIndex int
	questionStartedAt    time.Time
	deadline             time.Time
	pausedRemaining      time.Duration
	epoch                uint64
	timer                *timerHandle

	// Участники и ответы текущего вопроса
	participants   map[string]*entity.Participant
	currentAnswers map[string]SubmittedAnswer

	stats  entity.SessionStats
	events *dispatcher
}

// NewSession создает сессию в состоянии Waiting.
// Quiz считается структурно проверенным вызывающей стороной.
func NewSession(code string, quiz *entity.Quiz, config *Config) *Session {
	if config == nil {
		config = DefaultConfig()
	}

	settings := quiz.Settings
	settings.Normalize()

	s := &Session{
		code:                 code,
		quiz:                 quiz,
		settings:             settings,
		config:               config,
		state:                StateWaiting,
		currentQuestionIndex: -1,
		participants:         make(map[string]*entity.Participant),
		currentAnswers:       make(map[string]SubmittedAnswer),
		events:               newDispatcher(),
	}
	s.stats.TotalQuestions = len(quiz.Questions)

	log.Printf("[Session %s] Сессия создана: %q, вопросов: %d", code, quiz.Title, len(quiz.Questions))
	return s
}

// Code возвращает код сессии
func (s *Session) Code() string {
	return s.code
}

// Quiz возвращает определение викторины (неизменяемое после создания сессии)
func (s *Session) Quiz() *entity.Quiz {
	return s.quiz
}

// Settings возвращает действующие настройки сессии
func (s *Session) Settings() entity.SessionSettings {
	return s.settings
}

// State возвращает текущее состояние конечного автомата
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentQuestionIndex возвращает индекс текущего вопроса (-1 до старта)
func (s *Session) CurrentQuestionIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentQuestionIndex
}

// ParticipantCount возвращает количество зарегистрированных участников
func (s *Session) ParticipantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants)
}

// AnsweredCount возвращает количество ответов на текущий вопрос
func (s *Session) AnsweredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.currentAnswers)
}

// Stats возвращает копию агрегированной статистики сессии
func (s *Session) Stats() entity.SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Participants возвращает снимок всех участников сессии
func (s *Session) Participants() []entity.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]entity.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		cp := *p
		cp.Answers = append([]entity.AnswerRecord(nil), p.Answers...)
		out = append(out, cp)
	}
	return out
}

// On регистрирует подписчика на событие указанного типа.
// События доставляются подписчику в порядке публикации; медленный
// подписчик не блокирует сессию - его очередь переполняется с потерей.
func (s *Session) On(evtType EventType, handler Handler) {
	s.events.on(evtType, handler)
}

// OnAll регистрирует одного подписчика на все типы событий.
// Порядок публикации сохраняется и между разными типами: транспорт,
// ретранслирующий события клиентам, обязан подписываться именно так.
func (s *Session) OnAll(handler Handler) {
	s.events.onAll(handler)
}

// Start запускает сессию: фиксирует время старта, переводит в Starting
// и планирует первый вопрос после обратного отсчета.
// Возвращает false, если сессия не в Waiting или участников нет.
func (s *Session) Start() bool {
	s.mu.Lock()

	if s.done || s.state != StateWaiting {
		s.mu.Unlock()
		log.Printf("[Session %s] Нельзя запустить сессию в состоянии %s", s.code, s.state)
		return false
	}
	if len(s.participants) == 0 {
		s.mu.Unlock()
		log.Printf("[Session %s] Нельзя запустить сессию без участников", s.code)
		return false
	}

	s.stats.StartedAt = time.Now()
	s.setStateLocked(StateStarting)
	epoch := s.epoch
	seconds := s.config.CountdownSeconds
	count := len(s.participants)
	s.mu.Unlock()

	go s.runCountdown(epoch, seconds)

	log.Printf("[Session %s] Сессия запущена, участников: %d", s.code, count)
	return true
}

// runCountdown отсчитывает секунды до первого вопроса
func (s *Session) runCountdown(epoch uint64, seconds int) {
	if seconds > 0 {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for i := seconds; i > 0; i-- {
			if s.stale(epoch) {
				return
			}
			s.emit(EventCountdownTick, CountdownPayload{SecondsLeft: i})
			<-ticker.C
		}
	}
	s.advanceIfCurrent(epoch)
}

// AddParticipant регистрирует участника.
// Порядок проверок фиксирован: вместимость, дубликат, поздний вход.
func (s *Session) AddParticipant(id, name string) bool {
	s.mu.Lock()

	if s.done {
		s.mu.Unlock()
		return false
	}
	if len(s.participants) >= s.config.MaxParticipants {
		s.mu.Unlock()
		log.Printf("[Session %s] Сессия заполнена (%d участников), вход отклонен: %s", s.code, s.config.MaxParticipants, id)
		return false
	}
	if _, exists := s.participants[id]; exists {
		s.mu.Unlock()
		log.Printf("[Session %s] Участник уже зарегистрирован: %s", s.code, id)
		return false
	}
	if s.state != StateWaiting && s.state != StateStarting && !s.settings.AllowLateJoin {
		s.mu.Unlock()
		log.Printf("[Session %s] Поздний вход запрещен, отклонен: %s", s.code, id)
		return false
	}

	now := time.Now()
	p := &entity.Participant{
		ID:       id,
		Name:     name,
		Status:   entity.ParticipantConnected,
		Answers:  []entity.AnswerRecord{},
		JoinedAt: now,
		LastSeen: now,
	}
	s.participants[id] = p
	s.stats.ParticipantsJoined++

	payload := ParticipantPayload{
		ParticipantID: id,
		Name:          name,
		Participants:  len(s.participants),
	}
	s.mu.Unlock()

	log.Printf("[Session %s] Участник добавлен: %s (%s)", s.code, name, id)
	s.emit(EventParticipantJoin, payload)
	return true
}

// RemoveParticipant помечает участника отключенным.
// Счет и история ответов сохраняются; no-op для неизвестного id.
func (s *Session) RemoveParticipant(id string) {
	s.mu.Lock()

	p, ok := s.participants[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	p.Status = entity.ParticipantDisconnected
	p.LastSeen = time.Now()

	payload := ParticipantPayload{
		ParticipantID: id,
		Name:          p.Name,
		Score:         p.Score,
		Participants:  len(s.participants),
	}
	s.mu.Unlock()

	log.Printf("[Session %s] Участник отключен: %s", s.code, id)
	s.emit(EventParticipantLeave, payload)
}

// SubmitAnswer принимает ответ участника на текущий вопрос.
// Проверка-и-запись в карту ответов выполняется как одна критическая секция,
// поэтому гонка с дедлайном дает либо принятый и засчитанный ответ,
// либо чистый отказ - частичных обновлений не бывает.
func (s *Session) SubmitAnswer(participantID string, answer int) bool {
	now := time.Now()

	s.mu.Lock()

	if s.done || s.state != StateCollecting {
		s.mu.Unlock()
		log.Printf("[Session %s] Ответы не принимаются в состоянии %s", s.code, s.state)
		return false
	}
	p, ok := s.participants[participantID]
	if !ok {
		s.mu.Unlock()
		log.Printf("[Session %s] Участник не найден: %s", s.code, participantID)
		return false
	}
	if _, answered := s.currentAnswers[participantID]; answered {
		s.mu.Unlock()
		log.Printf("[Session %s] Участник уже ответил: %s", s.code, participantID)
		return false
	}

	responseTime := now.Sub(s.questionStartedAt).Seconds()
	if responseTime < 0 {
		responseTime = 0
	}

	s.currentAnswers[participantID] = SubmittedAnswer{
		ParticipantID:   participantID,
		Answer:          answer,
		ResponseTimeSec: responseTime,
	}
	p.Status = entity.ParticipantAnswered
	p.LastSeen = now
	s.stats.TotalAnswers++

	payload := AnswerReceivedPayload{
		ParticipantID:   participantID,
		Answer:          answer,
		ResponseTimeSec: responseTime,
		AnsweredCount:   len(s.currentAnswers),
	}
	s.mu.Unlock()

	s.emit(EventAnswerReceived, payload)
	return true
}

// NextQuestion переводит сессию к следующему вопросу.
// Возвращает false, когда переход невозможен: сессия еще не запущена
// или уже завершена (в том числе этим вызовом).
// Этот путь используют и внутренний таймер, и внешняя команда принудительного
// перехода; защита от двойного вызова на одном индексе обеспечивается эпохой.
func (s *Session) NextQuestion() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done || s.state == StateWaiting || s.state == StateFinished {
		return false
	}
	return s.advanceLocked()
}

// advanceIfCurrent продвигает сессию, только если эпоха не изменилась
// с момента планирования. Закрывает гонку между устаревшим таймером
// и внешней командой.
func (s *Session) advanceIfCurrent(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done || s.epoch != epoch || s.state == StateFinished {
		return
	}
	s.advanceLocked()
}

// advanceLocked выполняет фактический переход к следующему вопросу.
// Вызывается только под блокировкой.
func (s *Session) advanceLocked() bool {
	s.cancelTimerLocked()
	s.epoch++
	s.currentQuestionIndex++

	if s.currentQuestionIndex >= len(s.quiz.Questions) {
		s.finishLocked()
		return false
	}

	// Карта ответов опустошается атомарно с началом нового вопроса
	s.currentAnswers = make(map[string]SubmittedAnswer)
	for _, p := range s.participants {
		if p.Status != entity.ParticipantDisconnected {
			p.Status = entity.ParticipantWaiting
		}
	}

	s.setStateLocked(StateQuestion)

	question := s.quiz.Questions[s.currentQuestionIndex]
	now := time.Now()
	limit := time.Duration(s.settings.QuestionTimeLimitSec) * time.Second
	s.questionStartedAt = now
	s.deadline = now.Add(limit)

	epoch := s.epoch
	s.scheduleLocked(limit, func() { s.onDeadline(epoch) })

	s.setStateLocked(StateCollecting)

	log.Printf("[Session %s] Вопрос %d из %d начат", s.code, s.currentQuestionIndex+1, len(s.quiz.Questions))
	s.emit(EventQuestionStarted, QuestionStartedPayload{
		QuestionIndex:  s.currentQuestionIndex,
		Question:       question,
		CorrectOption:  question.CorrectOption,
		TimeLimitSec:   s.settings.QuestionTimeLimitSec,
		TotalQuestions: len(s.quiz.Questions),
		StartedAt:      now,
	})
	return true
}

// onDeadline закрывает окно приема ответов по истечении времени.
// Если сессия была поставлена на паузу, остановлена или принудительно
// продвинута раньше, колбэк обнаруживает это и ничего не делает.
func (s *Session) onDeadline(epoch uint64) {
	s.mu.Lock()

	if s.done || s.epoch != epoch || s.state != StateCollecting {
		s.mu.Unlock()
		return
	}

	results := s.scoreCurrentLocked()
	s.stats.QuestionsCompleted++
	s.setStateLocked(StateResults)

	finishedIndex := s.currentQuestionIndex
	showFor := time.Duration(s.settings.ShowResultsSec) * time.Second
	s.scheduleLocked(showFor, func() { s.afterResults(epoch, finishedIndex) })

	s.mu.Unlock()

	log.Printf("[Session %s] Вопрос %d завершен: ответов %d, правильных %d",
		s.code, finishedIndex+1, results.TotalResponses, results.CorrectResponses)
	s.emit(EventQuestionResults, results)
}

// scoreCurrentLocked прогоняет движок подсчета по собранным ответам,
// начисляет очки участникам и дописывает записи в их историю ответов
func (s *Session) scoreCurrentLocked() *QuestionResults {
	question := s.quiz.Questions[s.currentQuestionIndex]

	answers := make([]SubmittedAnswer, 0, len(s.currentAnswers))
	names := make(map[string]string, len(s.participants))
	for _, a := range s.currentAnswers {
		answers = append(answers, a)
	}
	for id, p := range s.participants {
		names[id] = p.Name
	}
	// Детерминированный порядок результатов внутри вопроса
	sort.Slice(answers, func(i, j int) bool {
		return answers[i].ResponseTimeSec < answers[j].ResponseTimeSec
	})

	results := ScoreQuestion(s.currentQuestionIndex, &question, s.settings, answers, names, len(s.participants))

	// Очки участника только растут, и только здесь
	for _, r := range results.ParticipantResults {
		p, ok := s.participants[r.ParticipantID]
		if !ok {
			continue
		}
		p.Score += r.Points
		p.Answers = append(p.Answers, entity.AnswerRecord{
			QuestionIndex:   results.QuestionIndex,
			Answer:          r.Answer,
			Correct:         r.Correct,
			Points:          r.Points,
			ResponseTimeSec: r.ResponseTimeSec,
		})
	}

	return results
}

// afterResults по окончании показа результатов либо показывает лидерборд
// (после каждого третьего вопроса), либо переходит к следующему вопросу
func (s *Session) afterResults(epoch uint64, finishedIndex int) {
	s.mu.Lock()

	if s.done || s.epoch != epoch || s.state != StateResults {
		s.mu.Unlock()
		return
	}

	if s.config.LeaderboardEvery > 0 && (finishedIndex+1)%s.config.LeaderboardEvery == 0 {
		s.setStateLocked(StateLeaderboard)
		entries := s.leaderboardLocked(10)
		showFor := time.Duration(s.config.ShowLeaderboardSec) * time.Second
		s.scheduleLocked(showFor, func() { s.afterLeaderboard(epoch) })
		s.mu.Unlock()

		s.emit(EventLeaderboardShow, LeaderboardPayload{Entries: entries})
		return
	}

	s.advanceLocked()
	s.mu.Unlock()
}

// afterLeaderboard продолжает викторину после показа лидерборда
func (s *Session) afterLeaderboard(epoch uint64) {
	s.mu.Lock()

	if s.done || s.epoch != epoch || s.state != StateLeaderboard {
		s.mu.Unlock()
		return
	}

	s.advanceLocked()
	s.mu.Unlock()
}

// Pause приостанавливает сессию. Валидна только из Question/Collecting.
// Отменяет таймер дедлайна и точно запоминает остаток времени на вопрос.
func (s *Session) Pause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done || (s.state != StateQuestion && s.state != StateCollecting) {
		log.Printf("[Session %s] Пауза невозможна в состоянии %s", s.code, s.state)
		return false
	}

	s.cancelTimerLocked()
	s.epoch++

	remaining := time.Until(s.deadline)
	if remaining < 0 {
		remaining = 0
	}
	s.pausedRemaining = remaining

	s.setStateLocked(StatePaused)
	log.Printf("[Session %s] Сессия на паузе, остаток времени на вопрос: %v", s.code, remaining)
	return true
}

// Resume возобновляет сессию из паузы и запускает таймер на точный остаток
// времени, зафиксированный при постановке на паузу.
func (s *Session) Resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done || s.state != StatePaused {
		log.Printf("[Session %s] Возобновление невозможно в состоянии %s", s.code, s.state)
		return false
	}

	s.epoch++
	remaining := s.pausedRemaining
	limit := time.Duration(s.settings.QuestionTimeLimitSec) * time.Second

	now := time.Now()
	// Сдвигаем точку старта вопроса так, чтобы латентность ответов
	// не включала время, проведенное на паузе
	s.questionStartedAt = now.Add(remaining - limit)
	s.deadline = now.Add(remaining)

	epoch := s.epoch
	s.scheduleLocked(remaining, func() { s.onDeadline(epoch) })

	s.setStateLocked(StateCollecting)
	log.Printf("[Session %s] Сессия возобновлена, остаток времени: %v", s.code, remaining)
	return true
}

// Leaderboard возвращает лидерборд без отключенных участников,
// отсортированный по убыванию счета. Равные счета делят один плотный ранг;
// порядок внутри ранга детерминирован: раньше присоединившиеся выше.
// limit <= 0 возвращает всех.
func (s *Session) Leaderboard(limit int) []LeaderboardEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaderboardLocked(limit)
}

func (s *Session) leaderboardLocked(limit int) []LeaderboardEntry {
	type ranked struct {
		entry    LeaderboardEntry
		joinedAt time.Time
	}

	participants := make([]ranked, 0, len(s.participants))
	for _, p := range s.participants {
		if p.Status == entity.ParticipantDisconnected {
			continue
		}
		participants = append(participants, ranked{
			entry: LeaderboardEntry{
				ParticipantID:  p.ID,
				Name:           p.Name,
				Score:          p.Score,
				AnswersCount:   len(p.Answers),
				CorrectAnswers: p.CorrectCount(),
			},
			joinedAt: p.JoinedAt,
		})
	}

	sort.Slice(participants, func(i, j int) bool {
		a, b := participants[i], participants[j]
		if a.entry.Score != b.entry.Score {
			return a.entry.Score > b.entry.Score
		}
		if !a.joinedAt.Equal(b.joinedAt) {
			return a.joinedAt.Before(b.joinedAt)
		}
		return a.entry.ParticipantID < b.entry.ParticipantID
	})

	entries := make([]LeaderboardEntry, 0, len(participants))
	rank := 0
	prevScore := 0
	for i, r := range participants {
		if limit > 0 && len(entries) >= limit {
			break
		}
		if i == 0 || r.entry.Score < prevScore {
			rank++
		}
		prevScore = r.entry.Score
		r.entry.Rank = rank
		entries = append(entries, r.entry)
	}
	return entries
}

// FinalResults возвращает итоговый отчет сессии: полный лидерборд,
// статистику и название викторины
func (s *Session) FinalResults() *entity.SessionReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finalReportLocked()
}

func (s *Session) finalReportLocked() *entity.SessionReport {
	stats := s.stats

	if !stats.StartedAt.IsZero() {
		end := stats.EndedAt
		if end.IsZero() {
			end = time.Now()
		}
		stats.DurationSec = end.Sub(stats.StartedAt).Seconds()
	}

	answered := 0
	for _, p := range s.participants {
		if len(p.Answers) > 0 {
			answered++
		}
	}
	if stats.ParticipantsJoined > 0 {
		stats.CompletionRate = float64(answered) / float64(stats.ParticipantsJoined)
	}

	entries := s.leaderboardLocked(0)
	reportEntries := make([]entity.ReportEntry, 0, len(entries))
	for _, e := range entries {
		reportEntries = append(reportEntries, entity.ReportEntry{
			Rank:           e.Rank,
			ParticipantID:  e.ParticipantID,
			Name:           e.Name,
			Score:          e.Score,
			AnswersCount:   e.AnswersCount,
			CorrectAnswers: e.CorrectAnswers,
		})
	}

	return &entity.SessionReport{
		SessionCode: s.code,
		QuizTitle:   s.quiz.Title,
		Entries:     reportEntries,
		Stats:       stats,
	}
}

// finishLocked завершает сессию и эмитит итоговый отчет
func (s *Session) finishLocked() {
	s.cancelTimerLocked()
	s.stats.EndedAt = time.Now()

	// В завершенной сессии индекс равен последнему обработанному вопросу
	if n := len(s.quiz.Questions); s.currentQuestionIndex >= n && n > 0 {
		s.currentQuestionIndex = n - 1
	}

	s.setStateLocked(StateFinished)

	report := s.finalReportLocked()
	log.Printf("[Session %s] Викторина завершена: %q, участников %d", s.code, s.quiz.Title, len(report.Entries))
	s.emit(EventQuizFinished, report)
}

// Cleanup отменяет висящие таймеры и освобождает подписчиков. Идемпотентна.
func (s *Session) Cleanup() {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.epoch++
	s.cancelTimerLocked()
	s.mu.Unlock()

	s.events.clear()
	log.Printf("[Session %s] Сессия очищена", s.code)
}

// setStateLocked выполняет переход состояния и эмитит state_change
func (s *Session) setStateLocked(newState State) {
	oldState := s.state
	s.state = newState

	log.Printf("[Session %s] Состояние изменено: %s -> %s", s.code, oldState, newState)
	s.emit(EventStateChange, StateChangePayload{OldState: oldState, NewState: newState})
}

// scheduleLocked заменяет текущий таймер новой отложенной задачей
func (s *Session) scheduleLocked(d time.Duration, fn func()) {
	s.cancelTimerLocked()
	s.timer = newTimerHandle(d, fn)
}

func (s *Session) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.cancel()
		s.timer = nil
	}
}

// stale сообщает, изменилась ли эпоха с момента планирования задачи
func (s *Session) stale(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done || s.epoch != epoch
}

// emit рассылает событие подписчикам; безопасно вызывать под блокировкой,
// так как доставка асинхронная
func (s *Session) emit(evtType EventType, data interface{}) {
	s.events.emit(Event{Type: evtType, SessionCode: s.code, Data: data})
}
