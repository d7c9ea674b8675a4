package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/livequiz-api/internal/domain/entity"
)

// ============================================================================
// Тестовые помощники
// ============================================================================

// fastSettings - настройки с короткими таймингами для тестов таймеров.
// Бонус за скорость выключен, чтобы очки были детерминированными.
func fastSettings() entity.SessionSettings {
	return entity.SessionSettings{
		QuestionTimeLimitSec: 1,
		ShowResultsSec:       1,
		AllowLateJoin:        true,
		PointsForCorrect:     100,
		SpeedBonusEnabled:    false,
	}
}

func testConfig() *Config {
	return &Config{
		CountdownSeconds:   0,
		ShowLeaderboardSec: 1,
		LeaderboardEvery:   3,
		MaxParticipants:    50,
	}
}

// newTestQuiz создает викторину с указанным числом вопросов.
// Правильный вариант везде 1.
func newTestQuiz(questions int, settings entity.SessionSettings) *entity.Quiz {
	quiz := &entity.Quiz{ID: 1, Title: "Тестовая викторина", Settings: settings}
	for i := 0; i < questions; i++ {
		quiz.Questions = append(quiz.Questions, entity.Question{
			ID:            uint(i + 1),
			QuizID:        1,
			Text:          fmt.Sprintf("Вопрос %d", i+1),
			Options:       entity.StringArray{"A", "B", "C", "D"},
			CorrectOption: 1,
		})
	}
	return quiz
}

// subscribe подписывает буферизованный канал на события одного типа.
// Разные типы слушаются на разных каналах: доставка асинхронная,
// и порядок между типами не гарантирован.
func subscribe(s *Session, evtType EventType) <-chan Event {
	ch := make(chan Event, 32)
	s.On(evtType, func(evt Event) { ch <- evt })
	return ch
}

func waitEvent(t *testing.T, ch <-chan Event, timeout time.Duration) Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(timeout):
		t.Fatalf("событие не пришло за %v", timeout)
		return Event{}
	}
}

// ============================================================================
// Создание и запуск
// ============================================================================

func TestSession_InitialState(t *testing.T) {
	s := NewSession("ABCDEF", newTestQuiz(2, fastSettings()), testConfig())

	assert.Equal(t, StateWaiting, s.State())
	assert.Equal(t, -1, s.CurrentQuestionIndex())
	assert.Equal(t, 0, s.ParticipantCount())
	assert.Equal(t, 2, s.Stats().TotalQuestions)
}

func TestSession_StartRequiresParticipants(t *testing.T) {
	s := NewSession("ABCDEF", newTestQuiz(1, fastSettings()), testConfig())
	defer s.Cleanup()

	assert.False(t, s.Start(), "запуск без участников должен быть отклонен")

	require.True(t, s.AddParticipant("p1", "Аян"))
	assert.True(t, s.Start())

	// Повторный запуск невозможен: сессия уже не в Waiting
	assert.False(t, s.Start())
}

func TestSession_NextQuestionBeforeStart(t *testing.T) {
	s := NewSession("ABCDEF", newTestQuiz(1, fastSettings()), testConfig())
	defer s.Cleanup()

	s.AddParticipant("p1", "Аян")
	assert.False(t, s.NextQuestion(), "переход к вопросу до запуска должен быть отклонен")
	assert.Equal(t, StateWaiting, s.State())
}

// ============================================================================
// Регистрация участников
// ============================================================================

func TestSession_AddParticipant_Capacity(t *testing.T) {
	cfg := testConfig()
	cfg.MaxParticipants = 2
	s := NewSession("ABCDEF", newTestQuiz(1, fastSettings()), cfg)
	defer s.Cleanup()

	assert.True(t, s.AddParticipant("p1", "Аян"))
	assert.True(t, s.AddParticipant("p2", "Дана"))
	assert.False(t, s.AddParticipant("p3", "Ерлан"), "сверх вместимости вход отклоняется")
	assert.Equal(t, 2, s.ParticipantCount())
}

func TestSession_AddParticipant_Duplicate(t *testing.T) {
	s := NewSession("ABCDEF", newTestQuiz(1, fastSettings()), testConfig())
	defer s.Cleanup()

	assert.True(t, s.AddParticipant("p1", "Аян"))
	assert.False(t, s.AddParticipant("p1", "Аян-2"), "повторный id отклоняется")
	assert.Equal(t, 1, s.ParticipantCount())
}

func TestSession_LateJoin(t *testing.T) {
	settings := fastSettings()
	settings.AllowLateJoin = false

	s := NewSession("ABCDEF", newTestQuiz(1, settings), testConfig())
	defer s.Cleanup()

	started := subscribe(s, EventQuestionStarted)

	require.True(t, s.AddParticipant("p1", "Аян"))
	require.True(t, s.Start())
	waitEvent(t, started, 2*time.Second)

	assert.False(t, s.AddParticipant("p2", "Дана"), "поздний вход запрещен настройками")
}

func TestSession_LateJoinAllowed(t *testing.T) {
	s := NewSession("ABCDEF", newTestQuiz(1, fastSettings()), testConfig())
	defer s.Cleanup()

	started := subscribe(s, EventQuestionStarted)

	require.True(t, s.AddParticipant("p1", "Аян"))
	require.True(t, s.Start())
	waitEvent(t, started, 2*time.Second)

	assert.True(t, s.AddParticipant("p2", "Дана"))
}

func TestSession_RemoveParticipant_KeepsScore(t *testing.T) {
	s := NewSession("ABCDEF", newTestQuiz(1, fastSettings()), testConfig())
	defer s.Cleanup()

	s.AddParticipant("p1", "Аян")
	s.AddParticipant("p2", "Дана")
	s.RemoveParticipant("p2")

	// Участник остается в сессии, но помечен отключенным
	assert.Equal(t, 2, s.ParticipantCount())
	for _, p := range s.Participants() {
		if p.ID == "p2" {
			assert.Equal(t, entity.ParticipantDisconnected, p.Status)
		}
	}

	// Неизвестный id - no-op
	s.RemoveParticipant("nobody")
	assert.Equal(t, 2, s.ParticipantCount())
}

// ============================================================================
// Полный прогон одного вопроса
// ============================================================================

func TestSession_AnswerFlow(t *testing.T) {
	s := NewSession("ABCDEF", newTestQuiz(1, fastSettings()), testConfig())
	defer s.Cleanup()

	started := subscribe(s, EventQuestionStarted)
	results := subscribe(s, EventQuestionResults)
	finished := subscribe(s, EventQuizFinished)

	require.True(t, s.AddParticipant("p1", "Аян"))
	require.True(t, s.AddParticipant("p2", "Дана"))
	require.True(t, s.AddParticipant("p3", "Ерлан"))
	require.True(t, s.Start())

	evt := waitEvent(t, started, 2*time.Second)
	payload, ok := evt.Data.(QuestionStartedPayload)
	require.True(t, ok)
	assert.Equal(t, 0, payload.QuestionIndex)
	assert.Equal(t, 1, payload.TotalQuestions)
	assert.Equal(t, StateCollecting, s.State())

	assert.True(t, s.SubmitAnswer("p1", 1))
	assert.True(t, s.SubmitAnswer("p2", 1))
	assert.True(t, s.SubmitAnswer("p3", 0))

	assert.False(t, s.SubmitAnswer("p1", 2), "повторный ответ отклоняется")
	assert.False(t, s.SubmitAnswer("nobody", 1), "неизвестный участник отклоняется")
	assert.Equal(t, 3, s.AnsweredCount())

	evt = waitEvent(t, results, 3*time.Second)
	qr, ok := evt.Data.(*QuestionResults)
	require.True(t, ok)
	assert.Equal(t, 0, qr.QuestionIndex)
	assert.Equal(t, 3, qr.TotalResponses)
	assert.Equal(t, 2, qr.CorrectResponses)
	assert.Equal(t, 1, qr.IncorrectResponses)

	// Окно приема закрыто
	assert.False(t, s.SubmitAnswer("p2", 1))

	evt = waitEvent(t, finished, 4*time.Second)
	report, ok := evt.Data.(*entity.SessionReport)
	require.True(t, ok)
	assert.Equal(t, StateFinished, s.State())
	assert.Equal(t, 0, s.CurrentQuestionIndex())

	require.Len(t, report.Entries, 3)
	// p1 и p2 делят первый ранг (равные очки), p3 получает плотный ранг 2
	assert.Equal(t, "p1", report.Entries[0].ParticipantID)
	assert.Equal(t, 1, report.Entries[0].Rank)
	assert.Equal(t, 100, report.Entries[0].Score)
	assert.Equal(t, "p2", report.Entries[1].ParticipantID)
	assert.Equal(t, 1, report.Entries[1].Rank)
	assert.Equal(t, "p3", report.Entries[2].ParticipantID)
	assert.Equal(t, 2, report.Entries[2].Rank)
	assert.Equal(t, 0, report.Entries[2].Score)

	assert.Equal(t, 1, report.Stats.TotalQuestions)
	assert.Equal(t, 1, report.Stats.QuestionsCompleted)
	assert.Equal(t, 3, report.Stats.ParticipantsJoined)
	assert.Equal(t, 3, report.Stats.TotalAnswers)
	assert.InDelta(t, 1.0, report.Stats.CompletionRate, 0.001)
	assert.Greater(t, report.Stats.DurationSec, 0.0)
}

func TestSession_AnswerEventsArriveInOrder(t *testing.T) {
	s := NewSession("ABCDEF", newTestQuiz(1, fastSettings()), testConfig())
	defer s.Cleanup()

	started := subscribe(s, EventQuestionStarted)
	received := make(chan int, 64)
	s.On(EventAnswerReceived, func(evt Event) {
		received <- evt.Data.(AnswerReceivedPayload).AnsweredCount
	})

	const participants = 40
	for i := 0; i < participants; i++ {
		require.True(t, s.AddParticipant(fmt.Sprintf("p%d", i), fmt.Sprintf("Участник %d", i)))
	}
	require.True(t, s.Start())
	waitEvent(t, started, 2*time.Second)

	for i := 0; i < participants; i++ {
		require.True(t, s.SubmitAnswer(fmt.Sprintf("p%d", i), 1))
	}

	// Подписчик видит счетчик принятых ответов строго в порядке публикации
	for want := 1; want <= participants; want++ {
		select {
		case got := <-received:
			require.Equal(t, want, got, "answered_count пришел не по порядку")
		case <-time.After(2 * time.Second):
			t.Fatalf("не дождались события с answered_count=%d", want)
		}
	}
}

func TestSession_OnAll_PreservesCrossTypeOrder(t *testing.T) {
	s := NewSession("ABCDEF", newTestQuiz(1, fastSettings()), testConfig())
	defer s.Cleanup()

	events := make(chan Event, 128)
	s.OnAll(func(evt Event) { events <- evt })

	started := subscribe(s, EventQuestionStarted)
	require.True(t, s.AddParticipant("p1", "Аян"))
	require.True(t, s.Start())
	waitEvent(t, started, 2*time.Second)
	require.True(t, s.SubmitAnswer("p1", 1))

	var seen []EventType
	timeout := time.After(5 * time.Second)
	for len(seen) == 0 || seen[len(seen)-1] != EventQuizFinished {
		select {
		case evt := <-events:
			seen = append(seen, evt.Type)
		case <-timeout:
			t.Fatalf("не дождались quiz_finished, получено: %v", seen)
		}
	}

	idx := func(evtType EventType) int {
		for i, e := range seen {
			if e == evtType {
				return i
			}
		}
		return -1
	}

	// Единый подписчик видит события разных типов в порядке публикации
	require.Less(t, idx(EventParticipantJoin), idx(EventQuestionStarted))
	require.Less(t, idx(EventQuestionStarted), idx(EventAnswerReceived))
	require.Less(t, idx(EventAnswerReceived), idx(EventQuestionResults))
	require.Less(t, idx(EventQuestionResults), idx(EventQuizFinished))
}

// ============================================================================
// Принудительный переход и устаревшие таймеры
// ============================================================================

func TestSession_ForceAdvance(t *testing.T) {
	s := NewSession("ABCDEF", newTestQuiz(2, fastSettings()), testConfig())
	defer s.Cleanup()

	started := subscribe(s, EventQuestionStarted)
	results := subscribe(s, EventQuestionResults)

	require.True(t, s.AddParticipant("p1", "Аян"))
	require.True(t, s.Start())

	evt := waitEvent(t, started, 2*time.Second)
	assert.Equal(t, 0, evt.Data.(QuestionStartedPayload).QuestionIndex)

	// Принудительный переход до истечения времени первого вопроса
	require.True(t, s.NextQuestion())

	evt = waitEvent(t, started, 2*time.Second)
	assert.Equal(t, 1, evt.Data.(QuestionStartedPayload).QuestionIndex)
	assert.Equal(t, 1, s.CurrentQuestionIndex())

	// Устаревший таймер первого вопроса не должен сработать:
	// первые результаты приходят по второму вопросу
	evt = waitEvent(t, results, 3*time.Second)
	assert.Equal(t, 1, evt.Data.(*QuestionResults).QuestionIndex)
}

// ============================================================================
// Пауза и возобновление
// ============================================================================

func TestSession_PauseResume(t *testing.T) {
	s := NewSession("ABCDEF", newTestQuiz(1, fastSettings()), testConfig())
	defer s.Cleanup()

	started := subscribe(s, EventQuestionStarted)
	results := subscribe(s, EventQuestionResults)

	require.True(t, s.AddParticipant("p1", "Аян"))

	// Пауза вне вопроса невозможна
	assert.False(t, s.Pause())
	assert.False(t, s.Resume())

	require.True(t, s.Start())
	waitEvent(t, started, 2*time.Second)

	require.True(t, s.Pause())
	assert.Equal(t, StatePaused, s.State())
	assert.False(t, s.SubmitAnswer("p1", 1), "на паузе ответы не принимаются")
	assert.False(t, s.Pause(), "повторная пауза невозможна")

	// Исходный дедлайн вопроса (1с) прошел, но сессия на паузе:
	// таймер не должен сработать
	time.Sleep(1200 * time.Millisecond)
	assert.Equal(t, StatePaused, s.State())

	require.True(t, s.Resume())
	assert.Equal(t, StateCollecting, s.State())
	assert.True(t, s.SubmitAnswer("p1", 1))

	evt := waitEvent(t, results, 3*time.Second)
	qr := evt.Data.(*QuestionResults)
	assert.Equal(t, 1, qr.CorrectResponses)
}

// ============================================================================
// Лидерборд
// ============================================================================

func TestSession_Leaderboard_OrderAndRanks(t *testing.T) {
	s := NewSession("ABCDEF", newTestQuiz(1, fastSettings()), testConfig())
	defer s.Cleanup()

	s.AddParticipant("p1", "Аян")
	s.AddParticipant("p2", "Дана")
	s.AddParticipant("p3", "Ерлан")

	entries := s.Leaderboard(0)
	require.Len(t, entries, 3)

	// Все с нулевым счетом делят первый ранг; порядок по времени входа
	for _, e := range entries {
		assert.Equal(t, 1, e.Rank)
	}
	assert.Equal(t, "p1", entries[0].ParticipantID)
	assert.Equal(t, "p2", entries[1].ParticipantID)
	assert.Equal(t, "p3", entries[2].ParticipantID)

	// Отключенные участники не попадают в лидерборд
	s.RemoveParticipant("p2")
	entries = s.Leaderboard(0)
	require.Len(t, entries, 2)
	assert.Equal(t, "p1", entries[0].ParticipantID)
	assert.Equal(t, "p3", entries[1].ParticipantID)

	// Ограничение размера
	assert.Len(t, s.Leaderboard(1), 1)
}

func TestSession_LeaderboardEveryThirdQuestion(t *testing.T) {
	if testing.Short() {
		t.Skip("длительный прогон трех вопросов")
	}

	s := NewSession("ABCDEF", newTestQuiz(3, fastSettings()), testConfig())
	defer s.Cleanup()

	leaderboard := subscribe(s, EventLeaderboardShow)
	finished := subscribe(s, EventQuizFinished)

	require.True(t, s.AddParticipant("p1", "Аян"))
	require.True(t, s.Start())

	// Лидерборд показывается после третьего вопроса, даже последнего
	evt := waitEvent(t, leaderboard, 12*time.Second)
	payload, ok := evt.Data.(LeaderboardPayload)
	require.True(t, ok)
	require.Len(t, payload.Entries, 1)
	assert.Equal(t, "p1", payload.Entries[0].ParticipantID)

	waitEvent(t, finished, 5*time.Second)
	assert.Equal(t, StateFinished, s.State())
	// Индекс прижат к последнему вопросу
	assert.Equal(t, 2, s.CurrentQuestionIndex())
}

// ============================================================================
// Очистка
// ============================================================================

func TestSession_Cleanup(t *testing.T) {
	s := NewSession("ABCDEF", newTestQuiz(1, fastSettings()), testConfig())

	s.AddParticipant("p1", "Аян")
	s.Cleanup()
	s.Cleanup() // идемпотентна

	assert.False(t, s.Start(), "очищенная сессия не запускается")
	assert.False(t, s.AddParticipant("p2", "Дана"))
	assert.False(t, s.NextQuestion())
}

func TestSession_Cleanup_MidQuestion(t *testing.T) {
	s := NewSession("ABCDEF", newTestQuiz(1, fastSettings()), testConfig())

	started := subscribe(s, EventQuestionStarted)
	require.True(t, s.AddParticipant("p1", "Аян"))
	require.True(t, s.Start())
	waitEvent(t, started, 2*time.Second)

	s.Cleanup()

	// Сессия, очищенная посреди приема ответов, не принимает команды
	assert.False(t, s.SubmitAnswer("p1", 1))
	assert.False(t, s.Pause())
	assert.False(t, s.Resume())
}

func TestSession_CleanupCancelsTimers(t *testing.T) {
	s := NewSession("ABCDEF", newTestQuiz(1, fastSettings()), testConfig())

	started := subscribe(s, EventQuestionStarted)
	results := subscribe(s, EventQuestionResults)

	require.True(t, s.AddParticipant("p1", "Аян"))
	require.True(t, s.Start())
	waitEvent(t, started, 2*time.Second)

	s.Cleanup()

	// Дедлайн вопроса не должен сработать после очистки
	select {
	case <-results:
		t.Fatal("таймер сработал после очистки сессии")
	case <-time.After(1500 * time.Millisecond):
	}
}
