package session

import (
	"log"
	"sync"
	"time"

	"github.com/yourusername/livequiz-api/internal/domain/entity"
)

// EventType определяет закрытый набор типов событий сессии
type EventType string

const (
	EventParticipantJoin  EventType = "participant_join"
	EventParticipantLeave EventType = "participant_leave"
	EventStateChange      EventType = "state_change"
	EventCountdownTick    EventType = "countdown_tick"
	EventQuestionStarted  EventType = "question_started"
	EventAnswerReceived   EventType = "answer_received"
	EventQuestionResults  EventType = "question_results"
	EventLeaderboardShow  EventType = "leaderboard_show"
	EventQuizFinished     EventType = "quiz_finished"
)

// AllEventTypes перечисляет полный закрытый набор типов событий
var AllEventTypes = []EventType{
	EventParticipantJoin,
	EventParticipantLeave,
	EventStateChange,
	EventCountdownTick,
	EventQuestionStarted,
	EventAnswerReceived,
	EventQuestionResults,
	EventLeaderboardShow,
	EventQuizFinished,
}

// Event представляет событие, исходящее от сессии.
// Data всегда содержит фиксированный для данного типа payload (см. *Payload типы).
type Event struct {
	Type        EventType   `json:"type"`
	SessionCode string      `json:"session_code"`
	Data        interface{} `json:"data"`
}

// Handler - функция-подписчик на события сессии
type Handler func(evt Event)

// ParticipantPayload - payload событий participant_join / participant_leave
type ParticipantPayload struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name"`
	Score         int    `json:"score"`
	Participants  int    `json:"participants"`
}

// StateChangePayload - payload события state_change
type StateChangePayload struct {
	OldState State `json:"old_state"`
	NewState State `json:"new_state"`
}

// CountdownPayload - payload события countdown_tick
type CountdownPayload struct {
	SecondsLeft int `json:"seconds_left"`
}

// QuestionStartedPayload - payload события question_started.
// Содержит полный вопрос, включая правильный вариант, для управляющей стороны;
// транспортный слой сам решает, что ретранслировать участникам.
type QuestionStartedPayload struct {
	QuestionIndex  int             `json:"question_index"`
	Question       entity.Question `json:"question"`
	CorrectOption  int             `json:"correct_option"`
	TimeLimitSec   int             `json:"time_limit"`
	TotalQuestions int             `json:"total_questions"`
	StartedAt      time.Time       `json:"started_at"`
}

// AnswerReceivedPayload - payload события answer_received
type AnswerReceivedPayload struct {
	ParticipantID   string  `json:"participant_id"`
	Answer          int     `json:"answer"`
	ResponseTimeSec float64 `json:"response_time"`
	AnsweredCount   int     `json:"answered_count"`
}

// LeaderboardPayload - payload события leaderboard_show
type LeaderboardPayload struct {
	Entries []LeaderboardEntry `json:"entries"`
}

// Размер буфера очереди событий одного подписчика
const subscriberQueueSize = 256

// subscriber владеет очередью событий и единственной горутиной, которая
// ее разгребает. Одна горутина на подписчика сохраняет порядок доставки.
type subscriber struct {
	queue chan Event
}

func newSubscriber(handler Handler) *subscriber {
	sub := &subscriber{queue: make(chan Event, subscriberQueueSize)}
	go func() {
		for evt := range sub.queue {
			sub.deliver(handler, evt)
		}
	}()
	return sub
}

// enqueue ставит событие в очередь без блокировки;
// при переполнении событие отбрасывается с записью в лог
func (sub *subscriber) enqueue(evt Event) {
	select {
	case sub.queue <- evt:
	default:
		log.Printf("[Session %s] Очередь подписчика %s переполнена, событие отброшено", evt.SessionCode, evt.Type)
	}
}

// deliver вызывает обработчик, перехватывая его панику
func (sub *subscriber) deliver(handler Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Session %s] Паника в подписчике события %s: %v", evt.SessionCode, evt.Type, r)
		}
	}()
	handler(evt)
}

// dispatcher рассылает события подписчикам. Каждому подписчику события
// доставляются в порядке публикации; медленный подписчик не блокирует
// конечный автомат сессии - при переполнении его очереди событие
// отбрасывается с записью в лог.
type dispatcher struct {
	mu     sync.RWMutex
	subs   map[EventType][]*subscriber
	all    []*subscriber
	closed bool
}

func newDispatcher() *dispatcher {
	return &dispatcher{
		subs: make(map[EventType][]*subscriber),
	}
}

// on регистрирует подписчика на событие указанного типа
func (d *dispatcher) on(evtType EventType, handler Handler) {
	if handler == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.subs[evtType] = append(d.subs[evtType], newSubscriber(handler))
}

// onAll регистрирует одного подписчика на все типы событий.
// В отличие от отдельных подписок через on, единственная очередь
// сохраняет порядок публикации и между типами событий.
func (d *dispatcher) onAll(handler Handler) {
	if handler == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.all = append(d.all, newSubscriber(handler))
}

// emit ставит событие в очередь каждому подписчику данного типа.
// Блокировка удерживается на время постановки, чтобы clear не закрыл
// очередь между выборкой подписчиков и отправкой.
func (d *dispatcher) emit(evt Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, sub := range d.subs[evt.Type] {
		sub.enqueue(evt)
	}
	for _, sub := range d.all {
		sub.enqueue(evt)
	}
}

// clear удаляет всех подписчиков и останавливает их горутины
func (d *dispatcher) clear() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, subs := range d.subs {
		for _, sub := range subs {
			close(sub.queue)
		}
	}
	for _, sub := range d.all {
		close(sub.queue)
	}
	d.subs = make(map[EventType][]*subscriber)
	d.all = nil
	d.closed = true
}
