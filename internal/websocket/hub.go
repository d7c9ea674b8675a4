package websocket

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/yourusername/livequiz-api/internal/session"
)

// Hub поддерживает комнаты WebSocket-клиентов по кодам сессий
// и ретранслирует в них события живых сессий.
// Медленный клиент отбрасывается, а не блокирует рассылку.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	shutdown   chan struct{}
	once       sync.Once

	// Вызывается после удаления клиента из комнаты; используется для пометки
	// участника сессии отключенным. Может быть nil.
	onDisconnect func(sessionCode, participantID string)
}

// NewHub создает новый хаб
func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client, 16),
		unregister: make(chan *Client, 16),
		shutdown:   make(chan struct{}),
	}
}

// SetDisconnectHandler устанавливает обработчик отключения клиента.
// Должен вызываться до Run.
func (h *Hub) SetDisconnectHandler(fn func(sessionCode, participantID string)) {
	h.onDisconnect = fn
}

// Run обрабатывает регистрацию и отключение клиентов.
// Запускается в отдельной горутине из композиционного корня.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			room, ok := h.rooms[client.sessionCode]
			if !ok {
				room = make(map[*Client]bool)
				h.rooms[client.sessionCode] = room
			}
			room[client] = true
			total := len(room)
			h.mu.Unlock()
			log.Printf("[Hub] Клиент подключен к сессии %s (в комнате: %d)", client.sessionCode, total)

		case client := <-h.unregister:
			h.removeClient(client)

		case <-h.shutdown:
			h.closeAll()
			return
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[client.sessionCode]
	if !ok {
		return
	}
	if _, registered := room[client]; !registered {
		return
	}
	delete(room, client)
	close(client.send)
	if len(room) == 0 {
		delete(h.rooms, client.sessionCode)
	}
	log.Printf("[Hub] Клиент отключен от сессии %s (в комнате: %d)", client.sessionCode, len(room))

	if h.onDisconnect != nil && client.ParticipantID != "" {
		go h.onDisconnect(client.sessionCode, client.ParticipantID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for code, room := range h.rooms {
		for client := range room {
			close(client.send)
		}
		delete(h.rooms, code)
	}
	log.Println("[Hub] Все комнаты закрыты")
}

// Shutdown останавливает цикл хаба и закрывает все клиентские каналы
func (h *Hub) Shutdown() {
	h.once.Do(func() {
		close(h.shutdown)
	})
}

// requestRegister ставит клиента в очередь регистрации.
// После Shutdown цикл Run уже не читает канал, поэтому отбор по shutdown
// не дает горутине клиента зависнуть на отправке.
func (h *Hub) requestRegister(client *Client) {
	select {
	case h.register <- client:
	case <-h.shutdown:
	}
}

// requestUnregister ставит клиента в очередь отключения; см. requestRegister
func (h *Hub) requestUnregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.shutdown:
	}
}

// RoomSize возвращает количество клиентов в комнате сессии
func (h *Hub) RoomSize(sessionCode string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[sessionCode])
}

// BroadcastToSession отправляет сообщение всем клиентам комнаты.
// Клиент с переполненным буфером отбрасывается.
func (h *Hub) BroadcastToSession(sessionCode string, message []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room := h.rooms[sessionCode]
	for client := range room {
		select {
		case client.send <- message:
		default:
			delete(room, client)
			close(client.send)
			log.Printf("[Hub] Медленный клиент отброшен из сессии %s", sessionCode)
			if h.onDisconnect != nil && client.ParticipantID != "" {
				go h.onDisconnect(sessionCode, client.ParticipantID)
			}
		}
	}
}

// wireEvent - транспортный конверт события
type wireEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// clientQuestion - вопрос в том виде, в котором его видят участники:
// без правильного варианта
type clientQuestion struct {
	QuestionIndex  int      `json:"question_index"`
	Text           string   `json:"text"`
	Options        []string `json:"options"`
	TimeLimitSec   int      `json:"time_limit"`
	TotalQuestions int      `json:"total_questions"`
}

// RelaySessionEvent реализует service.EventRelay: ретранслирует событие
// сессии в комнату соответствующего кода. Правильный вариант ответа
// вырезается из question_started перед отправкой участникам.
func (h *Hub) RelaySessionEvent(evt session.Event) {
	data := evt.Data
	if p, ok := evt.Data.(session.QuestionStartedPayload); ok {
		data = clientQuestion{
			QuestionIndex:  p.QuestionIndex,
			Text:           p.Question.Text,
			Options:        p.Question.Options,
			TimeLimitSec:   p.TimeLimitSec,
			TotalQuestions: p.TotalQuestions,
		}
	}

	message, err := json.Marshal(wireEvent{Type: string(evt.Type), Data: data})
	if err != nil {
		log.Printf("[Hub] ОШИБКА сериализации события %s для сессии %s: %v", evt.Type, evt.SessionCode, err)
		return
	}
	h.BroadcastToSession(evt.SessionCode, message)
}
