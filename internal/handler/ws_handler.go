package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/yourusername/livequiz-api/internal/service"
	"github.com/yourusername/livequiz-api/internal/websocket"
)

// WSHandler обрабатывает WebSocket соединения комнат сессий
type WSHandler struct {
	wsHub          *websocket.Hub
	wsManager      *websocket.Manager
	sessionService *service.SessionService
}

// NewWSHandler создает новый обработчик WebSocket
func NewWSHandler(
	wsHub *websocket.Hub,
	wsManager *websocket.Manager,
	sessionService *service.SessionService,
) *WSHandler {
	handler := &WSHandler{
		wsHub:          wsHub,
		wsManager:      wsManager,
		sessionService: sessionService,
	}

	// Регистрируем обработчики сообщений один раз при создании обработчика
	handler.registerMessageHandlers()

	// Отключение WebSocket помечает участника отключенным в сессии
	wsHub.SetDisconnectHandler(func(sessionCode, participantID string) {
		sess, err := sessionService.GetSession(sessionCode)
		if err != nil {
			return
		}
		sess.RemoveParticipant(participantID)
	})

	return handler
}

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Если Origin пустой - это не браузерный клиент (мобильное приложение, curl и т.д.)
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}

		allowedOrigins := []string{
			"http://localhost:5173",
			"http://localhost:8000",
			"http://localhost:3000",
		}
		for _, allowed := range allowedOrigins {
			if origin == allowed {
				return true
			}
		}

		log.Printf("WebSocket: rejected unauthorized origin: %s", origin)
		return false
	},
	EnableCompression: true,
}

// HandleConnection обрабатывает входящее WebSocket соединение.
// Код сессии берется из URL, participant_id из query-параметра;
// подключение без participant_id дает наблюдателя (только чтение событий).
func (h *WSHandler) HandleConnection(c *gin.Context) {
	code := c.MustGet("sessionCode").(string)

	// Сессия должна существовать до апгрейда
	if _, err := h.sessionService.GetSession(code); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	participantID := c.Query("participant_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[WSHandler] Ошибка апгрейда соединения для сессии %s: %v", code, err)
		return
	}

	client := websocket.NewClient(h.wsHub, conn, code, participantID)
	client.StartPumps(h.wsManager.HandleMessage)
	log.Printf("[WSHandler] WebSocket соединение установлено: сессия %s, участник %q", code, participantID)
}

// wsAnswerPayload - данные сообщения answer от клиента
type wsAnswerPayload struct {
	Answer *int `json:"answer"`
}

// registerMessageHandlers регистрирует обработчики входящих WebSocket-сообщений
func (h *WSHandler) registerMessageHandlers() {
	// Ответ на текущий вопрос через WebSocket - альтернатива REST-эндпоинту
	h.wsManager.RegisterHandler("answer", func(data json.RawMessage, client *websocket.Client) error {
		if client.ParticipantID == "" {
			return errors.New("observers cannot submit answers")
		}

		var payload wsAnswerPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("invalid answer payload: %w", err)
		}
		if payload.Answer == nil {
			return errors.New("answer is required")
		}

		sess, err := h.sessionService.GetSession(client.SessionCode())
		if err != nil {
			return err
		}
		if !sess.SubmitAnswer(client.ParticipantID, *payload.Answer) {
			return errors.New("answer rejected")
		}
		return nil
	})

	// Ping уровня приложения для клиентов, не поддерживающих ping/pong фреймы
	h.wsManager.RegisterHandler("ping", func(data json.RawMessage, client *websocket.Client) error {
		return nil
	})
}
