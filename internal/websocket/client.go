package websocket

import (
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Время, которое разрешено писать сообщение клиенту.
	writeWait = 10 * time.Second

	// Время, которое разрешено клиенту читать следующее сообщение.
	pongWait = 30 * time.Second

	// Периодичность отправки ping-сообщений клиенту.
	pingPeriod = (pongWait * 9) / 10

	// Максимальный размер входящего сообщения
	maxMessageSize = 512

	// Размер буфера канала отправки сообщений клиенту
	clientBufferSize = 128
)

// Client является посредником между WebSocket-соединением и хабом.
type Client struct {
	// Уникальный ID соединения (не участника: один участник может
	// переподключаться с новым соединением)
	ConnectionID string

	// ID участника сессии; пустой для наблюдателей
	ParticipantID string

	hub  *Hub
	conn *websocket.Conn

	sessionCode string

	// Буферизованный канал для исходящих сообщений
	send chan []byte
}

// NewClient создает нового клиента комнаты сессии
func NewClient(hub *Hub, conn *websocket.Conn, sessionCode, participantID string) *Client {
	return &Client{
		ConnectionID:  uuid.New().String(),
		ParticipantID: participantID,
		hub:           hub,
		conn:          conn,
		sessionCode:   sessionCode,
		send:          make(chan []byte, clientBufferSize),
	}
}

// SessionCode возвращает код сессии, к комнате которой подключен клиент
func (c *Client) SessionCode() string {
	return c.sessionCode
}

// StartPumps регистрирует клиента в хабе и запускает горутины чтения и записи.
// messageHandler вызывается для каждого входящего сообщения; ненулевая ошибка
// закрывает соединение.
func (c *Client) StartPumps(messageHandler func(message []byte, client *Client) error) {
	c.hub.requestRegister(c)
	go c.writePump()
	go c.readPump(messageHandler)
}

// readPump читает сообщения от клиента и передает их обработчику
func (c *Client) readPump(messageHandler func(message []byte, client *Client) error) {
	defer func() {
		c.hub.requestUnregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WSClient] Ошибка чтения (Conn: %s, сессия %s): %v", c.ConnectionID, c.sessionCode, err)
			}
			break
		}
		if err := messageHandler(message, c); err != nil {
			log.Printf("[WSClient] Обработчик сообщения вернул ошибку (Conn: %s): %v", c.ConnectionID, err)
			break
		}
	}
}

// writePump отправляет сообщения из канала send в WebSocket-соединение
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Хаб закрыл канал
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
