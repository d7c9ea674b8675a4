package websocket

import (
	"encoding/json"
	"fmt"
	"log"
)

// inboundMessage представляет структуру входящего WebSocket-сообщения
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Manager диспетчеризует входящие WebSocket-сообщения по типу
type Manager struct {
	hub            *Hub
	messageHandler map[string]func(data json.RawMessage, client *Client) error
}

// NewManager создает новый менеджер WebSocket
func NewManager(hub *Hub) *Manager {
	return &Manager{
		hub:            hub,
		messageHandler: make(map[string]func(data json.RawMessage, client *Client) error),
	}
}

// RegisterHandler регистрирует обработчик для определенного типа сообщений
func (m *Manager) RegisterHandler(messageType string, handler func(data json.RawMessage, client *Client) error) {
	m.messageHandler[messageType] = handler
	log.Printf("[WSManager] Зарегистрирован обработчик для сообщений типа: %s", messageType)
}

// HandleMessage обрабатывает входящее сообщение от клиента.
// Возвращает error, если соединение нужно закрыть.
func (m *Manager) HandleMessage(message []byte, client *Client) error {
	var msg inboundMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		m.SendErrorToClient(client, "invalid_message_format", "Invalid JSON format")
		return err
	}

	handler, ok := m.messageHandler[msg.Type]
	if !ok {
		m.SendErrorToClient(client, "unknown_message_type", fmt.Sprintf("Unknown message type: %s", msg.Type))
		return nil // Неизвестный тип - не закрываем соединение
	}

	if err := handler(msg.Data, client); err != nil {
		// Ошибки обработчиков не фатальны: сообщаем клиенту и продолжаем
		m.SendErrorToClient(client, "handler_error", err.Error())
	}
	return nil
}

// SendErrorToClient отправляет стандартизированное сообщение об ошибке клиенту.
// Этот метод НЕ закрывает соединение.
func (m *Manager) SendErrorToClient(client *Client, code string, message string) {
	payload, err := json.Marshal(wireEvent{
		Type: "error",
		Data: map[string]string{"code": code, "message": message},
	})
	if err != nil {
		return
	}
	select {
	case client.send <- payload:
	default:
		log.Printf("[WSManager] Не удалось отправить ошибку клиенту %s: буфер переполнен", client.ConnectionID)
	}
}
