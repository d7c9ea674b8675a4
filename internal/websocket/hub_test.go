package websocket

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/livequiz-api/internal/domain/entity"
	"github.com/yourusername/livequiz-api/internal/session"
)

func newTestClient(h *Hub, code, participantID string) *Client {
	return &Client{
		ConnectionID:  "conn-" + participantID,
		ParticipantID: participantID,
		hub:           h,
		sessionCode:   code,
		send:          make(chan []byte, clientBufferSize),
	}
}

// ============================================================================
// Комнаты и рассылка
// ============================================================================

func TestHub_BroadcastToSession(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Shutdown()

	c1 := newTestClient(h, "AAAA22", "p1")
	c2 := newTestClient(h, "AAAA22", "p2")
	other := newTestClient(h, "BBBB33", "p3")

	h.requestRegister(c1)
	h.requestRegister(c2)
	h.requestRegister(other)

	require.Eventually(t, func() bool {
		return h.RoomSize("AAAA22") == 2 && h.RoomSize("BBBB33") == 1
	}, time.Second, 10*time.Millisecond)

	h.BroadcastToSession("AAAA22", []byte("hello"))

	assert.Equal(t, []byte("hello"), <-c1.send)
	assert.Equal(t, []byte("hello"), <-c2.send)
	assert.Empty(t, other.send, "сообщение не должно попасть в чужую комнату")
}

func TestHub_RelayStripsCorrectOption(t *testing.T) {
	h := NewHub()
	go h.Run()
	defer h.Shutdown()

	c := newTestClient(h, "AAAA22", "p1")
	h.requestRegister(c)
	require.Eventually(t, func() bool { return h.RoomSize("AAAA22") == 1 }, time.Second, 10*time.Millisecond)

	h.RelaySessionEvent(session.Event{
		Type:        session.EventQuestionStarted,
		SessionCode: "AAAA22",
		Data: session.QuestionStartedPayload{
			QuestionIndex: 0,
			Question: entity.Question{
				Text:          "Столица Казахстана?",
				Options:       entity.StringArray{"Алматы", "Астана"},
				CorrectOption: 1,
			},
			CorrectOption:  1,
			TimeLimitSec:   30,
			TotalQuestions: 5,
		},
	})

	raw := <-c.send
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "question_started", decoded["type"])

	data, ok := decoded["data"].(map[string]interface{})
	require.True(t, ok)
	assert.NotContains(t, data, "correct_option")
	assert.Equal(t, "Столица Казахстана?", data["text"])
}

// ============================================================================
// Остановка хаба
// ============================================================================

func TestHub_ShutdownUnblocksPendingDisconnects(t *testing.T) {
	h := NewHub()
	go h.Run()
	h.Shutdown()

	// После остановки цикл Run больше не читает очереди; отключающиеся
	// клиенты не должны зависать, даже когда их больше емкости буфера
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			h.requestUnregister(newTestClient(h, "AAAA22", "p"))
			h.requestRegister(newTestClient(h, "AAAA22", "p"))
		}(i)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("горутины клиентов зависли на очередях остановленного хаба")
	}
}
