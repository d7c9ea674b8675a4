package session

import "time"

// timerHandle оборачивает time.Timer в отменяемую задачу.
// Отмена не гарантирует, что колбэк не начал выполняться, поэтому каждый
// колбэк дополнительно сверяет эпоху и состояние сессии под блокировкой.
type timerHandle struct {
	timer *time.Timer
}

func newTimerHandle(d time.Duration, fn func()) *timerHandle {
	return &timerHandle{timer: time.AfterFunc(d, fn)}
}

// cancel останавливает таймер, если он еще не сработал
func (h *timerHandle) cancel() {
	if h != nil && h.timer != nil {
		h.timer.Stop()
	}
}
