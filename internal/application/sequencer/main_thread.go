package sequencer

import (
	"context"
	"sync"

	otelinfra "redeem-server/internal/infrastructure/observability/otel"
)

// MainThread ゲームに見える副作用（報酬、通知）を実行する単一のゴルーチン。
// 投入された関数は投入順に一つずつ実行される。
type MainThread struct {
	jobs   chan func()
	done   chan struct{}
	logger *otelinfra.Logger

	mu     sync.RWMutex
	closed bool
}

// NewMainThread 新しいMainThreadを作成し、起動する
func NewMainThread(queueSize int, logger *otelinfra.Logger) *MainThread {
	if queueSize <= 0 {
		queueSize = 256
	}
	m := &MainThread{
		jobs:   make(chan func(), queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go m.loop()
	return m
}

func (m *MainThread) loop() {
	defer close(m.done)
	for fn := range m.jobs {
		m.run(fn)
	}
}

func (m *MainThread) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn(context.Background(), "Main thread job panicked", map[string]interface{}{
				"panic": r,
			})
		}
	}()
	fn()
}

// Post 関数を投入。停止済みの場合はfalse。
func (m *MainThread) Post(fn func()) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return false
	}
	m.jobs <- fn
	return true
}

// Close 新規投入を止め、投入済みの関数が終わるまで待つ
func (m *MainThread) Close() {
	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.jobs)
	}
	m.mu.Unlock()
	<-m.done
}
