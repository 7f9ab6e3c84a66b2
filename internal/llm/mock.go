package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Mock is a scriptable Invoker for tests. Responses are served in order;
// when the script runs out it echoes the input. Thread-safe.
type Mock struct {
	mu        sync.Mutex
	responses []string
	err       error
	delay     time.Duration
	calls     []Request
}

// NewMock creates a mock that replies with the given responses in order.
func NewMock(responses ...string) *Mock {
	return &Mock{responses: responses}
}

// FailWith makes every subsequent Invoke return err.
func (m *Mock) FailWith(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// Delay makes each Invoke block for d (or until ctx is done).
func (m *Mock) Delay(d time.Duration) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Calls returns a copy of every request seen so far.
func (m *Mock) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

func (m *Mock) Invoke(ctx context.Context, req Request) (*Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	err := m.err
	delay := m.delay
	var text string
	if len(m.responses) > 0 {
		text = m.responses[0]
		m.responses = m.responses[1:]
	} else {
		text = fmt.Sprintf("echo: %s", req.Input)
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return &Result{Text: text}, nil
}
