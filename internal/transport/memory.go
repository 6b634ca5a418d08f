package transport

import (
	"context"
	"strconv"
	"sync"
)

// Memory 进程内传输，用于测试和离线决策
type Memory struct {
	closeMu   sync.RWMutex // 保护 in 的发送与关闭
	mu        sync.Mutex
	in        chan Delivery
	published [][]byte
	acked     map[string]bool
	nacked    map[string]bool
	seq       int
	closed    bool
	notify    chan struct{}
}

// NewMemory 创建一个带缓冲的进程内传输
func NewMemory(buffer int) *Memory {
	return &Memory{
		in:     make(chan Delivery, buffer),
		acked:  make(map[string]bool),
		nacked: make(map[string]bool),
		notify: make(chan struct{}, 1),
	}
}

// Inject 放入一条入站消息，返回消息 ID
func (m *Memory) Inject(body []byte) (string, error) {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrClosed
	}
	m.seq++
	id := "mem-" + strconv.Itoa(m.seq)
	m.mu.Unlock()

	m.in <- NewDelivery(id, body,
		func() error { m.mark(m.acked, id); return nil },
		func(bool) error { m.mark(m.nacked, id); return nil },
	)
	return id, nil
}

func (m *Memory) mark(set map[string]bool, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set[id] = true
}

// Consume 实现 Consumer
func (m *Memory) Consume(ctx context.Context) (<-chan Delivery, error) {
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-m.in:
				if !ok {
					return
				}
				select {
				case out <- d:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Publish 实现 Publisher
func (m *Memory) Publish(_ context.Context, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.published = append(m.published, append([]byte(nil), body...))
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return nil
}

// Published 返回已发布消息的副本
func (m *Memory) Published() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.published))
	copy(out, m.published)
	return out
}

// Notify 每次发布后收到一个信号 (合并连续信号)
func (m *Memory) Notify() <-chan struct{} {
	return m.notify
}

// Acked 判断消息是否已确认
func (m *Memory) Acked(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.acked[id]
}

// Nacked 判断消息是否被拒绝
func (m *Memory) Nacked(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nacked[id]
}

// Close 关闭输入，Consume 返回的通道随之关闭
func (m *Memory) Close() error {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.in)
	}
	return nil
}
