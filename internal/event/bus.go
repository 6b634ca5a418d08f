package event

import (
	"sync"
	"time"

	"steaming-robot/internal/fsm"
	"steaming-robot/internal/types"
)

// EventType 定义事件的类型
type EventType string

// 定义所有业务事件类型
const (
	EventReceived   EventType = "EventReceived"   // 入站事件已进入调度队列
	DecisionMade    EventType = "DecisionMade"    // 决策已完成 (任一终态)
	UploadFinished  EventType = "UploadFinished"  // 机器人指令文件推送结束
	ArchiveFinished EventType = "ArchiveFinished" // 指令文件归档结束
)

// Event 结构体定义了事件的数据负载
type Event struct {
	Type         EventType
	EventID      string // 传输层消息 ID (仅 EventReceived)
	TraceID      string
	SerialNumber string
	Outcome      fsm.State             // 决策终态 (仅 DecisionMade)
	Record       *types.DecisionRecord // 决策记录 (仅 DecisionMade)
	Sink         string                // 推送目标名称 (仅上传/归档事件)
	Duration     time.Duration
	Error        error
	At           time.Time
}

// Handler 是事件处理函数的签名
type Handler func(e Event)

// Bus 是一个简单的内存事件总线
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	wg       sync.WaitGroup
}

// NewBus 创建一个新的事件总线实例
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe 订阅一个特定类型的事件
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Publish 发布一个事件，所有订阅了该事件类型的处理器都将被异步调用
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, handler := range b.handlers[e.Type] {
		b.wg.Add(1)
		go func(h Handler) {
			defer b.wg.Done()
			h(e)
		}(handler)
	}
}

// Drain 等待所有已发布事件的处理器执行完毕，用于停机和测试
func (b *Bus) Drain() {
	b.wg.Wait()
}
