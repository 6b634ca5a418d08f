package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"steaming-robot/internal/decision"
	"steaming-robot/internal/event"
	"steaming-robot/internal/metrics"
	"steaming-robot/internal/persistence"
	"steaming-robot/internal/transport"
	"steaming-robot/internal/types"
	"steaming-robot/internal/util"
)

// Archiver 指令文件归档
type Archiver interface {
	Name() string
	Archive(ctx context.Context, meta types.Metadata, rows []types.CommandRow) (string, error)
}

// job 队列中的一个入站事件
type job struct {
	id       string
	body     []byte
	delivery *transport.Delivery // HTTP 注入和 WAL 重放的事件没有
}

// Dispatcher 按到达顺序逐个处理入站事件：
// 记录 WAL → 决策 → 合并到原消息 → 发布 → 归档 → 标记完成 → 确认
// 只有一个 worker，同一时刻最多一个事件在评估
type Dispatcher struct {
	queue     []*job
	mu        sync.Mutex
	cond      *sync.Cond
	wg        sync.WaitGroup
	orch      *decision.Orchestrator
	publisher transport.Publisher
	archiver  Archiver // 可以为 nil
	wal       *persistence.WAL
	recorder  *metrics.Recorder // 可以为 nil
	bus       *event.Bus
	logger    *slog.Logger
}

// NewDispatcher 创建一个新的 Dispatcher 实例
func NewDispatcher(orch *decision.Orchestrator, publisher transport.Publisher, archiver Archiver,
	wal *persistence.WAL, recorder *metrics.Recorder, bus *event.Bus, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		orch:      orch,
		publisher: publisher,
		archiver:  archiver,
		wal:       wal,
		recorder:  recorder,
		bus:       bus,
		logger:    logger.With("component", "dispatcher"),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// RecoverEvents 重新排队 WAL 中未完成的事件，在 Start 之前调用
func (d *Dispatcher) RecoverEvents() (int, error) {
	if d.wal == nil {
		return 0, nil
	}
	pending, err := d.wal.Recover()
	if err != nil {
		return 0, err
	}
	for _, p := range pending {
		d.logger.Info("重新加载未完成的事件", "event_id", p.ID)
		d.enqueue(&job{id: p.ID, body: p.Body}) // 内部提交，不重复写 WAL
	}
	return len(pending), nil
}

// Submit 提交一个入站事件。先写入 WAL 再放入内存队列
func (d *Dispatcher) Submit(id string, body []byte) {
	d.submit(&job{id: id, body: body})
}

func (d *Dispatcher) submit(j *job) {
	if d.wal != nil {
		if err := d.wal.Append(j.id, j.body); err != nil {
			d.logger.Error("写入 WAL 失败", "error", err, "event_id", j.id)
		}
	}
	d.enqueue(j)
}

func (d *Dispatcher) enqueue(j *job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, j)
	if d.recorder != nil {
		d.recorder.EventsInQueue.Inc()
	}
	d.publish(event.Event{Type: event.EventReceived, EventID: j.id})
	d.cond.Signal()
}

// Consume 从传输层接收事件并提交，直到通道关闭或 ctx 取消
func (d *Dispatcher) Consume(ctx context.Context, consumer transport.Consumer) error {
	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		return err
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for del := range deliveries {
			del := del
			d.logger.Debug("收到入站消息", "event_id", del.ID)
			d.submit(&job{id: del.ID, body: del.Body, delivery: &del})
		}
	}()
	return nil
}

// Start 启动处理循环，阻塞直到 ctx 取消
func (d *Dispatcher) Start(ctx context.Context) {
	// 监听上下文取消信号，用于优雅停机
	go func() {
		<-ctx.Done()
		d.mu.Lock()
		d.cond.Broadcast()
		d.mu.Unlock()
	}()

	for {
		d.mu.Lock()
		for len(d.queue) == 0 {
			if ctx.Err() != nil {
				d.mu.Unlock()
				return
			}
			d.cond.Wait()
		}
		if ctx.Err() != nil {
			d.mu.Unlock()
			return
		}
		j := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		if d.recorder != nil {
			d.recorder.EventsInQueue.Dec()
		}
		d.wg.Add(1)
		d.mu.Unlock()

		d.process(ctx, j)
		d.wg.Done()
	}
}

// Pending 队列中等待处理的事件数
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// process 处理单个事件，任何结果都会产生一条出站消息
func (d *Dispatcher) process(ctx context.Context, j *job) {
	traceID := util.NewTraceID()
	evCtx := util.ContextWithTraceID(ctx, traceID)
	logger := d.logger.With("trace_id", traceID, "event_id", j.id)
	start := time.Now()

	msg, err := DecodeMessage(j.body)
	var result decision.Decision
	if err != nil {
		result = d.orch.Reject(evCtx, msg.SerialNumber(), err)
	} else {
		result = d.orch.Decide(evCtx, msg.Event)
	}
	logger = logger.With("serial_number", msg.SerialNumber(), "outcome", result.Outcome)

	body, err := MergeDecision(msg.Raw, result.Record)
	if err != nil {
		logger.Error("序列化出站消息失败", "error", err)
		d.settle(logger, j, false)
		return
	}
	if err := d.publisher.Publish(evCtx, body); err != nil {
		logger.Error("发布决策失败", "error", err)
		d.settle(logger, j, false)
		return
	}

	if result.Record.UploadFTP && d.archiver != nil {
		d.archive(evCtx, logger, msg.Event.Metadata, result.Record.CommandRows)
	}

	if d.wal != nil {
		if err := d.wal.Complete(j.id); err != nil {
			logger.Warn("标记 WAL 完成失败", "error", err)
		}
	}
	d.settle(logger, j, true)
	logger.Info("事件处理完成", "duration", time.Since(start).Seconds())
}

func (d *Dispatcher) archive(ctx context.Context, logger *slog.Logger, meta types.Metadata, rows []types.CommandRow) {
	start := time.Now()
	name, err := d.archiver.Archive(ctx, meta, rows)
	traceID, _ := util.TraceIDFromContext(ctx)
	d.publish(event.Event{
		Type: event.ArchiveFinished, TraceID: traceID, SerialNumber: meta.SerialNumber,
		Sink: d.archiver.Name(), Duration: time.Since(start), Error: err,
	})
	if err != nil {
		logger.Warn("指令文件归档失败", "error", err)
		return
	}
	logger.Debug("指令文件已归档", "blob", name)
}

func (d *Dispatcher) publish(e event.Event) {
	if d.bus != nil {
		d.bus.Publish(e)
	}
}

// settle 确认或拒绝传输层的消息。拒绝的消息不重新入队，由 WAL 在重启后重放
func (d *Dispatcher) settle(logger *slog.Logger, j *job, ok bool) {
	if j.delivery == nil {
		return
	}
	var err error
	if ok {
		err = j.delivery.Ack()
	} else {
		err = j.delivery.Nack(false)
	}
	if err != nil {
		logger.Warn("确认消息失败", "error", err, "ack", ok)
	}
}

// WaitForCompletion 等待正在处理的事件和消费循环结束，用于优雅停机
func (d *Dispatcher) WaitForCompletion() {
	d.wg.Wait()
}
