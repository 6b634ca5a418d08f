package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"steaming-robot/internal/util"
)

// AMQPConfig 消息队列连接参数
type AMQPConfig struct {
	URL              string
	InputExchange    string
	OutputExchange   string
	InputRoutingKey  string
	OutputRoutingKey string
	Prefetch         int
}

// AMQP 基于 RabbitMQ topic exchange 的输入/输出传输
// 输入使用独占的临时队列，消息在决策发布后手动确认
type AMQP struct {
	cfg    AMQPConfig
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	logger *slog.Logger
}

// DialAMQP 连接消息队列并声明输入/输出 exchange 与临时队列
func DialAMQP(cfg AMQPConfig, logger *slog.Logger) (*AMQP, error) {
	logger = logger.With("component", "amqp")
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}

	logger.Info("连接 AMQP 服务", "url", redactURL(cfg.URL))
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 AMQP 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("打开 AMQP channel 失败: %w", err)
	}

	a := &AMQP{cfg: cfg, conn: conn, ch: ch, logger: logger}
	if err := a.declare(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *AMQP) declare() error {
	a.logger.Info("声明输入 exchange", "exchange", a.cfg.InputExchange)
	if err := a.ch.ExchangeDeclare(a.cfg.InputExchange, amqp.ExchangeTopic, false, false, false, false, nil); err != nil {
		return fmt.Errorf("声明输入 exchange 失败: %w", err)
	}

	q, err := a.ch.QueueDeclare("", false, false, true, false, nil)
	if err != nil {
		return fmt.Errorf("声明临时队列失败: %w", err)
	}
	a.queue = q.Name

	a.logger.Info("绑定输入队列", "queue", q.Name, "routing_key", a.cfg.InputRoutingKey)
	if err := a.ch.QueueBind(q.Name, a.cfg.InputRoutingKey, a.cfg.InputExchange, false, nil); err != nil {
		return fmt.Errorf("绑定输入队列失败: %w", err)
	}

	a.logger.Info("声明输出 exchange", "exchange", a.cfg.OutputExchange)
	if err := a.ch.ExchangeDeclare(a.cfg.OutputExchange, amqp.ExchangeTopic, false, false, false, false, nil); err != nil {
		return fmt.Errorf("声明输出 exchange 失败: %w", err)
	}

	// 一次只投递 prefetch 条未确认消息，保证同一时刻只有一个事件在评估
	return a.ch.Qos(a.cfg.Prefetch, 0, false)
}

// Consume 实现 Consumer
func (a *AMQP) Consume(ctx context.Context) (<-chan Delivery, error) {
	msgs, err := a.ch.ConsumeWithContext(ctx, a.queue, "", false, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("订阅输入队列失败: %w", err)
	}

	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					a.logger.Warn("输入队列已关闭")
					return
				}
				d := a.toDelivery(m)
				select {
				case out <- d:
				case <-ctx.Done():
					_ = d.Nack(true)
					return
				}
			}
		}
	}()
	a.logger.Info("等待入站消息", "queue", a.queue)
	return out, nil
}

func (a *AMQP) toDelivery(m amqp.Delivery) Delivery {
	id := m.MessageId
	if id == "" {
		id = strconv.FormatUint(m.DeliveryTag, 10) + "-" + util.NewTraceID()
	}
	tag := m.DeliveryTag
	return NewDelivery(id, m.Body,
		func() error { return a.ch.Ack(tag, false) },
		func(requeue bool) error { return a.ch.Nack(tag, false, requeue) },
	)
}

// Publish 实现 Publisher，发布到输出 exchange
func (a *AMQP) Publish(ctx context.Context, body []byte) error {
	msg := amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   time.Now(),
		Body:        body,
	}
	if traceID, ok := util.TraceIDFromContext(ctx); ok {
		msg.CorrelationId = traceID
	}
	if err := a.ch.PublishWithContext(ctx, a.cfg.OutputExchange, a.cfg.OutputRoutingKey, false, false, msg); err != nil {
		return fmt.Errorf("发布决策失败: %w", err)
	}
	return nil
}

// PublishTo 发布到任意 exchange，用于事件注入工具
func (a *AMQP) PublishTo(ctx context.Context, exchange, routingKey string, body []byte) error {
	return a.ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   util.NewTraceID(),
		Timestamp:   time.Now(),
		Body:        body,
	})
}

// Close 关闭 channel 与连接
func (a *AMQP) Close() error {
	if a.ch != nil {
		_ = a.ch.Close()
	}
	if a.conn != nil && !a.conn.IsClosed() {
		return a.conn.Close()
	}
	return nil
}

// redactURL 去掉连接串中的密码
func redactURL(raw string) string {
	uri, err := amqp.ParseURI(raw)
	if err != nil {
		return "invalid-url"
	}
	uri.Password = ""
	return uri.String()
}
