package transport

import (
	"context"
	"errors"
)

// ErrClosed 传输已关闭
var ErrClosed = errors.New("transport: closed")

// Delivery 一条入站消息，处理完成后必须 Ack 或 Nack
type Delivery struct {
	ID   string
	Body []byte

	ack  func() error
	nack func(requeue bool) error
}

// NewDelivery 构造一条入站消息，ack/nack 可以为 nil
func NewDelivery(id string, body []byte, ack func() error, nack func(requeue bool) error) Delivery {
	return Delivery{ID: id, Body: body, ack: ack, nack: nack}
}

// Ack 确认消息已处理
func (d Delivery) Ack() error {
	if d.ack == nil {
		return nil
	}
	return d.ack()
}

// Nack 拒绝消息
func (d Delivery) Nack(requeue bool) error {
	if d.nack == nil {
		return nil
	}
	return d.nack(requeue)
}

// Consumer 入站事件来源
type Consumer interface {
	// Consume 返回消息通道，ctx 取消或连接关闭时通道被关闭
	Consume(ctx context.Context) (<-chan Delivery, error)
}

// Publisher 出站决策的去向
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}
