package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"HealthCheckIn/internal/model"
	"HealthCheckIn/pkg/logger"
	"HealthCheckIn/storage/mq"
)

// AMQPBridge 通过 fanout 交换机在多个进程间传递"状态已变化"通知
// 出站：作为 Bus 的 forwarder 发布；入站：消费后回放到本地 Bus，跳过自己发出的消息
type AMQPBridge struct {
	bus      *Bus
	publish  func(ctx context.Context, exchange, messageID string, body any) error
	exchange string
}

func NewAMQPBridge(bus *Bus, exchange string) *AMQPBridge {
	return &AMQPBridge{
		bus:      bus,
		exchange: exchange,
		publish: func(ctx context.Context, exchange, messageID string, body any) error {
			return mq.PublishMessage(ctx, exchange, "", messageID, body)
		},
	}
}

// Publish 实现 Publisher
func (a *AMQPBridge) Publish(ctx context.Context, evt model.StateChangedEvent) error {
	if err := a.publish(ctx, a.exchange, evt.MessageID, evt); err != nil {
		return fmt.Errorf("failed to forward state-changed event: %w", err)
	}
	return nil
}

// Run 声明交换机并持续消费，连接断开后按退避重试，直到 ctx 取消
func (a *AMQPBridge) Run(ctx context.Context) {
	log := logger.Named("amqp_bridge").With(zap.String("exchange", a.exchange))
	backoff := time.Second

	for {
		err := mq.DeclareFanout(a.exchange)
		if err == nil {
			err = mq.ConsumeFanout(ctx, mq.ConsumeOptions{
				Exchange:      a.exchange,
				ConsumerTag:   "agent-" + a.bus.Origin(),
				PrefetchCount: 16,
				Handler:       a.handle,
			})
		}
		if ctx.Err() != nil {
			return
		}

		log.Warn("Event consumer stopped, retrying", zap.Error(err), zap.Duration("backoff", backoff))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

func (a *AMQPBridge) handle(_ context.Context, d amqp.Delivery) error {
	evt, err := decodeEvent(d.Body)
	if err != nil {
		return err
	}
	if evt.Origin == a.bus.Origin() {
		return nil
	}

	logger.Logger.Debug("Replaying remote state-changed event",
		zap.String("message_id", evt.MessageID),
		zap.String("origin", evt.Origin),
		zap.String("reason", evt.Reason),
	)
	a.bus.Deliver(evt)
	return nil
}

func decodeEvent(body []byte) (model.StateChangedEvent, error) {
	var evt model.StateChangedEvent
	if err := json.Unmarshal(body, &evt); err != nil {
		return model.StateChangedEvent{}, fmt.Errorf("failed to unmarshal state-changed event: %w", err)
	}
	return evt, nil
}
