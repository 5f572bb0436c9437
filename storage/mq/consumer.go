package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"HealthCheckIn/config"
	"HealthCheckIn/pkg/logger"
	mqotel "HealthCheckIn/pkg/mq"
)

type MessageHandler func(ctx context.Context, d amqp.Delivery) error

type ConsumeOptions struct {
	Handler       MessageHandler
	Exchange      string
	ConsumerTag   string
	PrefetchCount int
}

// ConsumeFanout 为本进程声明一个独占的临时队列并绑定到 fanout 交换机，
// 阻塞消费直到 ctx 取消或 channel 关闭
func ConsumeFanout(ctx context.Context, opts ConsumeOptions) error {
	c := Connection()
	if c == nil {
		return fmt.Errorf("RabbitMQ connection is nil")
	}

	ch, err := c.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if opts.PrefetchCount > 0 {
		if err := ch.Qos(opts.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	// 名字留空由 broker 生成；exclusive + auto-delete，进程退出即删除
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", opts.Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s to %s: %w", q.Name, opts.Exchange, err)
	}

	msgs, err := ch.Consume(q.Name, opts.ConsumerTag, false, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.Logger.Info("Started consuming messages",
		zap.String("exchange", opts.Exchange),
		zap.String("queue", q.Name),
		zap.String("consumer_tag", opts.ConsumerTag),
	)

	ic := mqotel.NewInstrumentedChannel(ch, config.Cfg.ServiceName)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consumer channel closed")
			}

			msgCtx, span := ic.StartDelivery(ctx, d)
			if err := opts.Handler(msgCtx, d); err != nil {
				logger.Logger.Error("Failed to process message",
					zap.String("exchange", opts.Exchange),
					zap.String("message_id", d.MessageId),
					zap.Error(err),
				)
				// 通知类消息，处理失败不重投
				_ = d.Nack(false, false)
			} else {
				_ = d.Ack(false)
			}
			span.End()
		}
	}
}
