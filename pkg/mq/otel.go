package mq

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

type mqMetrics struct {
	messagesTotal   metric.Int64Counter
	messageDuration metric.Float64Histogram
	publishErrors   metric.Int64Counter
}

var (
	instruments     *mqMetrics
	instrumentsOnce sync.Once
)

// getMetrics 首次使用时基于全局 MeterProvider 创建指标，未初始化 otel 时为 no-op
func getMetrics() *mqMetrics {
	instrumentsOnce.Do(func() {
		meter := otel.Meter("healthcheckin/rabbitmq")
		m := &mqMetrics{}
		var err error

		m.messagesTotal, err = meter.Int64Counter(
			"mq.messages.total",
			metric.WithDescription("Total number of RabbitMQ messages"),
			metric.WithUnit("{message}"),
		)
		if err != nil {
			otel.Handle(err)
		}

		m.messageDuration, err = meter.Float64Histogram(
			"mq.message.duration",
			metric.WithDescription("RabbitMQ message processing duration"),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5),
		)
		if err != nil {
			otel.Handle(err)
		}

		m.publishErrors, err = meter.Int64Counter(
			"mq.publish.errors",
			metric.WithDescription("Number of RabbitMQ publish errors"),
			metric.WithUnit("{error}"),
		)
		if err != nil {
			otel.Handle(err)
		}

		instruments = m
	})
	return instruments
}

// Publisher 被追踪包装的最小发布接口，测试中可以替换
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// InstrumentedChannel 为发布和消费添加 trace 上下文传播与指标
type InstrumentedChannel struct {
	ch          Publisher
	serviceName string
	propagators propagation.TextMapPropagator
	tracer      trace.Tracer
}

func NewInstrumentedChannel(ch Publisher, serviceName string) *InstrumentedChannel {
	return &InstrumentedChannel{
		ch:          ch,
		serviceName: serviceName,
		propagators: otel.GetTextMapPropagator(),
		tracer:      otel.Tracer(serviceName + ".rabbitmq"),
	}
}

// PublishWithContext 发布消息，trace 上下文注入到消息头
func (ic *InstrumentedChannel) PublishWithContext(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	startTime := time.Now()

	spanName := "rabbitmq.publish"
	if exchange != "" {
		spanName = "rabbitmq.publish." + exchange
	}
	ctx, span := ic.tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindProducer), trace.WithAttributes(
		semconv.MessagingSystem("rabbitmq"),
		semconv.MessagingMessageID(msg.MessageId),
		attribute.String("messaging.destination.name", exchange),
		attribute.String("messaging.rabbitmq.routing_key", routingKey),
	))
	defer span.End()

	headers := make(amqp.Table, len(msg.Headers))
	for k, v := range msg.Headers {
		headers[k] = v
	}
	ic.propagators.Inject(ctx, &MessageHeaderCarrier{Headers: headers})
	msg.Headers = headers

	err := ic.ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg)

	m := getMetrics()
	status := "success"
	if err != nil {
		status = "error"
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		m.publishErrors.Add(ctx, 1)
	}

	labels := metric.WithAttributes(
		semconv.MessagingSystem("rabbitmq"),
		attribute.String("messaging.operation", "publish"),
		attribute.String("messaging.rabbitmq.exchange", exchange),
		attribute.String("messaging.status", status),
	)
	m.messagesTotal.Add(ctx, 1, labels)
	m.messageDuration.Record(ctx, time.Since(startTime).Seconds(), labels)

	return err
}

// StartDelivery 从消息头恢复 trace 上下文并开启处理 span，调用方负责 End
func (ic *InstrumentedChannel) StartDelivery(ctx context.Context, d amqp.Delivery) (context.Context, trace.Span) {
	msgCtx := ic.propagators.Extract(ctx, &MessageHeaderCarrier{Headers: d.Headers})
	msgCtx, span := ic.tracer.Start(msgCtx, "rabbitmq.message.process", trace.WithSpanKind(trace.SpanKindConsumer), trace.WithAttributes(
		semconv.MessagingSystem("rabbitmq"),
		semconv.MessagingMessageID(d.MessageId),
		attribute.String("messaging.rabbitmq.exchange", d.Exchange),
	))

	getMetrics().messagesTotal.Add(msgCtx, 1, metric.WithAttributes(
		semconv.MessagingSystem("rabbitmq"),
		attribute.String("messaging.operation", "consume"),
		attribute.String("messaging.rabbitmq.exchange", d.Exchange),
		attribute.String("messaging.status", "received"),
	))
	return msgCtx, span
}

// MessageHeaderCarrier 实现 propagation.TextMapCarrier 接口
type MessageHeaderCarrier struct {
	Headers amqp.Table
}

func (m *MessageHeaderCarrier) Get(key string) string {
	if val, ok := m.Headers[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func (m *MessageHeaderCarrier) Set(key, value string) {
	if m.Headers == nil {
		m.Headers = make(amqp.Table)
	}
	m.Headers[key] = value
}

func (m *MessageHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(m.Headers))
	for k := range m.Headers {
		keys = append(keys, k)
	}
	return keys
}
