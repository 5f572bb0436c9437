package event

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"HealthCheckIn/internal/model"
	"HealthCheckIn/pkg/logger"
	"HealthCheckIn/pkg/snowflake"
)

// Publisher 发布"状态已变化"通知
type Publisher interface {
	Publish(ctx context.Context, evt model.StateChangedEvent) error
}

// Subscription 一个订阅者；C 在 Unsubscribe 后关闭
type Subscription struct {
	C   <-chan model.StateChangedEvent
	ID  string
	bus *Bus
}

func (s *Subscription) Unsubscribe() {
	s.bus.remove(s.ID)
}

// Bus 进程内广播总线，订阅者数量不限，订阅者之间的投递顺序不保证
// 投递不阻塞：订阅者缓冲已满时丢弃本次通知，通知本身不带内容，积压的一条已足够触发刷新
type Bus struct {
	mu         sync.RWMutex
	subs       map[string]chan model.StateChangedEvent
	forwarders []Publisher
	origin     string
}

func NewBus() *Bus {
	return &Bus{
		subs:   make(map[string]chan model.StateChangedEvent),
		origin: uuid.NewString(),
	}
}

// Origin 本进程实例 ID，随事件一起发出，用于识别自己发出的远端消息
func (b *Bus) Origin() string {
	return b.origin
}

// Forward 让本地发布的事件同时转发给远端（例如 AMQP）
func (b *Bus) Forward(p Publisher) {
	b.mu.Lock()
	b.forwarders = append(b.forwarders, p)
	b.mu.Unlock()
}

func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan model.StateChangedEvent, buffer)
	id := uuid.NewString()

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	return &Subscription{C: ch, ID: id, bus: b}
}

func (b *Bus) remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish 补全消息 ID、来源和时间后投递给本地订阅者并转发到远端
// 本地投递总会发生；远端转发失败时返回错误
func (b *Bus) Publish(ctx context.Context, evt model.StateChangedEvent) error {
	if evt.MessageID == "" {
		id, err := snowflake.NextString()
		if err != nil {
			return err
		}
		evt.MessageID = id
	}
	if evt.Origin == "" {
		evt.Origin = b.origin
	}
	if evt.OccurredAt == "" {
		evt.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	}

	b.Deliver(evt)

	b.mu.RLock()
	forwarders := append([]Publisher(nil), b.forwarders...)
	b.mu.RUnlock()

	var errs []error
	for _, f := range forwarders {
		if err := f.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Deliver 只做本地投递，供远端桥接回放事件使用
func (b *Bus) Deliver(evt model.StateChangedEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			logger.Logger.Debug("Subscriber busy, coalescing state-changed event",
				zap.String("subscription", id),
				zap.String("message_id", evt.MessageID),
			)
		}
	}
}

// Subscribers 当前订阅者数量
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
