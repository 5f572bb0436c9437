package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"HealthCheckIn/internal/model"
)

func receive(t *testing.T, s *Subscription) model.StateChangedEvent {
	t.Helper()
	select {
	case evt := <-s.C:
		return evt
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return model.StateChangedEvent{}
	}
}

func TestPublishBroadcastsToAllSubscribers(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe(1)
	b := bus.Subscribe(1)

	require.NoError(t, bus.Publish(context.Background(), model.StateChangedEvent{Reason: "submission"}))

	for _, s := range []*Subscription{a, b} {
		evt := receive(t, s)
		assert.Equal(t, "submission", evt.Reason)
		assert.NotEmpty(t, evt.MessageID)
		assert.Equal(t, bus.Origin(), evt.Origin)
		assert.NotEmpty(t, evt.OccurredAt)
	}
}

func TestPublishNeverBlocksOnFullSubscriber(t *testing.T) {
	bus := NewBus()
	s := bus.Subscribe(1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			_ = bus.Publish(context.Background(), model.StateChangedEvent{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Len(t, s.C, 1)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	s := bus.Subscribe(1)
	s.Unsubscribe()
	s.Unsubscribe()

	_, ok := <-s.C
	assert.False(t, ok)
	assert.Equal(t, 0, bus.Subscribers())
	require.NoError(t, bus.Publish(context.Background(), model.StateChangedEvent{}))
}

type failingPublisher struct{ calls int }

func (f *failingPublisher) Publish(context.Context, model.StateChangedEvent) error {
	f.calls++
	return errors.New("broker down")
}

func TestForwardFailureStillDeliversLocally(t *testing.T) {
	bus := NewBus()
	fwd := &failingPublisher{}
	bus.Forward(fwd)
	s := bus.Subscribe(1)

	err := bus.Publish(context.Background(), model.StateChangedEvent{})
	assert.Error(t, err)
	assert.Equal(t, 1, fwd.calls)
	receive(t, s)
}

func TestBridgeForwardsAndSkipsOwnMessages(t *testing.T) {
	bus := NewBus()
	bridge := NewAMQPBridge(bus, "checkin.events")

	var published []byte
	bridge.publish = func(_ context.Context, exchange, messageID string, body any) error {
		assert.Equal(t, "checkin.events", exchange)
		assert.NotEmpty(t, messageID)
		var err error
		published, err = json.Marshal(body)
		return err
	}
	bus.Forward(bridge)
	s := bus.Subscribe(4)

	require.NoError(t, bus.Publish(context.Background(), model.StateChangedEvent{Reason: "submission"}))
	receive(t, s)

	// 自己发出的消息回流时不再投递
	require.NoError(t, bridge.handle(context.Background(), amqp.Delivery{Body: published}))
	assert.Len(t, s.C, 0)

	remote, err := json.Marshal(model.StateChangedEvent{MessageID: "9", Origin: "other-agent", Reason: "submission"})
	require.NoError(t, err)
	require.NoError(t, bridge.handle(context.Background(), amqp.Delivery{Body: remote}))
	evt := receive(t, s)
	assert.Equal(t, "other-agent", evt.Origin)
}

func TestBridgeRejectsMalformedBody(t *testing.T) {
	bridge := NewAMQPBridge(NewBus(), "x")
	assert.Error(t, bridge.handle(context.Background(), amqp.Delivery{Body: []byte("{")}))
}
