package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	bus := New(nil)
	ch := bus.Subscribe(NodeUpserted)

	bus.Publish(NodeUpserted, NodeUpsertedPayload{DeviceUID: 2, NodeUID: 42})

	select {
	case got := <-ch:
		payload, ok := got.(NodeUpsertedPayload)
		require.True(t, ok)
		require.EqualValues(t, 42, payload.NodeUID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestPublishNoSubscribersDoesNotBlock(t *testing.T) {
	bus := New(nil)
	bus.Publish(BatchFailed, BatchFailedPayload{BatchUID: "b1", Reason: "no subscribers"})
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := New(nil)
	ch := bus.Subscribe(NodeRemoved)
	bus.Unsubscribe(NodeRemoved, ch)

	bus.Publish(NodeRemoved, NodeRemovedPayload{DeviceUID: 2, NodeUID: 7})

	_, open := <-ch
	require.False(t, open)
}

func TestPublishDropsWhenSubscriberQueueFull(t *testing.T) {
	bus := New(nil)
	ch := bus.Subscribe(ErrorOccurred)

	for i := 0; i < subscriberQueueLen+10; i++ {
		bus.Publish(ErrorOccurred, ErrorOccurredPayload{Source: "test"})
	}

	count := 0
	for {
		select {
		case <-ch:
			count++
		default:
			require.LessOrEqual(t, count, subscriberQueueLen)
			return
		}
	}
}

func TestDistinctSubscribersEachReceive(t *testing.T) {
	bus := New(nil)
	ch1 := bus.Subscribe(DeviceUpserted)
	ch2 := bus.Subscribe(DeviceUpserted)

	bus.Publish(DeviceUpserted, nil)

	for _, ch := range []<-chan any{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}
