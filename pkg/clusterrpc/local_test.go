package clusterrpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBroker_BroadcastDeliversToSubscriber(t *testing.T) {
	b := NewLocalBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()

	msg := NewReloadMessage()
	require.NoError(t, b.Broadcast(msg))

	select {
	case got := <-sub:
		assert.Equal(t, msg, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast delivery")
	}
}

func TestLocalBroker_BroadcastDeliversToAllSubscribers(t *testing.T) {
	b := NewLocalBroker()
	b.Start()
	defer b.Stop()

	sub1 := b.Subscribe()
	sub2 := b.Subscribe()

	msg := NewReloadMessage()
	require.NoError(t, b.Broadcast(msg))

	for _, sub := range []<-chan ReloadMessage{sub1, sub2} {
		select {
		case got := <-sub:
			assert.Equal(t, msg, got)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for broadcast delivery")
		}
	}
}

func TestLocalBroker_UnsubscribeStopsDelivery(t *testing.T) {
	b := NewLocalBroker()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe()
	b.Unsubscribe(sub)

	require.NoError(t, b.Broadcast(NewReloadMessage()))

	select {
	case _, ok := <-sub:
		assert.False(t, ok, "channel should be closed after Unsubscribe")
	case <-time.After(100 * time.Millisecond):
		t.Fatal("expected closed channel to return immediately")
	}
}

func TestNewReloadMessage_MatchesWireShape(t *testing.T) {
	msg := NewReloadMessage()
	assert.Equal(t, "cluster_api", msg.MethodAPI)
	assert.Equal(t, "load_system_store", msg.MethodName)
	assert.Equal(t, "", msg.Target)
}
