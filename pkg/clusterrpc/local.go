package clusterrpc

import (
	"sync"
)

// LocalBroker is an in-process Redirector: reload notifications never leave
// the current process. Used by tests and single-process deployments.
type LocalBroker struct {
	subscribers map[chan ReloadMessage]bool
	mu          sync.RWMutex
	msgCh       chan ReloadMessage
	stopCh      chan struct{}
}

// NewLocalBroker creates a new in-process broker.
func NewLocalBroker() *LocalBroker {
	return &LocalBroker{
		subscribers: make(map[chan ReloadMessage]bool),
		msgCh:       make(chan ReloadMessage, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's delivery loop.
func (b *LocalBroker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *LocalBroker) Stop() {
	close(b.stopCh)
}

// Broadcast delivers a reload message to every current subscriber.
func (b *LocalBroker) Broadcast(msg ReloadMessage) error {
	select {
	case b.msgCh <- msg:
	case <-b.stopCh:
	}
	return nil
}

// Subscribe returns a channel that receives every broadcast message from
// this point on. The returned channel is closed only by Unsubscribe; Stop
// ends delivery but leaves subscriber channels open.
func (b *LocalBroker) Subscribe() <-chan ReloadMessage {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(chan ReloadMessage, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription created by Subscribe.
func (b *LocalBroker) Unsubscribe(sub <-chan ReloadMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subscribers {
		if ch == sub {
			delete(b.subscribers, ch)
			close(ch)
			return
		}
	}
}

func (b *LocalBroker) run() {
	for {
		select {
		case msg := <-b.msgCh:
			b.deliver(msg)
		case <-b.stopCh:
			return
		}
	}
}

func (b *LocalBroker) deliver(msg ReloadMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- msg:
		default:
			// subscriber buffer full, drop — age-based refresh self-heals
		}
	}
}
