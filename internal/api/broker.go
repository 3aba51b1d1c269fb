package api

import (
	"sync"

	"floranav/internal/model"
)

// Broker fans route events out to in-process subscribers. Slow subscribers
// drop events rather than block the publisher.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[chan model.RouteEvent]struct{} // routeId -> set of channels
}

func NewBroker() *Broker {
	return &Broker{subs: map[string]map[chan model.RouteEvent]struct{}{}}
}

func (b *Broker) Subscribe(routeID string) chan model.RouteEvent {
	ch := make(chan model.RouteEvent, 8)
	b.mu.Lock()
	if b.subs[routeID] == nil {
		b.subs[routeID] = map[chan model.RouteEvent]struct{}{}
	}
	b.subs[routeID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Broker) Unsubscribe(routeID string, ch chan model.RouteEvent) {
	b.mu.Lock()
	if m := b.subs[routeID]; m != nil {
		delete(m, ch)
		if len(m) == 0 {
			delete(b.subs, routeID)
		}
	}
	b.mu.Unlock()
	close(ch)
}

func (b *Broker) Publish(routeID string, evt model.RouteEvent) {
	b.mu.Lock()
	m := b.subs[routeID]
	for ch := range m {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}
