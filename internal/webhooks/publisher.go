package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"floranav/internal/model"
	"floranav/internal/store"
)

type Publisher struct {
	Store store.Store
}

func NewPublisher(s store.Store) *Publisher {
	return &Publisher{Store: s}
}

// Emit queues the event for every matching subscription. Delivery happens
// asynchronously in the Worker.
func (p *Publisher) Emit(ctx context.Context, evt model.RouteEvent) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, evt.Type)
	if err != nil || len(subs) == 0 {
		return
	}
	payload := map[string]any{
		"id":      fmt.Sprintf("evt_%d", time.Now().UnixNano()),
		"type":    evt.Type,
		"routeId": evt.RouteID,
		"ts":      evt.TS,
		"data":    evt.Payload,
	}
	body, _ := json.Marshal(payload)
	for _, s := range subs {
		_, _ = p.Store.EnqueueWebhook(ctx, s.ID, evt.Type, s.URL, s.Secret, body)
	}
}
