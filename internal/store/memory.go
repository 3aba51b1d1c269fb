package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"floranav/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu          sync.Mutex
	suppliers   map[string]model.Supplier
	supplierIDs []string // insertion order
	routes      map[string]model.Route
	routeIDs    []string
	subs        map[string]model.Subscription
	subIDs      []string
	deliveries  map[string]*memDelivery
	deliveryIDs []string
}

func NewMemory() *Memory {
	return &Memory{
		suppliers:  map[string]model.Supplier{},
		routes:     map[string]model.Route{},
		subs:       map[string]model.Subscription{},
		deliveries: map[string]*memDelivery{},
	}
}

type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	Delivered     bool
	Failed        bool
}

func (m *Memory) CreateSupplier(ctx context.Context, in model.SupplierIn, nodeID int64, loc model.GeoPoint) (model.Supplier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Supplier{
		ID:       uuid.New().String(),
		Name:     in.Name,
		NodeID:   nodeID,
		Location: loc,
		Stock:    cloneStock(in.Stock),
		Capacity: in.Capacity,
	}
	m.suppliers[s.ID] = s
	m.supplierIDs = append(m.supplierIDs, s.ID)
	return cloneSupplier(s), nil
}

func (m *Memory) GetSupplier(ctx context.Context, id string) (model.Supplier, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.suppliers[id]
	if !ok {
		return model.Supplier{}, ErrNotFound
	}
	return cloneSupplier(s), nil
}

func (m *Memory) ListSuppliers(ctx context.Context, cursor string, limit int) ([]model.Supplier, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := cursorIndex(m.supplierIDs, cursor)
	out := []model.Supplier{}
	for i := start; i < len(m.supplierIDs) && len(out) < limit; i++ {
		out = append(out, cloneSupplier(m.suppliers[m.supplierIDs[i]]))
	}
	return out, nextCursor(out, limit, func(s model.Supplier) string { return s.ID }), nil
}

func (m *Memory) CommitInventory(ctx context.Context, commits []StockCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Verify every supplier before touching any, so a conflict leaves the
	// store unchanged.
	for _, c := range commits {
		cur, ok := m.suppliers[c.SupplierID]
		if !ok {
			return ErrNotFound
		}
		for item, qty := range c.Use {
			if cur.Stock[item] < qty {
				return ErrStockConflict
			}
		}
		if cur.Capacity < c.Capacity {
			return ErrStockConflict
		}
	}
	for _, c := range commits {
		cur := m.suppliers[c.SupplierID]
		stock := cloneStock(cur.Stock)
		for item, qty := range c.Use {
			stock[item] -= qty
		}
		cur.Stock = stock
		cur.Capacity -= c.Capacity
		m.suppliers[c.SupplierID] = cur
	}
	return nil
}

func (m *Memory) SaveRoute(ctx context.Context, r *model.Route) (model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt == "" {
		r.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	m.routes[r.ID] = *r
	m.routeIDs = append(m.routeIDs, r.ID)
	return *r, nil
}

func (m *Memory) GetRoute(ctx context.Context, id string) (model.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.routes[id]
	if !ok {
		return model.Route{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListRoutes(ctx context.Context, cursor string, limit int) ([]model.RouteSummary, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := cursorIndex(m.routeIDs, cursor)
	out := []model.RouteSummary{}
	for i := start; i < len(m.routeIDs) && len(out) < limit; i++ {
		r := m.routes[m.routeIDs[i]]
		out = append(out, r.Summary())
	}
	return out, nextCursor(out, limit, func(s model.RouteSummary) string { return s.ID }), nil
}

func (m *Memory) RouteStats(ctx context.Context) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	totalKm := 0.0
	totalMin := 0.0
	stops := 0
	for _, r := range m.routes {
		totalKm += r.DistanceKm
		totalMin += r.TimeMin
		stops += r.DeliveryCount()
	}
	stats := map[string]any{
		"routes":          len(m.routes),
		"totalDistanceKm": totalKm,
		"totalTimeMin":    totalMin,
		"totalStops":      stops,
	}
	if len(m.routes) > 0 {
		stats["avgDistanceKm"] = totalKm / float64(len(m.routes))
	}
	return stats, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{
		ID:     uuid.New().String(),
		URL:    req.URL,
		Events: append([]string(nil), req.Events...),
		Secret: req.Secret,
	}
	m.subs[s.ID] = s
	m.subIDs = append(m.subIDs, s.ID)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Subscription{}
	for _, id := range m.subIDs {
		s := m.subs[id]
		for _, e := range s.Events {
			if e == eventType || e == "*" {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}
	start := cursorIndex(m.subIDs, cursor)
	out := []model.Subscription{}
	for i := start; i < len(m.subIDs) && len(out) < limit; i++ {
		s := m.subs[m.subIDs[i]]
		s.Secret = ""
		out = append(out, s)
	}
	return out, nextCursor(out, limit, func(s model.Subscription) string { return s.ID }), nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return ErrNotFound
	}
	delete(m.subs, id)
	for i, sid := range m.subIDs {
		if sid == id {
			m.subIDs = append(m.subIDs[:i], m.subIDs[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := &memDelivery{
		WebhookDelivery: WebhookDelivery{
			ID:             uuid.New().String(),
			SubscriptionID: subscriptionID,
			EventType:      eventType,
			URL:            url,
			Secret:         secret,
			Payload:        append([]byte(nil), payload...),
		},
		NextAttemptAt: time.Now(),
	}
	m.deliveries[d.ID] = d
	m.deliveryIDs = append(m.deliveryIDs, d.ID)
	return d.ID, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.deliveryIDs {
		d := m.deliveries[id]
		if d.Delivered || d.Failed || d.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, d.WebhookDelivery)
		if len(out) >= limit {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deliveries[id]
	if !ok {
		return ErrNotFound
	}
	d.Attempts++
	if success {
		d.Delivered = true
		return nil
	}
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.Failed = true
	}
	return nil
}

func cursorIndex(ids []string, cursor string) int {
	if cursor == "" {
		return 0
	}
	for i, id := range ids {
		if id == cursor {
			return i + 1
		}
	}
	return 0
}

func nextCursor[T any](out []T, limit int, id func(T) string) string {
	if len(out) < limit || len(out) == 0 {
		return ""
	}
	return id(out[len(out)-1])
}

func cloneStock(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneSupplier(s model.Supplier) model.Supplier {
	s.Stock = cloneStock(s.Stock)
	return s
}
