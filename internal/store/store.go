package store

import (
	"context"
	"errors"
	"time"

	"floranav/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	// Suppliers
	CreateSupplier(ctx context.Context, in model.SupplierIn, nodeID int64, loc model.GeoPoint) (model.Supplier, error)
	GetSupplier(ctx context.Context, id string) (model.Supplier, error)
	ListSuppliers(ctx context.Context, cursor string, limit int) ([]model.Supplier, string, error)
	// CommitInventory applies the given per-supplier decrements. The checks
	// and the decrements run under the store's own serialization, so a
	// commit computed against a stale read fails with ErrStockConflict
	// instead of overdrawing stock. All-or-nothing across suppliers.
	CommitInventory(ctx context.Context, commits []StockCommit) error

	// Routes
	SaveRoute(ctx context.Context, r *model.Route) (model.Route, error)
	GetRoute(ctx context.Context, id string) (model.Route, error)
	ListRoutes(ctx context.Context, cursor string, limit int) ([]model.RouteSummary, string, error)
	RouteStats(ctx context.Context) (map[string]any, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
}

// WebhookDelivery is one queued outbound event delivery.
type WebhookDelivery struct {
	ID             string
	SubscriptionID string
	EventType      string
	URL            string
	Secret         string
	Payload        []byte
	Attempts       int
}

// StockCommit is the inventory one computed route draws from a supplier:
// per-item quantities plus the number of destinations the supplier serves.
type StockCommit struct {
	SupplierID string
	Use        map[string]int
	Capacity   int
}

var (
	ErrNotFound = errors.New("not found")
	// ErrStockConflict: stored stock or capacity no longer covers the
	// commit, because another route consumed it first.
	ErrStockConflict = errors.New("supplier stock changed since it was read")
)
