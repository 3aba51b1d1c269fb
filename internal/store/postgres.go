package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"floranav/internal/model"
)

// Postgres persists suppliers, routes, subscriptions, and the webhook
// delivery queue. Route payloads and stock maps are stored as JSONB.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// Migrate creates the schema when missing. Intended for local runs; real
// deployments drive migrations externally.
func (p *Postgres) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS suppliers (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			node_id BIGINT NOT NULL,
			lat DOUBLE PRECISION NOT NULL,
			lng DOUBLE PRECISION NOT NULL,
			stock JSONB NOT NULL DEFAULT '{}',
			capacity INT NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS routes (
			id UUID PRIMARY KEY,
			policy TEXT NOT NULL,
			distance_km DOUBLE PRECISION NOT NULL,
			time_min DOUBLE PRECISION NOT NULL,
			stops INT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id UUID PRIMARY KEY,
			url TEXT NOT NULL,
			events JSONB NOT NULL DEFAULT '[]',
			secret TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS webhook_deliveries (
			id UUID PRIMARY KEY,
			subscription_id UUID NOT NULL,
			event_type TEXT NOT NULL,
			url TEXT NOT NULL,
			secret TEXT NOT NULL DEFAULT '',
			payload JSONB NOT NULL,
			attempts INT NOT NULL DEFAULT 0,
			next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			delivered_at TIMESTAMPTZ,
			failed BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS webhook_deliveries_due ON webhook_deliveries (next_attempt_at) WHERE delivered_at IS NULL AND NOT failed`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) CreateSupplier(ctx context.Context, in model.SupplierIn, nodeID int64, loc model.GeoPoint) (model.Supplier, error) {
	s := model.Supplier{
		ID:       uuid.New().String(),
		Name:     in.Name,
		NodeID:   nodeID,
		Location: loc,
		Stock:    in.Stock,
		Capacity: in.Capacity,
	}
	if s.Stock == nil {
		s.Stock = map[string]int{}
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO suppliers (id, name, node_id, lat, lng, stock, capacity) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		s.ID, s.Name, s.NodeID, loc.Lat, loc.Lng, toJSON(s.Stock), s.Capacity)
	if err != nil {
		return model.Supplier{}, err
	}
	return s, nil
}

func (p *Postgres) GetSupplier(ctx context.Context, id string) (model.Supplier, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id::text, name, node_id, lat, lng, stock, capacity FROM suppliers WHERE id=$1`, id)
	return scanSupplier(row)
}

func (p *Postgres) ListSuppliers(ctx context.Context, cursor string, limit int) ([]model.Supplier, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx,
			`SELECT id::text, name, node_id, lat, lng, stock, capacity FROM suppliers WHERE id::text > $1 ORDER BY id LIMIT $2`, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx,
			`SELECT id::text, name, node_id, lat, lng, stock, capacity FROM suppliers ORDER BY id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Supplier{}
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, s)
	}
	var next string
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSupplier(row rowScanner) (model.Supplier, error) {
	var s model.Supplier
	var stock []byte
	if err := row.Scan(&s.ID, &s.Name, &s.NodeID, &s.Location.Lat, &s.Location.Lng, &stock, &s.Capacity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s, ErrNotFound
		}
		return s, err
	}
	s.Stock = map[string]int{}
	if len(stock) > 0 {
		if err := json.Unmarshal(stock, &s.Stock); err != nil {
			return s, err
		}
	}
	return s, nil
}

func (p *Postgres) CommitInventory(ctx context.Context, commits []StockCommit) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, c := range commits {
		var raw []byte
		var capacity int
		err := tx.QueryRowContext(ctx,
			`SELECT stock, capacity FROM suppliers WHERE id=$1 FOR UPDATE`, c.SupplierID).Scan(&raw, &capacity)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		stock := map[string]int{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &stock); err != nil {
				return err
			}
		}
		for item, qty := range c.Use {
			if stock[item] < qty {
				return ErrStockConflict
			}
			stock[item] -= qty
		}
		if capacity < c.Capacity {
			return ErrStockConflict
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE suppliers SET stock=$1, capacity=$2 WHERE id=$3`,
			toJSON(stock), capacity-c.Capacity, c.SupplierID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) SaveRoute(ctx context.Context, r *model.Route) (model.Route, error) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt == "" {
		r.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO routes (id, policy, distance_km, time_min, stops, payload) VALUES ($1,$2,$3,$4,$5,$6)`,
		r.ID, r.Policy, r.DistanceKm, r.TimeMin, r.DeliveryCount(), toJSON(r))
	if err != nil {
		return model.Route{}, err
	}
	return *r, nil
}

func (p *Postgres) GetRoute(ctx context.Context, id string) (model.Route, error) {
	var payload []byte
	err := p.db.QueryRowContext(ctx, `SELECT payload FROM routes WHERE id=$1`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Route{}, ErrNotFound
		}
		return model.Route{}, err
	}
	var r model.Route
	if err := json.Unmarshal(payload, &r); err != nil {
		return model.Route{}, err
	}
	return r, nil
}

func (p *Postgres) ListRoutes(ctx context.Context, cursor string, limit int) ([]model.RouteSummary, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx,
			`SELECT id::text, policy, distance_km, time_min, stops, created_at FROM routes WHERE id::text > $1 ORDER BY id LIMIT $2`, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx,
			`SELECT id::text, policy, distance_km, time_min, stops, created_at FROM routes ORDER BY id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.RouteSummary{}
	for rows.Next() {
		var s model.RouteSummary
		var createdAt time.Time
		if err := rows.Scan(&s.ID, &s.Policy, &s.DistanceKm, &s.TimeMin, &s.Stops, &createdAt); err != nil {
			return nil, "", err
		}
		if s.Stops > 0 {
			s.AvgKmPerStop = s.DistanceKm / float64(s.Stops)
			s.AvgMinPerStop = s.TimeMin / float64(s.Stops)
		}
		s.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		out = append(out, s)
	}
	var next string
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, rows.Err()
}

func (p *Postgres) RouteStats(ctx context.Context) (map[string]any, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(distance_km),0), COALESCE(SUM(time_min),0), COALESCE(SUM(stops),0) FROM routes`)
	var count, stops int
	var km, min float64
	if err := row.Scan(&count, &km, &min, &stops); err != nil {
		return nil, err
	}
	stats := map[string]any{
		"routes":          count,
		"totalDistanceKm": km,
		"totalTimeMin":    min,
		"totalStops":      stops,
	}
	if count > 0 {
		stats["avgDistanceKm"] = km / float64(count)
	}
	return stats, nil
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	s := model.Subscription{ID: uuid.New().String(), URL: req.URL, Events: req.Events, Secret: req.Secret}
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, url, events, secret) VALUES ($1,$2,$3,$4)`,
		s.ID, s.URL, toJSON(s.Events), s.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return s, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, eventType string) ([]model.Subscription, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, url, events, secret FROM subscriptions WHERE events @> to_jsonb(ARRAY[$1::text]) OR events @> '["*"]'::jsonb`, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx,
			`SELECT id::text, url, events, secret FROM subscriptions WHERE id::text > $1 ORDER BY id LIMIT $2`, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx,
			`SELECT id::text, url, events, secret FROM subscriptions ORDER BY id LIMIT $1`, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, "", err
		}
		s.Secret = ""
		out = append(out, s)
	}
	var next string
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, rows.Err()
}

func scanSubscription(rows *sql.Rows) (model.Subscription, error) {
	var s model.Subscription
	var events []byte
	if err := rows.Scan(&s.ID, &s.URL, &events, &s.Secret); err != nil {
		return s, err
	}
	if len(events) > 0 {
		if err := json.Unmarshal(events, &s.Events); err != nil {
			return s, err
		}
	}
	return s, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO webhook_deliveries (id, subscription_id, event_type, url, secret, payload) VALUES ($1,$2,$3,$4,$5,$6)`,
		id, subscriptionID, eventType, url, secret, payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT id::text, subscription_id::text, event_type, url, secret, payload, attempts
		 FROM webhook_deliveries
		 WHERE delivered_at IS NULL AND NOT failed AND next_attempt_at <= now()
		 ORDER BY next_attempt_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if success {
		_, err := p.db.ExecContext(ctx,
			`UPDATE webhook_deliveries SET attempts=attempts+1, delivered_at=now() WHERE id=$1`, id)
		return err
	}
	if nextAttemptAt != nil {
		_, err := p.db.ExecContext(ctx,
			`UPDATE webhook_deliveries SET attempts=attempts+1, next_attempt_at=$1 WHERE id=$2`, *nextAttemptAt, id)
		return err
	}
	_, err := p.db.ExecContext(ctx,
		`UPDATE webhook_deliveries SET attempts=attempts+1, failed=TRUE WHERE id=$1`, id)
	return err
}

func toJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}
