package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"floranav/internal/model"
)

func TestMemorySupplierLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	s, err := m.CreateSupplier(ctx, model.SupplierIn{
		Name: "vivero-central", Stock: map[string]int{"roses": 10}, Capacity: 5,
	}, 7, model.GeoPoint{Lat: -12.05, Lng: -77.03})
	if err != nil {
		t.Fatalf("CreateSupplier: %v", err)
	}
	if s.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := m.GetSupplier(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSupplier: %v", err)
	}
	if got.NodeID != 7 || got.Stock["roses"] != 10 {
		t.Fatalf("unexpected supplier: %+v", got)
	}

	// Mutating the returned copy must not touch the stored state.
	got.Stock["roses"] = 0
	again, _ := m.GetSupplier(ctx, s.ID)
	if again.Stock["roses"] != 10 {
		t.Fatal("store state leaked through returned copy")
	}

	if _, err := m.GetSupplier(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemoryCommitInventory(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	s, _ := m.CreateSupplier(ctx, model.SupplierIn{
		Name: "v", Stock: map[string]int{"roses": 10}, Capacity: 5,
	}, 1, model.GeoPoint{})

	commit := StockCommit{SupplierID: s.ID, Use: map[string]int{"roses": 6}, Capacity: 2}
	if err := m.CommitInventory(ctx, []StockCommit{commit}); err != nil {
		t.Fatalf("CommitInventory: %v", err)
	}
	got, _ := m.GetSupplier(ctx, s.ID)
	if got.Stock["roses"] != 4 || got.Capacity != 3 {
		t.Fatalf("commit not applied: %+v", got)
	}

	bogus := StockCommit{SupplierID: "missing", Use: map[string]int{"roses": 1}}
	if err := m.CommitInventory(ctx, []StockCommit{bogus}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemoryCommitInventoryRejectsOverdraw(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	s, _ := m.CreateSupplier(ctx, model.SupplierIn{
		Name: "v", Stock: map[string]int{"roses": 5}, Capacity: 4,
	}, 1, model.GeoPoint{})

	// Two commits computed against the same read of stock 5. The first
	// lands; the second must fail instead of draining below zero.
	take := StockCommit{SupplierID: s.ID, Use: map[string]int{"roses": 5}, Capacity: 1}
	if err := m.CommitInventory(ctx, []StockCommit{take}); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := m.CommitInventory(ctx, []StockCommit{take}); !errors.Is(err, ErrStockConflict) {
		t.Fatalf("want ErrStockConflict, got %v", err)
	}

	got, _ := m.GetSupplier(ctx, s.ID)
	if got.Stock["roses"] != 0 || got.Capacity != 3 {
		t.Fatalf("conflicting commit must not apply: %+v", got)
	}

	// Capacity shortfalls conflict the same way, and a conflict anywhere in
	// the batch leaves every supplier untouched.
	other, _ := m.CreateSupplier(ctx, model.SupplierIn{
		Name: "w", Stock: map[string]int{"lilies": 3}, Capacity: 2,
	}, 2, model.GeoPoint{})
	batch := []StockCommit{
		{SupplierID: other.ID, Use: map[string]int{"lilies": 1}, Capacity: 1},
		{SupplierID: s.ID, Use: map[string]int{}, Capacity: 4},
	}
	if err := m.CommitInventory(ctx, batch); !errors.Is(err, ErrStockConflict) {
		t.Fatalf("want ErrStockConflict, got %v", err)
	}
	untouched, _ := m.GetSupplier(ctx, other.ID)
	if untouched.Stock["lilies"] != 3 || untouched.Capacity != 2 {
		t.Fatalf("failed batch must not partially apply: %+v", untouched)
	}
}

func TestMemoryRoutesAndPagination(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		r := model.Route{Policy: "eager", DistanceKm: float64(i + 1), Stops: []model.Stop{{}, {}}}
		if _, err := m.SaveRoute(ctx, &r); err != nil {
			t.Fatalf("SaveRoute: %v", err)
		}
		if r.ID == "" || r.CreatedAt == "" {
			t.Fatal("SaveRoute must assign id and created_at")
		}
	}

	page1, next, err := m.ListRoutes(ctx, "", 3)
	if err != nil {
		t.Fatalf("ListRoutes: %v", err)
	}
	if len(page1) != 3 || next == "" {
		t.Fatalf("want 3 + cursor, got %d %q", len(page1), next)
	}
	page2, next2, _ := m.ListRoutes(ctx, next, 3)
	if len(page2) != 2 || next2 != "" {
		t.Fatalf("want trailing 2, got %d %q", len(page2), next2)
	}

	stats, err := m.RouteStats(ctx)
	if err != nil {
		t.Fatalf("RouteStats: %v", err)
	}
	if stats["routes"].(int) != 5 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestMemorySubscriptionsAndWebhookQueue(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sub, err := m.CreateSubscription(ctx, model.SubscriptionRequest{
		URL: "https://example.com/hook", Events: []string{"route.computed"}, Secret: "s3cr3t",
	})
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}

	matches, _ := m.GetSubscriptionsForEvent(ctx, "route.computed")
	if len(matches) != 1 {
		t.Fatalf("want 1 match, got %d", len(matches))
	}
	none, _ := m.GetSubscriptionsForEvent(ctx, "route.failed")
	if len(none) != 0 {
		t.Fatalf("want 0 matches, got %d", len(none))
	}

	id, err := m.EnqueueWebhook(ctx, sub.ID, "route.computed", sub.URL, "s3cr3t", []byte(`{"ok":true}`))
	if err != nil {
		t.Fatalf("EnqueueWebhook: %v", err)
	}
	due, _ := m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 1 || due[0].ID != id {
		t.Fatalf("want queued delivery, got %v", due)
	}

	// Retry scheduling pushes the delivery into the future.
	later := time.Now().Add(time.Hour)
	if err := m.MarkWebhookDelivery(ctx, id, false, &later, "boom", 500, 12); err != nil {
		t.Fatalf("MarkWebhookDelivery: %v", err)
	}
	due, _ = m.FetchDueWebhookDeliveries(ctx, 10)
	if len(due) != 0 {
		t.Fatal("delivery should not be due yet")
	}

	if err := m.DeleteSubscription(ctx, sub.ID); err != nil {
		t.Fatalf("DeleteSubscription: %v", err)
	}
	if err := m.DeleteSubscription(ctx, sub.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
