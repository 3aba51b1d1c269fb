package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"floranav/internal/alloc"
	"floranav/internal/guide"
	"floranav/internal/metrics"
	"floranav/internal/model"
	"floranav/internal/planner"
	"floranav/internal/routing"
	"floranav/internal/store"
)

// SuppliersHandler handles POST/GET /v1/suppliers.
func (s *Server) SuppliersHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !s.authorizeMutation(w, r) {
			return
		}
		var in model.SupplierIn
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if err := validateSupplierIn(s.Cfg, &in); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid supplier", err.Error(), r.URL.Path)
			return
		}
		nodeID, loc, err := s.resolveNode(in.NodeID, in.Location)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid supplier", err.Error(), r.URL.Path)
			return
		}
		sup, err := s.Store.CreateSupplier(r.Context(), in, nodeID, loc)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create supplier failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sup)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListSuppliers(r.Context(), cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List suppliers failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SupplierByIDHandler handles GET /v1/suppliers/{id}.
func (s *Server) SupplierByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/suppliers/")
	if id == "" || strings.Contains(id, "/") {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	sup, err := s.Store.GetSupplier(r.Context(), id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Supplier not found", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, sup)
}

// ComputeHandler handles POST /v1/routes/compute: allocate stock across
// suppliers, order the stops, and expand to a full path.
func (s *Server) ComputeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.authorizeMutation(w, r) {
		return
	}
	if !s.computeLimiter.Allow() {
		writeProblem(w, http.StatusTooManyRequests, "Rate limited", "compute requests exceed the configured rate", r.URL.Path)
		return
	}
	var req model.ComputeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateComputeRequest(s.Cfg, &req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid compute request", err.Error(), r.URL.Path)
		return
	}
	policy, err := alloc.ParsePolicy(req.Policy)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid compute request", err.Error(), r.URL.Path)
		return
	}

	origin, err := s.Store.GetSupplier(r.Context(), req.OriginSupplierID)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Origin supplier not found", err.Error(), r.URL.Path)
		return
	}
	extras := make([]*model.Supplier, 0, len(req.ExtraSupplierIDs))
	for _, id := range req.ExtraSupplierIDs {
		sup, err := s.Store.GetSupplier(r.Context(), id)
		if err != nil {
			writeProblem(w, http.StatusNotFound, "Supplier not found", fmt.Sprintf("supplier %s: %v", id, err), r.URL.Path)
			return
		}
		ex := sup
		extras = append(extras, &ex)
	}

	dests := make([]model.Destination, 0, len(req.Destinations))
	for i, in := range req.Destinations {
		nodeID, loc, err := s.resolveNode(in.NodeID, in.Location)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid compute request", fmt.Sprintf("destination %d: %v", i, err), r.URL.Path)
			return
		}
		dests = append(dests, model.Destination{
			Index:    i,
			Label:    in.Label,
			NodeID:   nodeID,
			Location: loc,
			Demand:   in.Demand,
		})
	}

	hour := time.Now().Hour()
	if req.DepartureHour != nil {
		hour = *req.DepartureHour
	}
	factor := s.Cfg.FactorAt(hour)

	started := time.Now()
	route, err := s.Planner.ComputeRoute(planner.Input{
		Origin:        &origin,
		Extras:        extras,
		Destinations:  dests,
		CloseCycle:    req.CloseCycle,
		Policy:        policy,
		TrafficFactor: factor,
	})
	if err != nil {
		metrics.RouteComputeDuration.WithLabelValues(string(policy), "error").Observe(time.Since(started).Seconds())
		s.Pub.Emit(r.Context(), model.RouteEvent{
			Type: "route.failed", TS: time.Now().UTC().Format(time.RFC3339),
			Payload: map[string]any{"policy": string(policy), "error": err.Error()},
		})
		s.writeComputeError(w, r, err)
		return
	}
	metrics.RouteComputeDuration.WithLabelValues(string(policy), "ok").Observe(time.Since(started).Seconds())
	metrics.RouteStops.Observe(float64(route.DeliveryCount()))

	commits := inventoryCommits(&origin, extras, route.Assignment)
	if err := s.Store.CommitInventory(r.Context(), commits); err != nil {
		if errors.Is(err, store.ErrStockConflict) {
			metrics.AllocationFailures.WithLabelValues("stock_conflict").Inc()
			writeProblem(w, http.StatusConflict, "Inventory conflict",
				"supplier stock changed while the route was being computed; retry the request", r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Commit inventory failed", err.Error(), r.URL.Path)
		return
	}
	saved, err := s.Store.SaveRoute(r.Context(), route)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Save route failed", err.Error(), r.URL.Path)
		return
	}

	evt := model.RouteEvent{
		Type: "route.computed", RouteID: saved.ID, TS: time.Now().UTC().Format(time.RFC3339),
		Payload: map[string]any{
			"routeId":    saved.ID,
			"policy":     saved.Policy,
			"distanceKm": saved.DistanceKm,
			"timeMin":    saved.TimeMin,
			"stops":      saved.DeliveryCount(),
		},
	}
	s.Broker.Publish(saved.ID, evt)
	// Firehose channel for subscribers that want every computed route.
	s.Broker.Publish("all", evt)
	s.Pub.Emit(r.Context(), evt)

	writeJSON(w, http.StatusCreated, saved)
}

// inventoryCommits folds the per-destination assignment into one decrement
// per supplier, origin first. Capacity is one per destination served,
// matching the allocation policies.
func inventoryCommits(origin *model.Supplier, extras []*model.Supplier, a model.Assignment) []store.StockCommit {
	use := make(map[string]map[string]int)
	served := make(map[string]int)
	for _, bySup := range a {
		for id, items := range bySup {
			if use[id] == nil {
				use[id] = make(map[string]int)
			}
			for item, qty := range items {
				use[id][item] += qty
			}
			served[id]++
		}
	}
	order := append([]*model.Supplier{origin}, extras...)
	out := make([]store.StockCommit, 0, len(order))
	for _, sup := range order {
		if served[sup.ID] == 0 {
			continue
		}
		out = append(out, store.StockCommit{SupplierID: sup.ID, Use: use[sup.ID], Capacity: served[sup.ID]})
	}
	return out
}

// writeComputeError maps planner and allocation failures onto problem
// responses and failure counters.
func (s *Server) writeComputeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, alloc.ErrInfeasibleDemand):
		metrics.AllocationFailures.WithLabelValues("infeasible_demand").Inc()
		writeProblem(w, http.StatusUnprocessableEntity, "Demand infeasible", err.Error(), r.URL.Path)
	case errors.Is(err, alloc.ErrStuck):
		metrics.AllocationFailures.WithLabelValues("stuck").Inc()
		writeProblem(w, http.StatusUnprocessableEntity, "Allocation stuck", err.Error(), r.URL.Path)
	case errors.Is(err, routing.ErrTooManyStops):
		writeProblem(w, http.StatusBadRequest, "Too many stops", err.Error(), r.URL.Path)
	case errors.Is(err, planner.ErrNodeNotFound):
		writeProblem(w, http.StatusBadRequest, "Node not found", err.Error(), r.URL.Path)
	case errors.Is(err, planner.ErrUnreachable):
		metrics.AllocationFailures.WithLabelValues("unreachable").Inc()
		writeProblem(w, http.StatusUnprocessableEntity, "Unreachable stop", err.Error(), r.URL.Path)
	default:
		writeProblem(w, http.StatusInternalServerError, "Compute route failed", err.Error(), r.URL.Path)
	}
}

// RoutesIndexHandler handles GET /v1/routes.
func (s *Server) RoutesIndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/routes" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	cursor := r.URL.Query().Get("cursor")
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		fmt.Sscanf(v, "%d", &limit)
	}
	items, next, err := s.Store.ListRoutes(r.Context(), cursor, limit)
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "List routes failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// RouteByIDHandler handles GET /v1/routes/{id}, /v1/routes/{id}/guide, and
// the SSE stream at /v1/routes/{id}/events/stream.
func (s *Server) RouteByIDHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	rest := strings.TrimPrefix(path, "/v1/routes/")
	if rest == path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]

	if len(parts) > 2 && parts[1] == "events" && parts[2] == "stream" {
		s.streamRouteEvents(w, r, id)
		return
	}
	if len(parts) > 1 && parts[1] == "guide" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		route, err := s.Store.GetRoute(r.Context(), id)
		if err != nil {
			writeProblem(w, http.StatusNotFound, "Route not found", err.Error(), r.URL.Path)
			return
		}
		g := s.Planner.BuildGuide(&route)
		if strings.EqualFold(r.URL.Query().Get("format"), "text") {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			fmt.Fprint(w, guide.ExportText(g))
			return
		}
		writeJSON(w, http.StatusOK, g)
		return
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	route, err := s.Store.GetRoute(r.Context(), id)
	if err != nil {
		writeProblem(w, http.StatusNotFound, "Route not found", err.Error(), r.URL.Path)
		return
	}
	if strings.EqualFold(r.URL.Query().Get("include"), "visits") {
		writeJSON(w, http.StatusOK, map[string]any{"route": route, "visits": route.VisitOrder()})
		return
	}
	writeJSON(w, http.StatusOK, route)
}

func (s *Server) streamRouteEvents(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)
	// initial heartbeat
	fmt.Fprintf(w, "event: heartbeat\n")
	fmt.Fprintf(w, "data: {\"routeId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
	flusher.Flush()
	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case evt := <-ch:
			b, _ := json.Marshal(evt)
			fmt.Fprintf(w, "event: %s\n", evt.Type)
			fmt.Fprintf(w, "data: %s\n\n", string(b))
			flusher.Flush()
		case <-time.After(15 * time.Second):
			fmt.Fprintf(w, "event: heartbeat\n")
			fmt.Fprintf(w, "data: {\"routeId\":\"%s\",\"ts\":\"%s\"}\n\n", id, time.Now().Format(time.RFC3339))
			flusher.Flush()
		}
	}
}

// ValidateGuideHandler handles POST /v1/guide/validate: structural checks
// plus an advisory total-distance comparison.
func (s *Server) ValidateGuideHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req model.ValidateGuideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, guide.Validate(req.Instructions, req.ExpectedKm))
}

// SubscriptionsHandler handles POST/GET /v1/webhooks.
func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		if !s.authorizeMutation(w, r) {
			return
		}
		var req model.SubscriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if req.URL == "" || len(req.Events) == 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid subscription", "url and events are required", r.URL.Path)
			return
		}
		sub, err := s.Store.CreateSubscription(r.Context(), req)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusCreated, sub)
	case http.MethodGet:
		cursor := r.URL.Query().Get("cursor")
		limit := 100
		if v := r.URL.Query().Get("limit"); v != "" {
			fmt.Sscanf(v, "%d", &limit)
		}
		items, next, err := s.Store.ListSubscriptions(r.Context(), cursor, limit)
		if err != nil {
			writeProblem(w, http.StatusInternalServerError, "List subscriptions failed", err.Error(), r.URL.Path)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// SubscriptionByIDHandler handles DELETE /v1/webhooks/{id}.
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !s.authorizeMutation(w, r) {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/webhooks/")
	if id == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
		return
	}
	if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeProblem(w, http.StatusNotFound, "Subscription not found", err.Error(), r.URL.Path)
			return
		}
		writeProblem(w, http.StatusInternalServerError, "Delete subscription failed", err.Error(), r.URL.Path)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RouteStatsHandler handles GET /v1/admin/routes/stats.
func (s *Server) RouteStatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	pr := s.getPrincipal(r)
	if !pr.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	stats, err := s.Store.RouteStats(r.Context())
	if err != nil {
		writeProblem(w, http.StatusInternalServerError, "Route stats failed", err.Error(), r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	if s.Planner == nil || s.Planner.Graph().NodeCount() == 0 {
		writeProblem(w, http.StatusServiceUnavailable, "Not ready", "road graph not loaded", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// resolveNode maps an explicit node id, or a coordinate snapped to the
// nearest node, onto the road graph.
func (s *Server) resolveNode(nodeID int64, loc *model.GeoPoint) (int64, model.GeoPoint, error) {
	g := s.Planner.Graph()
	if nodeID != 0 {
		pt, ok := g.Coord(nodeID)
		if !ok {
			return 0, model.GeoPoint{}, fmt.Errorf("node %d not in graph", nodeID)
		}
		return nodeID, pt, nil
	}
	id, ok := g.NearestNode(*loc)
	if !ok {
		return 0, model.GeoPoint{}, fmt.Errorf("empty graph")
	}
	pt, _ := g.Coord(id)
	return id, pt, nil
}
