package api

import (
	"fmt"

	"floranav/internal/config"
	"floranav/internal/model"
)

func validateComputeRequest(cfg *config.Config, req *model.ComputeRequest) error {
	if req.OriginSupplierID == "" {
		return fmt.Errorf("originSupplierId is required")
	}
	if len(req.Destinations) == 0 {
		return fmt.Errorf("at least one destination is required")
	}
	if len(req.Destinations) > cfg.MaxDestinations {
		return fmt.Errorf("too many destinations: %d (max %d)", len(req.Destinations), cfg.MaxDestinations)
	}
	if req.Policy != "" && req.Policy != "eager" && req.Policy != "simulated" {
		return fmt.Errorf("invalid policy: %s", req.Policy)
	}
	if req.DepartureHour != nil && (*req.DepartureHour < 0 || *req.DepartureHour > 23) {
		return fmt.Errorf("departureHour must be in [0,23]")
	}
	for i, d := range req.Destinations {
		if len(d.Demand) == 0 {
			return fmt.Errorf("destination %d: demand is required", i)
		}
		for item, qty := range d.Demand {
			if qty <= 0 {
				return fmt.Errorf("destination %d: demand for %s must be positive", i, item)
			}
		}
		if d.NodeID == 0 && d.Location == nil {
			return fmt.Errorf("destination %d: nodeId or location is required", i)
		}
		if d.Location != nil {
			if err := checkCoordinate(d.Location); err != nil {
				return fmt.Errorf("destination %d: %w", i, err)
			}
			if !cfg.ServiceArea.Contains(d.Location.Lat, d.Location.Lng) {
				return fmt.Errorf("destination %d: location outside the service area", i)
			}
		}
	}
	return nil
}

func validateSupplierIn(cfg *config.Config, in *model.SupplierIn) error {
	if in.Name == "" {
		return fmt.Errorf("name is required")
	}
	if in.Capacity < 0 {
		return fmt.Errorf("capacity must be >= 0")
	}
	for item, qty := range in.Stock {
		if qty < 0 {
			return fmt.Errorf("stock for %s must be >= 0", item)
		}
	}
	if in.NodeID == 0 && in.Location == nil {
		return fmt.Errorf("nodeId or location is required")
	}
	if in.Location != nil {
		if err := checkCoordinate(in.Location); err != nil {
			return err
		}
		if !cfg.ServiceArea.Contains(in.Location.Lat, in.Location.Lng) {
			return fmt.Errorf("location outside the service area")
		}
	}
	return nil
}

// checkCoordinate rejects values outside valid latitude/longitude ranges
// before the service-area test.
func checkCoordinate(pt *model.GeoPoint) error {
	if pt.Lat < -90 || pt.Lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90,90]", pt.Lat)
	}
	if pt.Lng < -180 || pt.Lng > 180 {
		return fmt.Errorf("longitude %v out of range [-180,180]", pt.Lng)
	}
	return nil
}
