// Package config loads service configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`

	NodesCSV string `yaml:"nodes_csv"`
	EdgesCSV string `yaml:"edges_csv"`

	AvgSpeedKmh     float64 `yaml:"avg_speed_kmh"`
	MaxDestinations int     `yaml:"max_destinations"`

	// Compute endpoint admission control, requests per second plus burst.
	ComputeRPS   float64 `yaml:"compute_rps"`
	ComputeBurst int     `yaml:"compute_burst"`

	// TrafficFactors maps hour of day (0-23) to the uniform traffic
	// multiplier applied to every edge weight.
	TrafficFactors map[int]float64 `yaml:"traffic_factors"`

	// ServiceArea bounds accepted destination coordinates.
	ServiceArea Bounds `yaml:"service_area"`
}

type Bounds struct {
	MinLat float64 `yaml:"min_lat"`
	MaxLat float64 `yaml:"max_lat"`
	MinLng float64 `yaml:"min_lng"`
	MaxLng float64 `yaml:"max_lng"`
}

func (b Bounds) Contains(lat, lng float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lng >= b.MinLng && lng <= b.MaxLng
}

// Default returns the built-in configuration: the Lima service area and
// its hourly traffic profile.
func Default() *Config {
	return &Config{
		ListenAddr:      ":8080",
		NodesCSV:        "dataset/lima_nodes.csv",
		EdgesCSV:        "dataset/lima_edges.csv",
		AvgSpeedKmh:     30,
		MaxDestinations: 20,
		ComputeRPS:      2,
		ComputeBurst:    4,
		TrafficFactors: map[int]float64{
			0: 1.0, 1: 1.0, 2: 1.0, 3: 1.0, 4: 1.0, 5: 1.2,
			6: 1.8, 7: 2.3, 8: 2.5, 9: 1.9,
			10: 1.4, 11: 1.5, 12: 1.6, 13: 1.7, 14: 1.5,
			15: 1.6, 16: 1.8, 17: 2.2, 18: 2.5, 19: 2.3,
			20: 1.7, 21: 1.4, 22: 1.2, 23: 1.0,
		},
		ServiceArea: Bounds{MinLat: -12.3, MaxLat: -11.7, MinLng: -77.2, MaxLng: -76.8},
	}
}

// Load reads path (when non-empty) over the defaults, then applies
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.ListenAddr = ":" + v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("NODES_CSV"); v != "" {
		c.NodesCSV = v
	}
	if v := os.Getenv("EDGES_CSV"); v != "" {
		c.EdgesCSV = v
	}
	if v := os.Getenv("AVG_SPEED_KMH"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.AvgSpeedKmh = f
		}
	}
	if v := os.Getenv("MAX_DESTINATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxDestinations = n
		}
	}
}

func (c *Config) validate() error {
	if c.AvgSpeedKmh <= 0 {
		return fmt.Errorf("avg_speed_kmh must be positive, got %v", c.AvgSpeedKmh)
	}
	if c.MaxDestinations < 1 {
		return fmt.Errorf("max_destinations must be at least 1, got %d", c.MaxDestinations)
	}
	for hour, f := range c.TrafficFactors {
		if hour < 0 || hour > 23 {
			return fmt.Errorf("traffic_factors: hour %d out of range", hour)
		}
		if f < 1.0 {
			return fmt.Errorf("traffic_factors: factor %v for hour %d below 1.0", f, hour)
		}
	}
	return nil
}

// FactorAt returns the traffic multiplier for an hour of day, 1.0 when the
// hour has no entry.
func (c *Config) FactorAt(hour int) float64 {
	if f, ok := c.TrafficFactors[hour]; ok {
		return f
	}
	return 1.0
}
