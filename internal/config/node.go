// Package config loads the node's startup configuration (§6.4):
// identity, tokens, peer sets, cycle intervals, deployment
// environment, and the ticker-group catalogue path. Structured like
// the teacher's own YAML provider config (yaml.v3 tags plus a
// Validate method run right after unmarshal), generalized from a
// provider-operations shape to a node-identity shape.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// NodeConfig is everything the node needs at startup (§6.4).
type NodeConfig struct {
	Name           string   `yaml:"name"`
	ListenPort     int      `yaml:"listen_port"`
	Environment    string   `yaml:"environment"` // only "production" enables public fan-out
	PrimaryToken   string   `yaml:"primary_token"`
	SecondaryToken string   `yaml:"secondary_token"`
	InternalPeers  []string `yaml:"internal_peers"`
	PublicPeers    []string `yaml:"public_peers"`

	// CoreNetworkURL, when set, puts the node in follower mode: the
	// Fetch & Distribution Worker is replaced by a Sync Puller (§4.5).
	CoreNetworkURL string `yaml:"core_network_url"`

	Cycle       CycleConfig `yaml:"cycle"`
	TickerGroup string      `yaml:"ticker_group_path"`

	ChartURL       string `yaml:"chart_url"`
	LimitPerMinute int    `yaml:"limit_per_minute"`
}

// CycleConfig controls the worker's per-iteration pacing (§4.5 step 5,
// follower refresh interval).
type CycleConfig struct {
	OfficeHoursSeconds    int `yaml:"office_hours_seconds"`     // typically 30
	NonOfficeHoursSeconds int `yaml:"non_office_hours_seconds"` // typically 300
	FollowerRefreshSeconds int `yaml:"follower_refresh_seconds"` // default 300
}

// IsProduction reports whether public-peer fan-out is enabled (§4.5
// step c: "when environment == production").
func (c NodeConfig) IsProduction() bool {
	return c.Environment == "production"
}

// IsFollower reports whether the node should run the Sync Puller
// instead of the Fetch & Distribution Worker.
func (c NodeConfig) IsFollower() bool {
	return c.CoreNetworkURL != ""
}

// OfficeHours and NonOfficeHours return the configured office-hours
// and non-office-hours cycle intervals as durations.
func (c CycleConfig) OfficeHours() time.Duration {
	return time.Duration(c.OfficeHoursSeconds) * time.Second
}

func (c CycleConfig) NonOfficeHours() time.Duration {
	return time.Duration(c.NonOfficeHoursSeconds) * time.Second
}

func (c CycleConfig) FollowerRefresh() time.Duration {
	if c.FollowerRefreshSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.FollowerRefreshSeconds) * time.Second
}

// Load reads and validates a NodeConfig from a YAML file at path.
func Load(path string) (*NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading node config: %w", err)
	}

	var cfg NodeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing node config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid node config: %w", err)
	}
	return &cfg, nil
}

// Validate enforces the invariants startup depends on (§4.5 "failure
// semantics: unrecoverable configuration errors must be caught at
// startup").
func (c *NodeConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return fmt.Errorf("listen_port must be between 1 and 65535, got %d", c.ListenPort)
	}
	if c.PrimaryToken == "" || c.SecondaryToken == "" {
		return fmt.Errorf("primary_token and secondary_token are both required")
	}
	if c.PrimaryToken == c.SecondaryToken {
		return fmt.Errorf("primary_token and secondary_token must differ")
	}
	if !c.IsFollower() {
		if c.ChartURL == "" {
			return fmt.Errorf("chart_url is required in core mode")
		}
		if c.TickerGroup == "" {
			return fmt.Errorf("ticker_group_path is required in core mode")
		}
		if c.Cycle.OfficeHoursSeconds <= 0 || c.Cycle.NonOfficeHoursSeconds <= 0 {
			return fmt.Errorf("cycle.office_hours_seconds and non_office_hours_seconds must be positive in core mode")
		}
		if c.LimitPerMinute <= 0 {
			return fmt.Errorf("limit_per_minute must be positive in core mode")
		}
	}
	return nil
}
