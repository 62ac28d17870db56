package catalogmgr

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tunable policy constants named in spec.md 6, plus the
// collaborator addresses the Manager needs to construct its store and
// cluster-RPC redirector.
type Config struct {
	// OptimalReplicas is the target number of good replicas per fragment.
	OptimalReplicas int `yaml:"optimal_replicas"`

	// LongGoneThreshold and ShortGoneThreshold classify a block's heartbeat
	// age in the Placement Analyzer.
	LongGoneThreshold  time.Duration `yaml:"long_gone_threshold"`
	ShortGoneThreshold time.Duration `yaml:"short_gone_threshold"`

	// LongBuildThreshold classifies an in-progress block as stuck.
	LongBuildThreshold time.Duration `yaml:"long_build_threshold"`

	// StartRefreshThreshold and ForceRefreshThreshold drive the Catalog
	// Manager's Warm -> Refreshing -> Loading age transitions.
	StartRefreshThreshold time.Duration `yaml:"start_refresh_threshold"`
	ForceRefreshThreshold time.Duration `yaml:"force_refresh_threshold"`

	// CoalesceInterval is the single-shot timer duration for
	// make_changes_in_background.
	CoalesceInterval time.Duration `yaml:"coalesce_interval"`

	// SelfAddr and PeerAddrs configure the cluster RPC redirector. A nil
	// PeerAddrs with an empty SelfAddr runs the Manager single-process,
	// using an in-process LocalBroker instead of a GRPCRedirector.
	SelfAddr  string   `yaml:"self_addr"`
	PeerAddrs []string `yaml:"peer_addrs"`

	// CachePath, when non-empty, is the bbolt file the Manager uses to
	// persist the last published snapshot's raw documents for fast restart
	// (SPEC_FULL.md 11.2). Empty disables the local cache.
	CachePath string `yaml:"cache_path"`
}

// DefaultConfig returns the policy defaults named in spec.md 4.3.
func DefaultConfig() Config {
	return Config{
		OptimalReplicas:       3,
		LongGoneThreshold:     7 * 24 * time.Hour,
		ShortGoneThreshold:    time.Hour,
		LongBuildThreshold:    4 * time.Hour,
		StartRefreshThreshold: 10 * time.Minute,
		ForceRefreshThreshold: 60 * time.Minute,
		CoalesceInterval:      3 * time.Second,
	}
}

// LoadConfig reads a YAML config file and overlays it onto DefaultConfig,
// the way cmd/catalogctl's manifest loading does for resource files.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("catalogmgr: read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("catalogmgr: parse config %s: %w", path, err)
	}
	return cfg, nil
}
