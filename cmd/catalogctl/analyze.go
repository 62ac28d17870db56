package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeridianExplorer/noobaa-core/pkg/placement"
	"github.com/MeridianExplorer/noobaa-core/pkg/types"
)

// analyzeFixture is the YAML shape catalogctl analyze reads: a chunk, its
// already-hydrated blocks, and the pool groups the owning tier resolves to.
// This lets the Placement Analyzer be exercised offline, without a live
// catalog, since it never performs I/O of its own.
type analyzeFixture struct {
	Chunk struct {
		ID        string `yaml:"id"`
		System    string `yaml:"system"`
		Tier      string `yaml:"tier"`
		DataFrags int    `yaml:"data_frags"`
	} `yaml:"chunk"`
	Blocks []struct {
		ID    string `yaml:"id"`
		Frag  int    `yaml:"frag"`
		Node  struct {
			ID        string `yaml:"id"`
			Pool      string `yaml:"pool"`
			Heartbeat string `yaml:"heartbeat"`
			Srvmode   string `yaml:"srvmode"`
		} `yaml:"node"`
		Building string `yaml:"building"`
	} `yaml:"blocks"`
	PoolGroups [][]string `yaml:"pool_groups"`
	Policy     struct {
		OptimalReplicas    int    `yaml:"optimal_replicas"`
		LongGoneThreshold  string `yaml:"long_gone_threshold"`
		ShortGoneThreshold string `yaml:"short_gone_threshold"`
		LongBuildThreshold string `yaml:"long_build_threshold"`
	} `yaml:"policy"`
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze -f FIXTURE",
	Short: "Run the Placement Analyzer against a fixture and print its decision",
	RunE: func(cmd *cobra.Command, args []string) error {
		filename, _ := cmd.Flags().GetString("file")

		data, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("failed to read fixture: %w", err)
		}

		var fx analyzeFixture
		if err := yaml.Unmarshal(data, &fx); err != nil {
			return fmt.Errorf("failed to parse fixture: %w", err)
		}

		in, err := fixtureToInput(fx)
		if err != nil {
			return err
		}

		result := placement.Analyze(in)

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringP("file", "f", "", "YAML fixture to analyze (required)")
	_ = analyzeCmd.MarkFlagRequired("file")
}

func fixtureToInput(fx analyzeFixture) (placement.Input, error) {
	now := time.Now()

	policy := placement.Policy{
		OptimalReplicas:    fx.Policy.OptimalReplicas,
		LongGoneThreshold:  7 * 24 * time.Hour,
		ShortGoneThreshold: time.Hour,
		LongBuildThreshold: 4 * time.Hour,
	}
	if policy.OptimalReplicas == 0 {
		policy.OptimalReplicas = 3
	}
	if d, err := parseOptionalDuration(fx.Policy.LongGoneThreshold); err == nil && d > 0 {
		policy.LongGoneThreshold = d
	}
	if d, err := parseOptionalDuration(fx.Policy.ShortGoneThreshold); err == nil && d > 0 {
		policy.ShortGoneThreshold = d
	}
	if d, err := parseOptionalDuration(fx.Policy.LongBuildThreshold); err == nil && d > 0 {
		policy.LongBuildThreshold = d
	}

	var blocks []types.Block
	for _, b := range fx.Blocks {
		heartbeat, err := time.Parse(time.RFC3339, b.Node.Heartbeat)
		if err != nil {
			return placement.Input{}, fmt.Errorf("block %s: invalid heartbeat: %w", b.ID, err)
		}

		block := types.Block{
			ID:    b.ID,
			Layer: types.LayerData,
			Frag:  b.Frag,
			Node: types.Node{
				ID:        b.Node.ID,
				Pool:      b.Node.Pool,
				Heartbeat: heartbeat,
				Srvmode:   types.ServiceMode(b.Node.Srvmode),
			},
		}
		if b.Building != "" {
			started, err := time.Parse(time.RFC3339, b.Building)
			if err != nil {
				return placement.Input{}, fmt.Errorf("block %s: invalid building timestamp: %w", b.ID, err)
			}
			block.Building = &started
		}
		blocks = append(blocks, block)
	}

	var groups []types.PoolGroup
	for _, g := range fx.PoolGroups {
		groups = append(groups, types.PoolGroup(g))
	}

	return placement.Input{
		Chunk: types.Chunk{
			ID:        fx.Chunk.ID,
			System:    fx.Chunk.System,
			Tier:      fx.Chunk.Tier,
			DataFrags: fx.Chunk.DataFrags,
		},
		AllocatedBlocks: blocks,
		PoolGroups:      groups,
		Now:             now,
		Policy:          policy,
	}, nil
}

func parseOptionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
