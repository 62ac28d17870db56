// Package placement implements the Placement Analyzer: a pure function
// computing per-fragment block health, removal, and allocation decisions
// for one chunk. It performs no I/O and must not suspend (spec.md 5) — all
// inputs are expected to already be fully hydrated before Analyze runs.
package placement

import (
	"sort"
	"time"

	"github.com/MeridianExplorer/noobaa-core/pkg/metrics"
	"github.com/MeridianExplorer/noobaa-core/pkg/types"
)

// Policy holds the tunable liveness/replication thresholds the analyzer
// classifies blocks against.
type Policy struct {
	OptimalReplicas    int
	LongGoneThreshold  time.Duration
	ShortGoneThreshold time.Duration
	LongBuildThreshold time.Duration
}

// Input is everything Analyze needs for one chunk. AllocatedBlocks must
// already carry resolved Node data (pool, heartbeat, srvmode).
type Input struct {
	Chunk           types.Chunk
	AllocatedBlocks []types.Block
	PoolGroups      []types.PoolGroup
	Now             time.Time
	Policy          Policy
}

// AllocationRequest describes one replica the allocator should create.
type AllocationRequest struct {
	System  string
	Tier    string
	ChunkID string
	Layer   types.FragmentLayer
	Frag    int
	Source  types.Block
}

// FragmentResult is the per-fragment breakdown, bucketed by liveness.
type FragmentResult struct {
	Frag             int
	Health           types.FragmentHealth
	Good             []types.Block
	Decommissioning  []types.Block
	LongGone         []types.Block
	ShortGone        []types.Block
	LongBuilding     []types.Block
	Building         []types.Block
	AccessibleBlocks []types.Block
	BlocksToRemove   []types.Block
	BlocksToAllocate []AllocationRequest
}

// Result is Analyze's full output. The caller (allocator) actuates
// BlocksToRemove and BlocksToAllocate; the analyzer only describes the work.
type Result struct {
	Chunk            types.Chunk
	AllBlocks        []types.Block // the chunk's policy_blocks
	Fragments        []FragmentResult
	BlocksToAllocate []AllocationRequest
	BlocksToRemove   []types.Block
	ChunkHealth      types.ChunkHealth
	MirroredPool     bool
}

// Analyze runs the per-fragment analysis described in spec.md 4.4. Only
// data fragments are iterated; parity fragments are a documented open item.
func Analyze(in Input) Result {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.PlacementAnalyzeDuration)

	poolSet := flattenPools(in.PoolGroups)
	policyBlocks, otherBlocks := partitionByPool(in.AllocatedBlocks, poolSet)

	// Step 2: no policy_blocks anywhere on the chunk means this pool set
	// owns no replicas yet and must receive a full mirror.
	mirroredPool := len(policyBlocks) == 0

	result := Result{
		Chunk:        in.Chunk,
		AllBlocks:    policyBlocks,
		MirroredPool: mirroredPool,
		ChunkHealth:  types.ChunkAvailable,
	}

	for frag := 0; frag < in.Chunk.DataFrags; frag++ {
		fr := analyzeFragment(in, frag, policyBlocks, otherBlocks, mirroredPool)
		result.Fragments = append(result.Fragments, fr)
		result.BlocksToRemove = append(result.BlocksToRemove, fr.BlocksToRemove...)
		result.BlocksToAllocate = append(result.BlocksToAllocate, fr.BlocksToAllocate...)

		if fr.Health == types.HealthUnavailable {
			result.ChunkHealth = types.ChunkUnavailable
		}
		metrics.PlacementDecisionsTotal.WithLabelValues(string(fr.Health)).Inc()
	}

	metrics.PlacementAllocationsRequestedTotal.Add(float64(len(result.BlocksToAllocate)))
	for _, b := range result.BlocksToRemove {
		bucket, _ := classify(b, in.Now, in.Policy)
		metrics.PlacementBlocksToRemoveTotal.WithLabelValues(string(bucket)).Inc()
	}

	return result
}

// analyzeFragment runs steps 3-8 of spec.md 4.4 for one (layer=D, frag).
func analyzeFragment(in Input, frag int, policyBlocks, otherBlocks []types.Block, mirroredPool bool) FragmentResult {
	fragPolicy := filterFrag(policyBlocks, frag)
	fragOther := filterFrag(otherBlocks, frag)

	sort.SliceStable(fragPolicy, blockAccessLess(fragPolicy))
	sort.SliceStable(fragOther, blockAccessLess(fragOther))

	fr := FragmentResult{Frag: frag}

	for _, b := range fragPolicy {
		switch bucket, _ := classify(b, in.Now, in.Policy); bucket {
		case types.BucketLongGone:
			fr.LongGone = append(fr.LongGone, b)
		case types.BucketShortGone:
			fr.ShortGone = append(fr.ShortGone, b)
		case types.BucketLongBuilding:
			fr.LongBuilding = append(fr.LongBuilding, b)
		case types.BucketBuilding:
			fr.Building = append(fr.Building, b)
		case types.BucketDecommissioning:
			fr.Decommissioning = append(fr.Decommissioning, b)
		case types.BucketGood:
			fr.Good = append(fr.Good, b)
		}
	}

	var accessibleOther []types.Block
	for _, b := range fragOther {
		if _, accessible := classify(b, in.Now, in.Policy); accessible {
			accessibleOther = append(accessibleOther, b)
		}
	}

	fr.AccessibleBlocks = append(append([]types.Block{}, fr.Good...), fr.Decommissioning...)
	fr.AccessibleBlocks = append(fr.AccessibleBlocks, accessibleOther...)

	good := len(fr.Good)
	accessible := len(fr.AccessibleBlocks)

	switch {
	case accessible == 0:
		fr.Health = types.HealthUnavailable
	case (good < in.Policy.OptimalReplicas && accessible > 0) || mirroredPool:
		fr.Health = types.HealthRepairing
	default:
		fr.Health = types.HealthHealthy
	}

	if good > in.Policy.OptimalReplicas {
		fr.BlocksToRemove = append(fr.BlocksToRemove, fr.LongBuilding...)
		fr.BlocksToRemove = append(fr.BlocksToRemove, fr.LongGone...)
		fr.BlocksToRemove = append(fr.BlocksToRemove, fr.Good[in.Policy.OptimalReplicas:]...)
	}

	if fr.Health == types.HealthRepairing && len(fr.AccessibleBlocks) > 0 {
		numToAdd := in.Policy.OptimalReplicas - good
		for i := 0; i < numToAdd; i++ {
			source := fr.AccessibleBlocks[i%len(fr.AccessibleBlocks)]
			fr.BlocksToAllocate = append(fr.BlocksToAllocate, AllocationRequest{
				System:  in.Chunk.System,
				Tier:    in.Chunk.Tier,
				ChunkID: in.Chunk.ID,
				Layer:   types.LayerData,
				Frag:    frag,
				Source:  source,
			})
		}
	}

	return fr
}
