package placement

import (
	"time"

	"github.com/MeridianExplorer/noobaa-core/pkg/types"
)

// classify assigns a block's liveness bucket per spec.md 4.4's table, and
// reports whether it counts as accessible (a usable replication source).
// srvmode "disabled" always sorts into long_gone regardless of heartbeat.
// A live srvmode "decommissioning" block is accessible but is kept out of
// good: the node is on its way out, so it must not satisfy OPTIMAL_REPLICAS
// or mask a fragment that needs repair onto healthy nodes.
func classify(b types.Block, now time.Time, p Policy) (types.BlockBucket, bool) {
	heartbeatAge := now.Sub(b.Node.Heartbeat)

	if heartbeatAge > p.LongGoneThreshold || b.Node.Srvmode == types.SrvModeDisabled {
		return types.BucketLongGone, false
	}
	if heartbeatAge > p.ShortGoneThreshold {
		return types.BucketShortGone, false
	}
	if b.Building != nil {
		if now.Sub(*b.Building) > p.LongBuildThreshold {
			return types.BucketLongBuilding, false
		}
		return types.BucketBuilding, false
	}
	if b.Node.Srvmode == types.SrvModeDecommissioning {
		return types.BucketDecommissioning, true
	}
	return types.BucketGood, true
}

// blockAccessLess returns the sort.SliceStable Less function implementing
// block_access_sort: building blocks last, srvmode-set blocks last,
// otherwise most-recent heartbeat first.
func blockAccessLess(blocks []types.Block) func(i, j int) bool {
	return func(i, j int) bool {
		a, b := blocks[i], blocks[j]

		aBuilding, bBuilding := a.Building != nil, b.Building != nil
		if aBuilding != bBuilding {
			return !aBuilding
		}

		aSrv, bSrv := a.Node.Srvmode != types.SrvModeNone, b.Node.Srvmode != types.SrvModeNone
		if aSrv != bSrv {
			return !aSrv
		}

		return a.Node.Heartbeat.After(b.Node.Heartbeat)
	}
}

// filterFrag returns the subset of blocks on the data layer at frag.
func filterFrag(blocks []types.Block, frag int) []types.Block {
	var out []types.Block
	for _, b := range blocks {
		if b.Layer == types.LayerData && b.Frag == frag {
			out = append(out, b)
		}
	}
	return out
}

// flattenPools unions every pool across every group into a single set, per
// this version's documented simplification (spec.md 4.4: per-pool-group
// mirror analysis is the intended future extension point).
func flattenPools(groups []types.PoolGroup) map[string]bool {
	set := make(map[string]bool)
	for _, g := range groups {
		for _, pool := range g {
			set[pool] = true
		}
	}
	return set
}

// partitionByPool splits blocks into those whose node lives in a policy
// pool and those that don't.
func partitionByPool(blocks []types.Block, poolSet map[string]bool) (policy, other []types.Block) {
	for _, b := range blocks {
		if poolSet[b.Node.Pool] {
			policy = append(policy, b)
		} else {
			other = append(other, b)
		}
	}
	return policy, other
}
