package placement

import (
	"fmt"

	"github.com/MeridianExplorer/noobaa-core/pkg/catalog"
	"github.com/MeridianExplorer/noobaa-core/pkg/types"
)

// PoolGroupsForBucket walks a reference-resolved bucket document down to its
// first tier's pools and expands them into PoolGroups: MIRROR yields one
// single-pool group per pool, SPREAD yields one group holding all of them.
// Only the tiering policy's first tier is considered in this version; later
// tiers are a documented open item (tiering waterfall/spillover is out of
// scope here).
func PoolGroupsForBucket(bucket catalog.Document) ([]types.PoolGroup, error) {
	tiering, ok := bucket["tiering"].(catalog.Document)
	if !ok {
		return nil, fmt.Errorf("placement: bucket %q has no resolved tiering policy", bucket.ID())
	}

	tiers, ok := tiering["tiers"].([]interface{})
	if !ok || len(tiers) == 0 {
		return nil, fmt.Errorf("placement: tiering policy %q has no tiers", tiering.ID())
	}

	tier, ok := tiers[0].(catalog.Document)
	if !ok {
		return nil, fmt.Errorf("placement: tiering policy %q's first tier did not resolve", tiering.ID())
	}

	placement, _ := tier["data_placement"].(string)
	rawPools, ok := tier["pools"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("placement: tier %q has no resolved pools", tier.ID())
	}

	var poolIDs []string
	for _, p := range rawPools {
		pool, ok := p.(catalog.Document)
		if !ok {
			return nil, fmt.Errorf("placement: tier %q has an unresolved pool reference", tier.ID())
		}
		poolIDs = append(poolIDs, pool.ID())
	}

	switch types.DataPlacement(placement) {
	case types.PlacementSpread:
		return []types.PoolGroup{poolIDs}, nil
	case types.PlacementMirror:
		groups := make([]types.PoolGroup, 0, len(poolIDs))
		for _, id := range poolIDs {
			groups = append(groups, types.PoolGroup{id})
		}
		return groups, nil
	default:
		return nil, fmt.Errorf("placement: tier %q has unknown data_placement %q", tier.ID(), placement)
	}
}
