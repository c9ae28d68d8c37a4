package hashtrie

import (
	"github.com/ValentinKolb/htrie/lib/table"
	"github.com/ValentinKolb/htrie/lib/table/util"
)

// Metadata is the implementation specific part of table.Info
type Metadata struct {
	HashLevel        int                    `json:"hash_level"`
	RootHashLevel    int                    `json:"root_hash_level"`
	MaxLevel         int                    `json:"max_level"`
	FailLimit        int                    `json:"fail_limit"`
	Recycling        bool                   `json:"recycling"`
	Participants     int                    `json:"participants"`
	Borrowers        int                    `json:"borrowers"`
	Registered       int                    `json:"registered"`
	CurrentEpoch     uint64                 `json:"current_epoch"`
	SafeEpoch        uint64                 `json:"safe_epoch"`
	ArrayNodes       int                    `json:"array_nodes"`
	DataNodes        int                    `json:"data_nodes"`
	RootDistribution util.DistributionStats `json:"root_distribution"`
	Depth            util.HistogramSummary  `json:"depth"`
	Allocations      uint64                 `json:"allocations"`
	Reuses           uint64                 `json:"reuses"`
	Retirements      uint64                 `json:"retirements"`
	Info             string                 `json:"info"`
}

// GetInfo walks the trie and reports its shape. The walk only reads array
// slots and node kinds, which never change once published, so it needs no
// handle. Next to concurrent writers the numbers are a fuzzy snapshot.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (m *Map[K, V]) GetInfo() table.Info {
	meta := &Metadata{
		HashLevel:     m.opts.HashLevel,
		RootHashLevel: m.opts.RootHashLevel,
		MaxLevel:      m.geo.MaxLevel,
		FailLimit:     m.opts.FailLimit,
		Recycling:     !m.opts.DisableRecycle,
		Participants:  m.opts.Participants,
		Borrowers:     m.opts.Borrowers,
		Info:          "Node counts are taken while writers may be active and can be inexact.",
	}

	collectShape(m, meta)

	totals := m.handleStats()
	meta.Registered = m.reclaimer.Registered()
	meta.CurrentEpoch = m.reclaimer.CurrentEpoch()
	meta.SafeEpoch = m.reclaimer.SafeEpoch()
	meta.Allocations = totals.allocs
	meta.Reuses = totals.reuses
	meta.Retirements = totals.retired

	features := []table.Feature{
		table.FeatureInsert, table.FeatureGet,
		table.FeatureUpdate, table.FeatureRemove,
		table.FeatureLockFree, table.FeatureWaitFreeGet,
	}
	if !m.opts.DisableRecycle {
		features = append(features, table.FeatureRecycle)
	}

	return table.Info{
		Len:               m.Len(),
		Impl:              table.ImplHashTrie,
		SupportedFeatures: features,
		Metadata:          meta,
	}
}

// collectShape counts the nodes per root slot and the depth of every data node
func collectShape[K comparable, V any](m *Map[K, V], meta *Metadata) {
	depth := util.NewLinearHistogram(m.geo.MaxLevel)
	perRoot := make([]float64, len(m.root.slots))

	var walk func(n *node[K, V], level int) int
	walk = func(n *node[K, V], level int) int {
		entries := 0
		for i := range n.slots {
			child := n.slots[i].Load()
			switch {
			case child == nil:
			case child.isArray():
				meta.ArrayNodes++
				entries += walk(child, level+1)
			default:
				depth.AddSample(level)
				entries++
			}
		}
		return entries
	}

	for i := range m.root.slots {
		child := m.root.slots[i].Load()
		switch {
		case child == nil:
		case child.isArray():
			meta.ArrayNodes++
			perRoot[i] = float64(walk(child, 1))
		default:
			depth.AddSample(0)
			perRoot[i] = 1
		}
		meta.DataNodes += int(perRoot[i])
	}

	meta.RootDistribution = util.NewDistributionStats(perRoot)
	meta.Depth = depth.Summary()
}
