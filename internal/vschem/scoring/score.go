package scoring

import (
	"shipscore.ai/internal/vschem/tally"
)

// Stats is the summary returned for one schematic.
type Stats struct {
	GridCount       int    `json:"grid_count"`
	EntityCount     int    `json:"entity_count"`
	TotalBlockCount uint64 `json:"total_block_count"`
	TotalPower      int64  `json:"total_power"`
}

// Power sums score*count over every leaf of counts and every rule matching
// the leaf key. The block total is not included.
func (t *Table) Power(counts *tally.Counts) int64 {
	var p int64
	counts.Leaves(func(key string, n uint64) {
		for _, r := range t.Rules {
			if r.Match(key) {
				p += r.Score * int64(n)
			}
		}
	})
	return p
}

// Compute scores an aggregation result. Power is the rule total plus the
// block total as a flat baseline.
func Compute(r *tally.Result, t *Table) Stats {
	blocks := r.Counts.Total()
	power := int64(blocks)
	if t != nil {
		power += t.Power(r.Counts)
	}
	return Stats{
		GridCount:       r.GridCount,
		EntityCount:     r.EntityCount,
		TotalBlockCount: blocks,
		TotalPower:      power,
	}
}
