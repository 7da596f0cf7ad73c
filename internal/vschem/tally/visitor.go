// Package tally walks a decoded schematic and counts blocks and the
// camouflage materials they carry.
package tally

import (
	"strconv"

	"shipscore.ai/internal/vschem/decode"
	"shipscore.ai/internal/vschem/materials"
	"shipscore.ai/internal/vschem/model"
	"shipscore.ai/internal/vschem/schemerr"
)

// Visitor aggregates counts for one schematic. A Visitor holds no state
// between Visit calls and may be shared.
type Visitor struct {
	Mapper *materials.Mapper
	// Prefixes gate extraction for top-level blocks. Nil selects
	// materials.DefaultNamespacePrefixes.
	Prefixes []string
	// OnGrid, if set, is called before each grid is walked.
	OnGrid func(g *model.ShipGrid)
}

type Result struct {
	Counts       *Counts
	GridCount    int
	EntityCount  int
	Contraptions int
}

// Visit walks grids in order, then entities.
func (v *Visitor) Visit(s *model.Schematic) (*Result, error) {
	r := &Result{
		Counts:      NewCounts(),
		GridCount:   len(s.Grids),
		EntityCount: len(s.Entities),
	}
	prefixes := v.Prefixes
	if prefixes == nil {
		prefixes = materials.DefaultNamespacePrefixes
	}

	for gi := range s.Grids {
		g := &s.Grids[gi]
		if v.OnGrid != nil {
			v.OnGrid(g)
		}
		for bi, e := range g.Blocks {
			if err := v.visitBlock(s, g, bi, e, prefixes, r.Counts); err != nil {
				return nil, err
			}
		}
	}

	for _, ent := range s.Entities {
		ok, err := v.visitEntity(ent, r.Counts)
		if err != nil {
			return nil, err
		}
		if ok {
			r.Contraptions++
		}
	}
	return r, nil
}

func (v *Visitor) visitBlock(s *model.Schematic, g *model.ShipGrid, bi int, e model.BlockEntry, prefixes []string, counts *Counts) error {
	path := decode.KeyGridData + "/" + g.ID + "/[" + strconv.Itoa(bi) + "]"
	if e.PID < 0 || int(e.PID) >= len(s.Palette) {
		return schemerr.Index(path+"/pid", "palette index", int(e.PID), len(s.Palette))
	}
	state := s.Palette[e.PID]

	if e.HasExtraData() {
		if e.EDI < 0 || int(e.EDI) >= len(s.ExtraData) {
			return schemerr.Index(path+"/edi", "extra data index", int(e.EDI), len(s.ExtraData))
		}
		rec := s.ExtraData[e.EDI]
		if rec.Has("id") {
			id, err := rec.String("id")
			if err != nil {
				return err
			}
			if materials.HasPrefix(id, prefixes) {
				if err := v.extract(state.Name, rec, counts); err != nil {
					return err
				}
			}
		}
	}

	counts.Increment(state.Name)
	return nil
}

// visitEntity counts a contraption's blocks. Unlike grid blocks there is no
// namespace gate: any block with Data goes through the mapper.
func (v *Visitor) visitEntity(ent model.EntityItem, counts *Counts) (bool, error) {
	c, ok, err := decode.Contraption(ent.Tag)
	if err != nil || !ok {
		return false, err
	}
	for _, b := range c.Blocks {
		state := c.Palette[b.State]
		if b.Data != nil {
			if err := v.extract(state.Name, b.Data, counts); err != nil {
				return false, err
			}
		}
		counts.Increment(state.Name)
	}
	return true, nil
}

func (v *Visitor) extract(name string, rec model.AuxRecord, counts *Counts) error {
	fn, ok := v.Mapper.Lookup(name)
	if !ok {
		return nil
	}
	states, err := fn(rec)
	if err != nil {
		return err
	}
	counts.AddNested(name, states)
	return nil
}
