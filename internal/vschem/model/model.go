package model

import (
	"shipscore.ai/internal/vschem/tree"
)

// NoExtraData marks a block entry without an auxiliary record.
const NoExtraData = -1

// BlockState is a namespaced block id plus its state properties.
type BlockState struct {
	Name       string            `json:"name"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Palette is addressed by BlockEntry.PID.
type Palette []*BlockState

// AuxRecord is the raw compound stored out of line for a block, addressed by
// BlockEntry.EDI. Its optional "id" names the block entity type.
type AuxRecord = *tree.Compound

type BlockEntry struct {
	X, Y, Z int32
	PID     int32
	EDI     int32
}

func (e BlockEntry) HasExtraData() bool { return e.EDI != NoExtraData }

type Vec3 [3]float64

// AABB is an inclusive integer box. Empty is set for grids without blocks.
type AABB struct {
	Min   [3]int32 `json:"min"`
	Max   [3]int32 `json:"max"`
	Empty bool     `json:"empty,omitempty"`
}

func (b AABB) Size() [3]int64 {
	if b.Empty {
		return [3]int64{}
	}
	var out [3]int64
	for i := range out {
		out[i] = int64(b.Max[i]) - int64(b.Min[i]) + 1
	}
	return out
}

// BoundsOf computes the box covering every block position.
func BoundsOf(blocks []BlockEntry) AABB {
	if len(blocks) == 0 {
		return AABB{Empty: true}
	}
	b := AABB{
		Min: [3]int32{blocks[0].X, blocks[0].Y, blocks[0].Z},
		Max: [3]int32{blocks[0].X, blocks[0].Y, blocks[0].Z},
	}
	for _, e := range blocks[1:] {
		p := [3]int32{e.X, e.Y, e.Z}
		for i := range p {
			b.Min[i] = min(b.Min[i], p[i])
			b.Max[i] = max(b.Max[i], p[i])
		}
	}
	return b
}

// ShipGrid is one rigid structure.
type ShipGrid struct {
	ID     string
	Blocks []BlockEntry
	Bounds AABB
}

// EntityItem is an entity saved alongside the grids. Tag is the raw entity
// state and may hold a Contraption.
type EntityItem struct {
	Pos Vec3
	Tag *tree.Compound
}

// Schematic is the decoded container. It is never mutated after decode and
// every index in it resolves within the same instance.
type Schematic struct {
	Palette   Palette
	ExtraData []AuxRecord
	Grids     []ShipGrid
	Entities  []EntityItem
}

// BlockCount is the number of top-level grid blocks.
func (s *Schematic) BlockCount() int {
	n := 0
	for _, g := range s.Grids {
		n += len(g.Blocks)
	}
	return n
}

// Contraption is the local sub-schematic carried by an entity: its own
// palette and block list, resolved independently of the top level.
type Contraption struct {
	Palette Palette
	Blocks  []ContraptionBlock
}

type ContraptionBlock struct {
	State int32
	// Data is the block's auxiliary record, nil when absent.
	Data AuxRecord
}
