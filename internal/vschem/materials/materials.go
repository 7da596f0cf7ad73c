// Package materials extracts camouflage block states from the auxiliary
// records of disguise-capable blocks.
package materials

import (
	"sort"
	"strings"

	"shipscore.ai/internal/vschem/decode"
	"shipscore.ai/internal/vschem/model"
	"shipscore.ai/internal/vschem/tree"
)

// PlaceholderBlock is the material reported by an undisguised copycat.
const PlaceholderBlock = "create:copycat_base"

// Block types with registered extractors.
const (
	MultistateCopycat  = "copycats:multistate_copycat"
	CreateCopycat      = "create:copycat"
	CopycatsCopycat    = "copycats:copycat"
	CopycatSlidingDoor = "copycats:copycat_sliding_door"
	FramedTile         = "framedblocks:framed_tile"
)

// DefaultNamespacePrefixes gate extraction for top-level grid blocks: the
// record's "id" must start with one of them.
var DefaultNamespacePrefixes = []string{"copycats", "framedblocks", "create:copycat"}

// Extractor pulls material block states out of one auxiliary record.
type Extractor func(rec *tree.Compound) ([]*model.BlockState, error)

// Mapper is an immutable registry of extractors keyed by block name.
type Mapper struct {
	byName map[string]Extractor
}

// NewMapper copies the given registrations.
func NewMapper(reg map[string]Extractor) *Mapper {
	m := &Mapper{byName: make(map[string]Extractor, len(reg))}
	for name, fn := range reg {
		m.byName[name] = fn
	}
	return m
}

// Default returns the mapper for the supported copycat and framed blocks.
func Default() *Mapper {
	return NewMapper(map[string]Extractor{
		MultistateCopycat:  multistateMaterials,
		CreateCopycat:      singleMaterial,
		CopycatsCopycat:    singleMaterial,
		CopycatSlidingDoor: singleMaterial,
		FramedTile:         framedCamos,
	})
}

// Lookup reports the extractor for a block name.
func (m *Mapper) Lookup(name string) (Extractor, bool) {
	if m == nil {
		return nil, false
	}
	fn, ok := m.byName[name]
	return fn, ok
}

// Extract runs the extractor for name. Unregistered names yield nothing.
func (m *Mapper) Extract(name string, rec *tree.Compound) ([]*model.BlockState, error) {
	fn, ok := m.Lookup(name)
	if !ok {
		return nil, nil
	}
	return fn(rec)
}

// Names lists the registered block names in sorted order.
func (m *Mapper) Names() []string {
	out := make([]string, 0, len(m.byName))
	for k := range m.byName {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// HasPrefix reports whether id starts with any of prefixes.
func HasPrefix(id string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(id, p) {
			return true
		}
	}
	return false
}

// multistateMaterials reads material_data: {<part>: {material: <state>}}.
func multistateMaterials(rec *tree.Compound) ([]*model.BlockState, error) {
	var out []*model.BlockState
	if !rec.Has("material_data") {
		return out, nil
	}
	data, err := rec.Compound("material_data")
	if err != nil {
		return nil, err
	}
	err = data.Each(func(_ string, v tree.Value) error {
		part, err := tree.AsCompound(v)
		if err != nil {
			return err
		}
		mat, err := part.Compound("material")
		if err != nil {
			return err
		}
		bs, err := decode.BlockState(mat)
		if err != nil {
			return err
		}
		if bs.Name != PlaceholderBlock {
			out = append(out, bs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// singleMaterial reads a Material state compound.
func singleMaterial(rec *tree.Compound) ([]*model.BlockState, error) {
	var out []*model.BlockState
	if !rec.Has("Material") {
		return out, nil
	}
	mat, err := rec.Compound("Material")
	if err != nil {
		return nil, err
	}
	bs, err := decode.BlockState(mat)
	if err != nil {
		return nil, err
	}
	if bs.Name != PlaceholderBlock {
		out = append(out, bs)
	}
	return out, nil
}

// framedCamos reads every camo* compound that carries a state.
func framedCamos(rec *tree.Compound) ([]*model.BlockState, error) {
	var out []*model.BlockState
	err := rec.Each(func(key string, v tree.Value) error {
		if !strings.HasPrefix(key, "camo") {
			return nil
		}
		camo, err := tree.AsCompound(v)
		if err != nil {
			return err
		}
		if !camo.Has("state") {
			return nil
		}
		st, err := camo.Compound("state")
		if err != nil {
			return err
		}
		bs, err := decode.BlockState(st)
		if err != nil {
			return err
		}
		out = append(out, bs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
