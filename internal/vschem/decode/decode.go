package decode

import (
	"io"
	"strconv"

	"shipscore.ai/internal/vschem/framing"
	"shipscore.ai/internal/vschem/model"
	"shipscore.ai/internal/vschem/schemerr"
	"shipscore.ai/internal/vschem/tree"
)

// Root keys of a ship schematic document.
const (
	KeyBlockPalette   = "blockPalette"
	KeyGridData       = "gridData"
	KeyExtraBlockData = "extraBlockData"
	KeyEntityData     = "entityData"
)

// Read unframes, decompresses and decodes a container. maxHeaderLength <= 0
// selects framing.DefaultMaxLength.
func Read(r io.Reader, maxHeaderLength int) (framing.Header, *model.Schematic, error) {
	h, body, err := framing.Open(r, maxHeaderLength)
	if err != nil {
		return h, nil, err
	}
	defer body.Close()

	root, err := tree.Decode(body)
	if err != nil {
		return h, nil, err
	}
	s, err := Schematic(root)
	if err != nil {
		return h, nil, err
	}
	return h, s, nil
}

// Schematic builds the domain model from a root compound. It either returns a
// fully valid schematic or an error; nothing partial escapes.
func Schematic(root *tree.Compound) (*model.Schematic, error) {
	palette, err := paletteAt(root, KeyBlockPalette)
	if err != nil {
		return nil, err
	}
	grids, err := grids(root)
	if err != nil {
		return nil, err
	}
	extra, err := extraData(root)
	if err != nil {
		return nil, err
	}
	entities, err := entities(root)
	if err != nil {
		return nil, err
	}

	s := &model.Schematic{
		Palette:   palette,
		ExtraData: extra,
		Grids:     grids,
		Entities:  entities,
	}
	if err := checkIndices(s); err != nil {
		return nil, err
	}
	return s, nil
}

// BlockState reads {Name, Properties?}. Property values of any scalar kind are
// stringified.
func BlockState(c *tree.Compound) (*model.BlockState, error) {
	name, err := c.String("Name")
	if err != nil {
		return nil, err
	}
	bs := &model.BlockState{Name: name, Properties: map[string]string{}}
	if !c.Has("Properties") {
		return bs, nil
	}
	props, err := c.Compound("Properties")
	if err != nil {
		return nil, err
	}
	_ = props.Each(func(k string, v tree.Value) error {
		bs.Properties[k] = tree.Stringify(v)
		return nil
	})
	return bs, nil
}

func paletteAt(c *tree.Compound, key string) (model.Palette, error) {
	list, err := c.List(key)
	if err != nil {
		return nil, err
	}
	palette := make(model.Palette, 0, list.Len())
	err = list.EachCompound(func(_ int, e *tree.Compound) error {
		bs, err := BlockState(e)
		if err != nil {
			return err
		}
		palette = append(palette, bs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return palette, nil
}

func grids(root *tree.Compound) ([]model.ShipGrid, error) {
	data, err := root.Compound(KeyGridData)
	if err != nil {
		return nil, err
	}
	out := make([]model.ShipGrid, 0, data.Len())
	err = data.Each(func(id string, v tree.Value) error {
		list, err := tree.AsList(v)
		if err != nil {
			return err
		}
		blocks := make([]model.BlockEntry, 0, list.Len())
		err = list.EachCompound(func(_ int, c *tree.Compound) error {
			e, err := blockEntry(c)
			if err != nil {
				return err
			}
			blocks = append(blocks, e)
			return nil
		})
		if err != nil {
			return err
		}
		out = append(out, model.ShipGrid{ID: id, Blocks: blocks, Bounds: model.BoundsOf(blocks)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func blockEntry(c *tree.Compound) (model.BlockEntry, error) {
	var e model.BlockEntry
	fields := []struct {
		key string
		dst *int32
	}{
		{"x", &e.X}, {"y", &e.Y}, {"z", &e.Z}, {"pid", &e.PID}, {"edi", &e.EDI},
	}
	for _, f := range fields {
		v, err := c.Int32(f.key)
		if err != nil {
			return e, err
		}
		*f.dst = v
	}
	return e, nil
}

func extraData(root *tree.Compound) ([]model.AuxRecord, error) {
	list, err := root.List(KeyExtraBlockData)
	if err != nil {
		return nil, err
	}
	out := make([]model.AuxRecord, 0, list.Len())
	err = list.EachCompound(func(_ int, c *tree.Compound) error {
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func entities(root *tree.Compound) ([]model.EntityItem, error) {
	if !root.Has(KeyEntityData) {
		return nil, nil
	}
	data, err := root.Compound(KeyEntityData)
	if err != nil {
		return nil, err
	}
	var out []model.EntityItem
	err = data.Each(func(_ string, v tree.Value) error {
		list, err := tree.AsList(v)
		if err != nil {
			return err
		}
		return list.EachCompound(func(_ int, c *tree.Compound) error {
			var it model.EntityItem
			for i, key := range [3]string{"posx", "posy", "posz"} {
				f, err := c.Double(key)
				if err != nil {
					return err
				}
				it.Pos[i] = f
			}
			tag, err := c.Compound("entity")
			if err != nil {
				return err
			}
			it.Tag = tag
			out = append(out, it)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func checkIndices(s *model.Schematic) error {
	for gi, g := range s.Grids {
		for bi, e := range g.Blocks {
			if e.PID < 0 || int(e.PID) >= len(s.Palette) {
				return schemerr.Index(blockPath(s, gi, bi, "pid"), "palette index", int(e.PID), len(s.Palette))
			}
			if e.EDI == model.NoExtraData {
				continue
			}
			if e.EDI < 0 || int(e.EDI) >= len(s.ExtraData) {
				return schemerr.Index(blockPath(s, gi, bi, "edi"), "extra data index", int(e.EDI), len(s.ExtraData))
			}
		}
	}
	return nil
}

func blockPath(s *model.Schematic, grid, block int, field string) string {
	return KeyGridData + "/" + s.Grids[grid].ID + "/[" + strconv.Itoa(block) + "]/" + field
}
