package decode

import (
	"strconv"

	"shipscore.ai/internal/vschem/model"
	"shipscore.ai/internal/vschem/schemerr"
	"shipscore.ai/internal/vschem/tree"
)

// Contraption decodes the sub-schematic stored at Contraption/Blocks in an
// entity tag. ok is false when the entity carries no contraption. Local state
// indices are checked against the local palette only.
func Contraption(entity *tree.Compound) (c *model.Contraption, ok bool, err error) {
	if !entity.Has("Contraption") {
		return nil, false, nil
	}
	outer, err := entity.Compound("Contraption")
	if err != nil {
		return nil, false, err
	}
	blocks, err := outer.Compound("Blocks")
	if err != nil {
		return nil, false, err
	}
	palette, err := paletteAt(blocks, "Palette")
	if err != nil {
		return nil, false, err
	}
	list, err := blocks.List("BlockList")
	if err != nil {
		return nil, false, err
	}

	c = &model.Contraption{Palette: palette, Blocks: make([]model.ContraptionBlock, 0, list.Len())}
	err = list.EachCompound(func(i int, e *tree.Compound) error {
		state, err := e.Int32("State")
		if err != nil {
			return err
		}
		if state < 0 || int(state) >= len(palette) {
			return schemerr.Index(list.Path()+"/["+strconv.Itoa(i)+"]/State", "contraption palette index", int(state), len(palette))
		}
		b := model.ContraptionBlock{State: state}
		if e.Has("Data") {
			if b.Data, err = e.Compound("Data"); err != nil {
				return err
			}
		}
		c.Blocks = append(c.Blocks, b)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}
