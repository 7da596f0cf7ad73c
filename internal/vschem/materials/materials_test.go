package materials

import (
	"testing"

	"shipscore.ai/internal/vschem/model"
	"shipscore.ai/internal/vschem/schemerr"
	"shipscore.ai/internal/vschem/schemtest"
	"shipscore.ai/internal/vschem/tree"
)

func record(t *testing.T, m map[string]any) *tree.Compound {
	t.Helper()
	v, err := tree.FromAny(m)
	if err != nil {
		t.Fatalf("FromAny: %v", err)
	}
	c, err := tree.AsCompound(v)
	if err != nil {
		t.Fatalf("AsCompound: %v", err)
	}
	return c
}

func names(states []*model.BlockState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = s.Name
	}
	return out
}

func TestDefault_Registrations(t *testing.T) {
	got := Default().Names()
	want := []string{CopycatsCopycat, CopycatSlidingDoor, MultistateCopycat, CreateCopycat, FramedTile}
	if len(got) != len(want) {
		t.Fatalf("names: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("names[%d]: got %s want %s", i, got[i], want[i])
		}
	}
}

func TestSingleMaterial(t *testing.T) {
	m := Default()
	for _, name := range []string{CreateCopycat, CopycatsCopycat, CopycatSlidingDoor} {
		rec := record(t, map[string]any{
			"id":       name,
			"Material": schemtest.StateTag("minecraft:oak_planks", map[string]string{"axis": "y"}),
		})
		states, err := m.Extract(name, rec)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(states) != 1 || states[0].Name != "minecraft:oak_planks" || states[0].Properties["axis"] != "y" {
			t.Fatalf("%s: states %+v", name, states)
		}
	}
}

func TestSingleMaterial_PlaceholderFiltered(t *testing.T) {
	rec := record(t, map[string]any{"Material": schemtest.StateTag(PlaceholderBlock, nil)})
	states, err := Default().Extract(CreateCopycat, rec)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(states) != 0 {
		t.Fatalf("expected no materials, got %v", names(states))
	}
}

func TestSingleMaterial_NoMaterialKey(t *testing.T) {
	states, err := Default().Extract(CopycatsCopycat, record(t, map[string]any{"id": "copycats:copycat"}))
	if err != nil || len(states) != 0 {
		t.Fatalf("states=%v err=%v", states, err)
	}
}

func TestMultistate(t *testing.T) {
	rec := record(t, map[string]any{
		"material_data": map[string]any{
			"bottom": map[string]any{"material": schemtest.StateTag("minecraft:andesite", nil)},
			"top":    map[string]any{"material": schemtest.StateTag(PlaceholderBlock, nil)},
			"west":   map[string]any{"material": schemtest.StateTag("minecraft:glass", nil)},
		},
	})
	states, err := Default().Extract(MultistateCopycat, rec)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	got := names(states)
	if len(got) != 2 || got[0] != "minecraft:andesite" || got[1] != "minecraft:glass" {
		t.Fatalf("materials: %v", got)
	}
}

func TestMultistate_BadPart(t *testing.T) {
	rec := record(t, map[string]any{"material_data": map[string]any{"a": map[string]any{}}})
	_, err := Default().Extract(MultistateCopycat, rec)
	if schemerr.Code(err) != schemerr.CodeSchema {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestFramedCamos(t *testing.T) {
	rec := record(t, map[string]any{
		"id":         "framedblocks:framed_tile",
		"camo":       map[string]any{"state": schemtest.StateTag("minecraft:stone", nil)},
		"camo_two":   map[string]any{"state": schemtest.StateTag(PlaceholderBlock, nil)},
		"camo_empty": map[string]any{"fluid": "none"},
		"other":      map[string]any{"state": schemtest.StateTag("minecraft:dirt", nil)},
	})
	states, err := Default().Extract(FramedTile, rec)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	got := names(states)
	// No placeholder filter for framed blocks.
	if len(got) != 2 || got[0] != "minecraft:stone" || got[1] != PlaceholderBlock {
		t.Fatalf("materials: %v", got)
	}
}

func TestExtract_Unregistered(t *testing.T) {
	states, err := Default().Extract("minecraft:chest", record(t, map[string]any{"Material": schemtest.StateTag("minecraft:stone", nil)}))
	if err != nil || states != nil {
		t.Fatalf("states=%v err=%v", states, err)
	}
	if _, ok := Default().Lookup("minecraft:chest"); ok {
		t.Fatalf("unexpected registration")
	}
}

func TestNewMapper_CopiesRegistrations(t *testing.T) {
	reg := map[string]Extractor{"a:b": singleMaterial}
	m := NewMapper(reg)
	reg["c:d"] = singleMaterial
	if _, ok := m.Lookup("c:d"); ok {
		t.Fatalf("mapper shares the caller's map")
	}
}

func TestHasPrefix(t *testing.T) {
	for id, want := range map[string]bool{
		"copycats:copycat_slab":    true,
		"framedblocks:framed_tile": true,
		"create:copycat":           true,
		"create:copycat_step":      true,
		"create:andesite_casing":   false,
		"minecraft:chest":          false,
	} {
		if got := HasPrefix(id, DefaultNamespacePrefixes); got != want {
			t.Fatalf("HasPrefix(%s) = %v", id, got)
		}
	}
}
