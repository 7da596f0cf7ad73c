package tally

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"

	"shipscore.ai/internal/vschem/decode"
	"shipscore.ai/internal/vschem/materials"
	"shipscore.ai/internal/vschem/model"
	"shipscore.ai/internal/vschem/schemerr"
	"shipscore.ai/internal/vschem/schemtest"
	"shipscore.ai/internal/vschem/tree"
)

func schematic(t *testing.T, doc *schemtest.Doc) *model.Schematic {
	t.Helper()
	v, err := tree.FromAny(doc.Map())
	if err != nil {
		t.Fatalf("FromAny: %v", err)
	}
	root, err := tree.AsCompound(v)
	if err != nil {
		t.Fatalf("AsCompound: %v", err)
	}
	s, err := decode.Schematic(root)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return s
}

func visit(t *testing.T, doc *schemtest.Doc) *Result {
	t.Helper()
	v := &Visitor{Mapper: materials.Default()}
	r, err := v.Visit(schematic(t, doc))
	if err != nil {
		t.Fatalf("Visit: %v", err)
	}
	return r
}

func snapshot(c *Counts) map[string]Entry {
	out := map[string]Entry{}
	for _, name := range c.Names() {
		e, _ := c.Get(name)
		out[name] = e
	}
	return out
}

func copycatRecord(id, material string) map[string]any {
	return map[string]any{"id": id, "Material": schemtest.StateTag(material, nil)}
}

func TestVisit_Empty(t *testing.T) {
	r := visit(t, schemtest.NewDoc())
	if r.GridCount != 0 || r.EntityCount != 0 || r.Counts.Len() != 0 || r.Counts.Total() != 0 {
		t.Fatalf("result: %+v", r)
	}
}

func TestVisit_FlatBlock(t *testing.T) {
	doc := schemtest.NewDoc()
	stone := doc.State("minecraft:stone", nil)
	doc.Block("ship", 0, 0, 0, stone, model.NoExtraData)

	r := visit(t, doc)
	want := map[string]Entry{"minecraft:stone": {Flat: 1}}
	if diff := cmp.Diff(want, snapshot(r.Counts)); diff != "" {
		t.Fatalf("counts (-want +got):\n%s", diff)
	}
	if r.GridCount != 1 || r.Counts.Total() != 1 {
		t.Fatalf("grids=%d total=%d", r.GridCount, r.Counts.Total())
	}
}

func TestVisit_CopycatBecomesNested(t *testing.T) {
	doc := schemtest.NewDoc()
	cc := doc.State("create:copycat", nil)
	edi := doc.Extra(copycatRecord("create:copycat", "minecraft:oak_planks"))
	doc.Block("ship", 0, 0, 0, cc, edi)

	r := visit(t, doc)
	want := map[string]Entry{"create:copycat": {Nested: map[string]uint64{"minecraft:oak_planks": 1}}}
	if diff := cmp.Diff(want, snapshot(r.Counts)); diff != "" {
		t.Fatalf("counts (-want +got):\n%s", diff)
	}
	if got := r.Counts.Total(); got != 1 {
		t.Fatalf("total: got %d want 1", got)
	}
}

func TestVisit_NamespaceGate(t *testing.T) {
	doc := schemtest.NewDoc()
	cc := doc.State("create:copycat", nil)
	// Registered palette name, but the record id is outside the gated namespaces.
	edi := doc.Extra(copycatRecord("create:andesite_casing", "minecraft:oak_planks"))
	doc.Block("ship", 0, 0, 0, cc, edi)
	noID := doc.Extra(map[string]any{"Material": schemtest.StateTag("minecraft:glass", nil)})
	doc.Block("ship", 1, 0, 0, cc, noID)

	r := visit(t, doc)
	want := map[string]Entry{"create:copycat": {Flat: 2}}
	if diff := cmp.Diff(want, snapshot(r.Counts)); diff != "" {
		t.Fatalf("counts (-want +got):\n%s", diff)
	}
}

func TestVisit_MapperKeyedByPaletteName(t *testing.T) {
	doc := schemtest.NewDoc()
	// The record id passes the gate, but the palette name has no extractor.
	slab := doc.State("copycats:copycat_slab", nil)
	edi := doc.Extra(copycatRecord("copycats:copycat", "minecraft:oak_planks"))
	doc.Block("ship", 0, 0, 0, slab, edi)

	r := visit(t, doc)
	want := map[string]Entry{"copycats:copycat_slab": {Flat: 1}}
	if diff := cmp.Diff(want, snapshot(r.Counts)); diff != "" {
		t.Fatalf("counts (-want +got):\n%s", diff)
	}
}

// Regression for the flat/nested interaction: plain increments after the
// entry turns nested are dropped, and the flat count seen before is replaced.
func TestVisit_FlatNestedInteraction(t *testing.T) {
	doc := schemtest.NewDoc()
	cc := doc.State("create:copycat", nil)
	edi := doc.Extra(copycatRecord("create:copycat", "minecraft:oak_planks"))
	doc.Block("ship", 0, 0, 0, cc, model.NoExtraData)
	doc.Block("ship", 1, 0, 0, cc, model.NoExtraData)
	doc.Block("ship", 2, 0, 0, cc, edi)
	doc.Block("ship", 3, 0, 0, cc, model.NoExtraData)

	r := visit(t, doc)
	want := map[string]Entry{"create:copycat": {Nested: map[string]uint64{"minecraft:oak_planks": 1}}}
	if diff := cmp.Diff(want, snapshot(r.Counts)); diff != "" {
		t.Fatalf("counts (-want +got):\n%s", diff)
	}
	if got := r.Counts.Total(); got != 1 {
		t.Fatalf("total: got %d want 1", got)
	}
	wantLoss := map[string]Loss{"create:copycat": {IgnoredIncrements: 2, OverwrittenFlat: 2}}
	if diff := cmp.Diff(wantLoss, r.Counts.Losses()); diff != "" {
		t.Fatalf("losses (-want +got):\n%s", diff)
	}
}

func TestVisit_PlaceholderLeavesEmptyNested(t *testing.T) {
	doc := schemtest.NewDoc()
	cc := doc.State("create:copycat", nil)
	edi := doc.Extra(copycatRecord("create:copycat", materials.PlaceholderBlock))
	doc.Block("ship", 0, 0, 0, cc, edi)

	r := visit(t, doc)
	e, ok := r.Counts.Get("create:copycat")
	if !ok || !e.IsNested() || len(e.Nested) != 0 {
		t.Fatalf("entry: %+v ok=%v", e, ok)
	}
	if r.Counts.Total() != 0 {
		t.Fatalf("total: %d", r.Counts.Total())
	}
}

func TestVisit_ContraptionNoGate(t *testing.T) {
	doc := schemtest.NewDoc()
	doc.Entity("contraptions", [3]float64{0, 0, 0}, schemtest.ContraptionTag(
		[]map[string]any{
			schemtest.StateTag("minecraft:stone", nil),
			schemtest.StateTag("create:copycat", nil),
		},
		[]map[string]any{
			{"State": int32(0)},
			{"State": int32(0), "Data": map[string]any{"Items": []any{}}},
			// No id in Data: extraction still runs for contraption blocks.
			{"State": int32(1), "Data": map[string]any{"Material": schemtest.StateTag("minecraft:glass", nil)}},
		},
	))
	doc.Entity("contraptions", [3]float64{1, 1, 1}, map[string]any{"id": "minecraft:item_frame"})

	r := visit(t, doc)
	want := map[string]Entry{
		"minecraft:stone": {Flat: 2},
		"create:copycat":  {Nested: map[string]uint64{"minecraft:glass": 1}},
	}
	if diff := cmp.Diff(want, snapshot(r.Counts)); diff != "" {
		t.Fatalf("counts (-want +got):\n%s", diff)
	}
	if r.EntityCount != 2 || r.Contraptions != 1 {
		t.Fatalf("entities=%d contraptions=%d", r.EntityCount, r.Contraptions)
	}
}

func TestVisit_GridAndContraptionShareNames(t *testing.T) {
	doc := schemtest.NewDoc()
	stone := doc.State("minecraft:stone", nil)
	doc.Block("ship", 0, 0, 0, stone, model.NoExtraData)
	doc.Entity("e", [3]float64{}, schemtest.ContraptionTag(
		[]map[string]any{schemtest.StateTag("minecraft:stone", nil)},
		[]map[string]any{{"State": int32(0)}},
	))

	r := visit(t, doc)
	if diff := cmp.Diff(map[string]Entry{"minecraft:stone": {Flat: 2}}, snapshot(r.Counts)); diff != "" {
		t.Fatalf("counts (-want +got):\n%s", diff)
	}
}

func TestVisit_OnGrid(t *testing.T) {
	doc := schemtest.NewDoc()
	doc.Grid("a")
	doc.Grid("b")
	var seen []string
	v := &Visitor{Mapper: materials.Default(), OnGrid: func(g *model.ShipGrid) { seen = append(seen, g.ID) }}
	if _, err := v.Visit(schematic(t, doc)); err != nil {
		t.Fatalf("Visit: %v", err)
	}
	if diff := cmp.Diff([]string{"a", "b"}, seen); diff != "" {
		t.Fatalf("grids (-want +got):\n%s", diff)
	}
}

func TestVisit_IndexErrorNotClamped(t *testing.T) {
	s := &model.Schematic{
		Palette: model.Palette{{Name: "minecraft:stone"}},
		Grids:   []model.ShipGrid{{ID: "g", Blocks: []model.BlockEntry{{PID: 0, EDI: 3}}}},
	}
	_, err := (&Visitor{Mapper: materials.Default()}).Visit(s)
	if schemerr.Code(err) != schemerr.CodeIndex {
		t.Fatalf("expected index error, got %v", err)
	}
}

func TestCounts_JSON(t *testing.T) {
	c := NewCounts()
	c.Increment("minecraft:stone")
	c.Increment("minecraft:stone")
	c.AddNested("create:copycat", []*model.BlockState{{Name: "minecraft:oak_planks"}})

	b, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	const want = `{"create:copycat":{"minecraft:oak_planks":1},"minecraft:stone":2}`
	if string(b) != want {
		t.Fatalf("json: got %s want %s", b, want)
	}

	back := NewCounts()
	if err := json.Unmarshal(b, back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(snapshot(c), snapshot(back)); diff != "" {
		t.Fatalf("decoded counts (-want +got):\n%s", diff)
	}
}

func TestCounts_Leaves(t *testing.T) {
	c := NewCounts()
	c.Increment("b:flat")
	c.AddNested("a:nested", []*model.BlockState{{Name: "x:two"}, {Name: "x:one"}, {Name: "x:two"}})

	type leaf struct {
		Key   string
		Count uint64
	}
	var got []leaf
	c.Leaves(func(k string, n uint64) { got = append(got, leaf{k, n}) })
	want := []leaf{{"x:one", 1}, {"x:two", 2}, {"b:flat", 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("leaves (-want +got):\n%s", diff)
	}
}
