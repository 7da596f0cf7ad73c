package tally

import (
	"encoding/json"
	"sort"

	"shipscore.ai/internal/vschem/model"
)

// Entry is either a flat occurrence count or, once a material extraction has
// fired for the block, a per-material count map.
type Entry struct {
	Flat   uint64
	Nested map[string]uint64
}

func (e *Entry) IsNested() bool { return e.Nested != nil }

// Sum is the entry's contribution to the total block count. A nested entry
// contributes only its materials.
func (e *Entry) Sum() uint64 {
	if !e.IsNested() {
		return e.Flat
	}
	var n uint64
	for _, c := range e.Nested {
		n += c
	}
	return n
}

func (e *Entry) MarshalJSON() ([]byte, error) {
	if e.IsNested() {
		return json.Marshal(e.Nested)
	}
	return json.Marshal(e.Flat)
}

func (e *Entry) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '{' {
		e.Flat = 0
		e.Nested = map[string]uint64{}
		return json.Unmarshal(b, &e.Nested)
	}
	e.Nested = nil
	return json.Unmarshal(b, &e.Flat)
}

// Loss records counts that the flat/nested interaction discards.
type Loss struct {
	// IgnoredIncrements counts plain occurrences seen after the entry had
	// become nested.
	IgnoredIncrements uint64 `json:"ignored_increments,omitempty"`
	// OverwrittenFlat is the flat count replaced when the entry became nested.
	OverwrittenFlat uint64 `json:"overwritten_flat,omitempty"`
}

// Counts maps block names to entries. The zero value is not usable; call
// NewCounts.
type Counts struct {
	entries map[string]*Entry
	losses  map[string]*Loss
}

func NewCounts() *Counts {
	return &Counts{entries: map[string]*Entry{}, losses: map[string]*Loss{}}
}

// Increment records one plain occurrence. Once name is nested the increment
// is dropped (and noted in Losses); totals treat the outer name as absent.
func (c *Counts) Increment(name string) {
	e, ok := c.entries[name]
	if !ok {
		c.entries[name] = &Entry{Flat: 1}
		return
	}
	if e.IsNested() {
		c.loss(name).IgnoredIncrements++
		return
	}
	e.Flat++
}

// AddNested folds extracted materials into name's nested map, converting a
// flat entry (and discarding its count) if needed. An empty states slice
// still converts the entry.
func (c *Counts) AddNested(name string, states []*model.BlockState) {
	e, ok := c.entries[name]
	if !ok || !e.IsNested() {
		if ok && e.Flat > 0 {
			c.loss(name).OverwrittenFlat += e.Flat
		}
		e = &Entry{Nested: map[string]uint64{}}
		c.entries[name] = e
	}
	for _, s := range states {
		e.Nested[s.Name]++
	}
}

func (c *Counts) loss(name string) *Loss {
	l, ok := c.losses[name]
	if !ok {
		l = &Loss{}
		c.losses[name] = l
	}
	return l
}

func (c *Counts) Len() int { return len(c.entries) }

func (c *Counts) Get(name string) (Entry, bool) {
	e, ok := c.entries[name]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Names returns block names in sorted order.
func (c *Counts) Names() []string {
	out := make([]string, 0, len(c.entries))
	for k := range c.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Leaves calls fn for every scalar count: (block, count) for flat entries and
// (material, count) for each material of a nested entry. Order is sorted.
func (c *Counts) Leaves(fn func(key string, count uint64)) {
	for _, name := range c.Names() {
		e := c.entries[name]
		if !e.IsNested() {
			fn(name, e.Flat)
			continue
		}
		mats := make([]string, 0, len(e.Nested))
		for m := range e.Nested {
			mats = append(mats, m)
		}
		sort.Strings(mats)
		for _, m := range mats {
			fn(m, e.Nested[m])
		}
	}
}

// Total is the sum of all leaf counts.
func (c *Counts) Total() uint64 {
	var n uint64
	for _, e := range c.entries {
		n += e.Sum()
	}
	return n
}

// Losses returns the discarded counts keyed by block name.
func (c *Counts) Losses() map[string]Loss {
	out := make(map[string]Loss, len(c.losses))
	for k, v := range c.losses {
		out[k] = *v
	}
	return out
}

func (c *Counts) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.entries)
}

func (c *Counts) UnmarshalJSON(b []byte) error {
	entries := map[string]*Entry{}
	if err := json.Unmarshal(b, &entries); err != nil {
		return err
	}
	c.entries = entries
	c.losses = map[string]*Loss{}
	return nil
}
