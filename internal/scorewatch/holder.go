// Package scorewatch keeps the active score table and reloads it when the
// file on disk changes.
package scorewatch

import (
	"sync/atomic"

	"shipscore.ai/internal/vschem/scoring"
)

// Holder publishes the current table to concurrent analyses.
type Holder struct {
	p atomic.Pointer[scoring.Table]
}

func NewHolder(t *scoring.Table) *Holder {
	h := &Holder{}
	h.p.Store(t)
	return h
}

func (h *Holder) Table() *scoring.Table { return h.p.Load() }

func (h *Holder) Store(t *scoring.Table) {
	if t != nil {
		h.p.Store(t)
	}
}
