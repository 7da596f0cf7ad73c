package analysis

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"shipscore.ai/internal/vschem/decode"
	"shipscore.ai/internal/vschem/framing"
	"shipscore.ai/internal/vschem/materials"
	"shipscore.ai/internal/vschem/model"
	"shipscore.ai/internal/vschem/scoring"
	"shipscore.ai/internal/vschem/tally"
)

// TableSource supplies the score table in effect for the next analysis.
type TableSource interface {
	Table() *scoring.Table
}

// Static is a TableSource that never changes.
type Static struct{ T *scoring.Table }

func (s Static) Table() *scoring.Table { return s.T }

type Analyzer struct {
	Mapper          *materials.Mapper
	Scores          TableSource
	Prefixes        []string
	HeaderMaxLength int

	// OnGrid is forwarded to the tally visitor.
	OnGrid func(g *model.ShipGrid)

	now func() time.Time
}

// Report is the full outcome of one analysis.
type Report struct {
	ID           string                `json:"id"`
	Source       string                `json:"source"`
	Digest       string                `json:"digest"`
	Size         int                   `json:"size"`
	Header       framing.Header        `json:"header"`
	Stats        scoring.Stats         `json:"stats"`
	Contraptions int                   `json:"contraptions"`
	Counts       *tally.Counts         `json:"counts"`
	Losses       map[string]tally.Loss `json:"losses,omitempty"`
	ScoreDigest  string                `json:"score_digest,omitempty"`
	AnalyzedAt   time.Time             `json:"analyzed_at"`
}

// Analyze runs the whole pipeline over one fully buffered container.
func (a *Analyzer) Analyze(ctx context.Context, source string, data []byte) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h, s, err := decode.Read(bytes.NewReader(data), a.HeaderMaxLength)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", source, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mapper := a.Mapper
	if mapper == nil {
		mapper = materials.Default()
	}
	v := &tally.Visitor{Mapper: mapper, Prefixes: a.Prefixes, OnGrid: a.OnGrid}
	res, err := v.Visit(s)
	if err != nil {
		return nil, fmt.Errorf("tally %s: %w", source, err)
	}

	var table *scoring.Table
	if a.Scores != nil {
		table = a.Scores.Table()
	}
	sum := sha256.Sum256(data)
	r := &Report{
		ID:           uuid.NewString(),
		Source:       source,
		Digest:       hex.EncodeToString(sum[:]),
		Size:         len(data),
		Header:       h,
		Stats:        scoring.Compute(res, table),
		Contraptions: res.Contraptions,
		Counts:       res.Counts,
		Losses:       res.Counts.Losses(),
		AnalyzedAt:   a.clock().UTC(),
	}
	if table != nil {
		r.ScoreDigest = table.Digest
	}
	return r, nil
}

func (a *Analyzer) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}

// Summary renders the chat reply for a rating. mention may be empty.
func Summary(mention string, st scoring.Stats) string {
	var b strings.Builder
	if mention != "" {
		fmt.Fprintf(&b, "<@!%s> ", mention)
	}
	b.WriteString("SCHEMATIC INFO:\n")
	fmt.Fprintf(&b, "Total block count: %d\n", st.TotalBlockCount)
	fmt.Fprintf(&b, "Total ship count: %d\n", st.GridCount)
	fmt.Fprintf(&b, "Total entity count: %d\n\n", st.EntityCount)
	fmt.Fprintf(&b, "Total ships power: %d\n", st.TotalPower)
	return b.String()
}

// Failure is the generic reply shown to users when a file cannot be rated.
func Failure(mention string) string {
	if mention == "" {
		return "Error"
	}
	return fmt.Sprintf("<@!%s> Error", mention)
}
