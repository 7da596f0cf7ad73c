package protocol

import (
	"encoding/json"

	"shipscore.ai/internal/vschem/scoring"
)

// RATE (client -> server)
type RateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id"`
	FileName        string `json:"file_name"`
	// Data is the raw container; encoding/json carries it as base64.
	Data []byte `json:"data"`
	// Mention is echoed into the rendered summary.
	Mention string `json:"mention,omitempty"`
}

// RATING (server -> client)
type RatingMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	RequestID       string          `json:"request_id,omitempty"`
	AnalysisID      string          `json:"analysis_id"`
	FileName        string          `json:"file_name,omitempty"`
	Digest          string          `json:"digest"`
	Stats           Stats           `json:"stats"`
	Contraptions    int             `json:"contraptions"`
	Counts          json.RawMessage `json:"counts,omitempty"`
	Summary         string          `json:"summary"`
}

type Stats struct {
	GridCount       int    `json:"grid_count"`
	EntityCount     int    `json:"entity_count"`
	TotalBlockCount uint64 `json:"total_block_count"`
	TotalPower      int64  `json:"total_power"`
}

func StatsOf(s scoring.Stats) Stats {
	return Stats{
		GridCount:       s.GridCount,
		EntityCount:     s.EntityCount,
		TotalBlockCount: s.TotalBlockCount,
		TotalPower:      s.TotalPower,
	}
}

func (s Stats) Scoring() scoring.Stats {
	return scoring.Stats{
		GridCount:       s.GridCount,
		EntityCount:     s.EntityCount,
		TotalBlockCount: s.TotalBlockCount,
		TotalPower:      s.TotalPower,
	}
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RequestID       string `json:"request_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(requestID, code, message string) ErrorMsg {
	return ErrorMsg{
		Type:            TypeError,
		ProtocolVersion: Version,
		RequestID:       requestID,
		Code:            code,
		Message:         message,
	}
}
