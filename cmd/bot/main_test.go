package main

import (
	"bytes"
	"encoding/json"
	"log"
	"testing"

	"shipscore.ai/internal/analysis"
	"shipscore.ai/internal/protocol"
)

func TestHandleReply(t *testing.T) {
	var logs bytes.Buffer
	logger := log.New(&logs, "[bot] ", 0)

	rating, _ := json.Marshal(protocol.RatingMsg{
		Type:      protocol.TypeRating,
		RequestID: "r1",
		Stats:     protocol.Stats{GridCount: 1, TotalBlockCount: 3, TotalPower: 9},
	})
	got, done, err := handleReply(logger, rating, "r1", "7")
	if err != nil || !done {
		t.Fatalf("rating: done=%v err=%v", done, err)
	}
	if want := analysis.Summary("7", protocol.Stats{GridCount: 1, TotalBlockCount: 3, TotalPower: 9}.Scoring()); got != want {
		t.Fatalf("got %q want %q", got, want)
	}

	if _, done, _ := handleReply(logger, rating, "other", "7"); done {
		t.Fatalf("reply for another request accepted")
	}

	errMsg, _ := json.Marshal(protocol.NewError("r1", protocol.ErrFormat, "truncated varint"))
	got, done, err = handleReply(logger, errMsg, "r1", "7")
	if err != nil || !done || got != "<@!7> Error\n" {
		t.Fatalf("error reply: %q done=%v err=%v", got, done, err)
	}
	if got := logs.String(); got != "[bot] E_FORMAT: truncated varint\n" {
		t.Fatalf("log: %q", got)
	}
}
