package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"shipscore.ai/internal/analysis"
	"shipscore.ai/internal/protocol"
)

func main() {
	var (
		url  = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		user = flag.String("user", "", "user id to mention in the reply")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	if flag.NArg() != 1 {
		logger.Fatalf("usage: bot [-url ws://...] [-user id] <file.vschem>")
	}
	path := flag.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Fatalf("read %s: %v", path, err)
	}

	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	req := protocol.RateMsg{
		Type:            protocol.TypeRate,
		ProtocolVersion: protocol.Version,
		RequestID:       uuid.NewString(),
		FileName:        filepath.Base(path),
		Data:            data,
		Mention:         *user,
	}
	if err := conn.WriteJSON(req); err != nil {
		logger.Fatalf("send RATE: %v", err)
	}

	for {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Fatalf("read: %v", err)
		}
		reply, done, err := handleReply(logger, msg, req.RequestID, *user)
		if err != nil {
			logger.Printf("skip message: %v", err)
			continue
		}
		if !done {
			continue
		}
		fmt.Print(reply)
		return
	}
}

// handleReply renders the chat text for the reply to requestID. Replies to
// other requests are skipped; error details go to logger.
func handleReply(logger *log.Logger, msg []byte, requestID, user string) (string, bool, error) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return "", false, err
	}
	if base.RequestID != requestID {
		return "", false, nil
	}
	switch base.Type {
	case protocol.TypeRating:
		var r protocol.RatingMsg
		if err := json.Unmarshal(msg, &r); err != nil {
			return "", false, err
		}
		if r.Summary != "" {
			return r.Summary, true, nil
		}
		return analysis.Summary(user, r.Stats.Scoring()), true, nil
	case protocol.TypeError:
		var e protocol.ErrorMsg
		if err := json.Unmarshal(msg, &e); err != nil {
			return "", false, err
		}
		logger.Printf("%s: %s", e.Code, e.Message)
		return analysis.Failure(user) + "\n", true, nil
	default:
		return "", false, fmt.Errorf("unexpected %s", base.Type)
	}
}
