package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
)

// Outbound frame types.
const (
	FrameWelcome      = "welcome"
	FrameSubscribed   = "subscribed"
	FrameError        = "error"
	FrameMatchCreated = "match_created"
	FrameCommentary   = "commentary"
)

// Inbound command types.
const (
	CommandSubscribe   = "subscribe"
	CommandUnsubscribe = "unsubscribe"
)

// largest integer a JSON number carries exactly in every client
const maxSafeInteger = 1<<53 - 1

var errInvalidPayload = errors.New("event payload is not valid JSON")

// Event is a broadcastable frame: a type tag plus a JSON payload that is
// forwarded exactly as given.
type Event struct {
	Type string
	Data json.RawMessage
}

// encode writes {"type":...,"data":...} by hand so Data reaches clients
// byte for byte. An empty Data omits the field.
func (e Event) encode() ([]byte, error) {
	typ, err := json.Marshal(e.Type)
	if err != nil {
		return nil, err
	}
	if len(e.Data) == 0 {
		return slices.Concat([]byte(`{"type":`), typ, []byte(`}`)), nil
	}
	if !json.Valid(e.Data) {
		return nil, errInvalidPayload
	}
	return slices.Concat([]byte(`{"type":`), typ, []byte(`,"data":`), e.Data, []byte(`}`)), nil
}

type subscribedFrame struct {
	Type    string `json:"type"`
	MatchID int64  `json:"matchId"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type inboundFrame struct {
	Type    string          `json:"type"`
	MatchID json.RawMessage `json:"matchId"`
}

var (
	welcomeFrame     = mustEncodeEvent(Event{Type: FrameWelcome})
	invalidJSONFrame = mustEncode(errorFrame{Type: FrameError, Message: "Invalid JSON"})
)

func encodeSubscribed(matchID int64) []byte {
	return mustEncode(subscribedFrame{Type: FrameSubscribed, MatchID: matchID})
}

func mustEncode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("realtime: encode %T: %v", v, err))
	}
	return data
}

func mustEncodeEvent(e Event) []byte {
	data, err := e.encode()
	if err != nil {
		panic(fmt.Sprintf("realtime: encode %s event: %v", e.Type, err))
	}
	return data
}

// parseMatchID accepts a JSON number holding a positive integer. Strings,
// fractions, booleans and null are rejected.
func parseMatchID(raw json.RawMessage) (int64, bool) {
	s := string(bytes.TrimSpace(raw))
	if s == "" || s[0] == '"' {
		return 0, false
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, n > 0
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || f <= 0 || f > maxSafeInteger {
		return 0, false
	}
	return int64(f), true
}
