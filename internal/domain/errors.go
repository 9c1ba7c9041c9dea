package domain

import (
	"bytes"
	"encoding/json"
	"errors"
)

var (
	ErrInvalidMatchID = errors.New("match id must be a positive integer")
	ErrNotAnObject    = errors.New("record must be a JSON object")
)

// decodeRecord unmarshals the fields head declares and returns a private
// copy of the record with surrounding whitespace trimmed.
func decodeRecord(data []byte, head any) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotAnObject
	}
	if err := json.Unmarshal(trimmed, head); err != nil {
		return nil, err
	}
	return json.RawMessage(bytes.Clone(trimmed)), nil
}
