package domain

import (
	"encoding/json"
	"fmt"
)

// Match is a match record as the CRUD layer emits it. Only the id is
// interpreted; Raw is the record itself and is forwarded untouched.
type Match struct {
	ID  int64
	Raw json.RawMessage
}

// ParseMatch reads the id out of a match record and keeps the record as is.
func ParseMatch(data []byte) (Match, error) {
	var head struct {
		ID int64 `json:"id"`
	}
	raw, err := decodeRecord(data, &head)
	if err != nil {
		return Match{}, fmt.Errorf("failed to decode match: %w", err)
	}

	m := Match{ID: head.ID, Raw: raw}
	if err := m.Validate(); err != nil {
		return Match{}, err
	}
	return m, nil
}

func (m Match) Validate() error {
	if m.ID <= 0 {
		return ErrInvalidMatchID
	}
	return nil
}
