package domain

import (
	"encoding/json"
	"fmt"
)

// Commentary is one entry posted against a match. MatchID routes it to the
// match's subscribers; Raw is the entry as the CRUD layer sent it.
type Commentary struct {
	ID      int64
	MatchID int64
	Raw     json.RawMessage
}

// ParseCommentary reads the routing fields out of a commentary record and
// keeps the record as is.
func ParseCommentary(data []byte) (Commentary, error) {
	var head struct {
		ID      int64 `json:"id"`
		MatchID int64 `json:"matchId"`
	}
	raw, err := decodeRecord(data, &head)
	if err != nil {
		return Commentary{}, fmt.Errorf("failed to decode commentary: %w", err)
	}

	c := Commentary{ID: head.ID, MatchID: head.MatchID, Raw: raw}
	if err := c.Validate(); err != nil {
		return Commentary{}, err
	}
	return c, nil
}

func (c Commentary) Validate() error {
	if c.MatchID <= 0 {
		return ErrInvalidMatchID
	}
	return nil
}
