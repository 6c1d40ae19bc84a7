package store

import (
	"encoding/base64"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Cursor pins a pagination position to the (order value, document id) of the
// last item of the previous page, so the window stays stable while new
// documents keep arriving at the head.
type Cursor struct {
	At time.Time `json:"at"`
	ID string    `json:"id"`
}

func (c Cursor) Encode() string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

func DecodeCursor(s string) (Cursor, error) {
	var c Cursor
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return c, fmt.Errorf("store: malformed cursor: %w", err)
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("store: malformed cursor: %w", err)
	}
	return c, nil
}
