package domain

import "encoding/json"

// Record is a single hit returned by the external search API. Source carries
// the projected fields verbatim; the fetcher forwards it without reshaping.
type Record struct {
	ID     string          `json:"id"`
	Source json.RawMessage `json:"source"`
}
