package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"bridge/types"
)

var (
	ErrEmptyLine        = errors.New("empty line")
	ErrMissingTimestamp = errors.New("sample has no timestamp")
)

// Parse decodes one JSON encoded sample as produced by the watch.
// Only the timestamp is required, unknown fields are ignored.
func Parse(line []byte) (types.Sample, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return types.Sample{}, ErrEmptyLine
	}

	var s types.Sample
	if err := json.Unmarshal(line, &s); err != nil {
		return types.Sample{}, fmt.Errorf("invalid sample: %w", err)
	}
	if s.Timestamp <= 0 {
		return types.Sample{}, ErrMissingTimestamp
	}

	return s, nil
}
