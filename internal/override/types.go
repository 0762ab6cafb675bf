// Package override loads and polls a JSON emergency-override file,
// normalizing it into a flag-name -> string-value map that bypasses the
// rule interpreter entirely.
package override

import (
	"encoding/json"
	"strings"
	"time"
)

// wireFile mirrors the override file shape: each entry is either a bare
// string or an object carrying the value plus optional provenance metadata
// the resolver does not need but must tolerate.
type wireFile struct {
	Version   string                     `json:"version"`
	Overrides map[string]json.RawMessage `json:"overrides"`
}

type wireEntry struct {
	Value     string `json:"value"`
	Timestamp string `json:"timestamp,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Operator  string `json:"operator,omitempty"`
}

// MaxFileBytes bounds an override file/response body.
const MaxFileBytes = 1 * 1024 * 1024

// State is the normalized snapshot of an override file: a plain
// flagName -> value map plus the provenance the poller needs for
// conditional GETs. Overrides and ETag are not modified after load; the
// poller refreshes LoadedAt in place on a not-modified response.
type State struct {
	Overrides map[string]string
	ETag      string
	LoadedAt  time.Time
}

// Lookup returns the override value for name, if any.
func (s *State) Lookup(name string) (string, bool) {
	if s == nil || s.Overrides == nil {
		return "", false
	}
	v, ok := s.Overrides[name]
	return v, ok
}

// Parse validates and normalizes raw override-file bytes into a State,
// rejecting any shape that isn't the documented version+overrides object.
func Parse(raw []byte) (*State, error) {
	if len(raw) > MaxFileBytes {
		return nil, newErr(CodeInvalidOverride, "override payload %d bytes exceeds %d", len(raw), MaxFileBytes)
	}

	var wire wireFile
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, wrapErr(CodeInvalidOverride, err, "decode override file")
	}
	if strings.TrimSpace(wire.Version) == "" {
		return nil, newErr(CodeInvalidOverride, "missing required field \"version\"")
	}

	normalized := make(map[string]string, len(wire.Overrides))
	for flagName, raw := range wire.Overrides {
		var asString string
		if err := json.Unmarshal(raw, &asString); err == nil {
			normalized[flagName] = asString
			continue
		}
		var entry wireEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, wrapErr(CodeInvalidOverride, err, "overrides[%q]: neither a string nor an object", flagName)
		}
		if entry.Value == "" {
			return nil, newErr(CodeInvalidOverride, "overrides[%q]: object form requires a non-empty \"value\"", flagName)
		}
		normalized[flagName] = entry.Value
	}

	return &State{Overrides: normalized}, nil
}
