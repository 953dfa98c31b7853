package anticheat

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"peerprep/interview/internal/models"
)

// canonicalFields mirrors the wire shape hashed by the engine: stable field
// ordering over {sessionId, seq, type, details, ts, prevHash}, exactly as
// spec.md §4.4 states. encoding/json sorts map keys alphabetically when
// marshaling a map, which is what makes Details deterministic here.
type canonicalFields struct {
	SessionID string         `json:"sessionId"`
	Seq       int64          `json:"seq"`
	Type      string         `json:"type"`
	Details   map[string]any `json:"details"`
	Ts        string         `json:"ts"`
	PrevHash  string         `json:"prevHash"`
}

// HashCanonical computes the lowercase-hex SHA-256 digest of an event's
// canonical encoding.
func HashCanonical(e models.AntiCheatEvent) (string, error) {
	fields := canonicalFields{
		SessionID: e.SessionID,
		Seq:       e.Seq,
		Type:      e.Type,
		Details:   e.Details,
		Ts:        e.Ts.UTC().Format(time.RFC3339Nano),
		PrevHash:  e.PrevHash,
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
