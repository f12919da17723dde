package wire

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainCommand separates command identities from any other hash.
const DomainCommand = "prevail/command/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// CommandID computes the content address of a journaled command. It covers
// everything replay depends on, so a tampered row no longer matches its id.
func CommandID(seq int64, kind, entityType string, executedAt int64, payload []byte) (string, error) {
	canonical, err := MarshalCanonical(map[string]any{
		"seq":         seq,
		"kind":        kind,
		"type":        entityType,
		"executed_at": executedAt,
		"payload":     payload,
	})
	if err != nil {
		return "", fmt.Errorf("CommandID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainCommand, canonical), nil
}
