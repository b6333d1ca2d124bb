package v1

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/duynhne/group-admin-service/internal/core/domain"
)

// ParseAppState decodes an uploaded appState. raw may be the JSON array
// itself or a JSON string whose content is that array. The result is
// never empty.
func ParseAppState(raw []byte) (domain.AppState, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("appState is empty: %w", ErrInvalidAppState)
	}

	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("decode appState string: %w", ErrInvalidAppState)
		}
		raw = bytes.TrimSpace([]byte(inner))
	}

	if len(raw) == 0 || raw[0] != '[' {
		return nil, fmt.Errorf("appState must be an array: %w", ErrInvalidAppState)
	}

	var state domain.AppState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode appState array: %w", ErrInvalidAppState)
	}
	if len(state) == 0 {
		return nil, fmt.Errorf("appState array is empty: %w", ErrInvalidAppState)
	}
	return state, nil
}

// Fingerprint returns a short stable identifier for an appState, safe to log.
func Fingerprint(state domain.AppState) string {
	h, _ := blake2b.New256(nil)
	for _, item := range state {
		var compact bytes.Buffer
		if json.Compact(&compact, item) != nil {
			compact.Reset()
			compact.Write(item)
		}
		h.Write(compact.Bytes())
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
