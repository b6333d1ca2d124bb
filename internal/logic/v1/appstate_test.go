package v1

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/group-admin-service/internal/core/domain"
)

func TestParseAppState(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantLen int
		wantErr bool
	}{
		{name: "array of strings", raw: `["cookie1","cookie2"]`, wantLen: 2},
		{name: "array of objects", raw: ` [{"key":"c_user","value":"1"}] `, wantLen: 1},
		{name: "stringified array", raw: `"[{\"key\":\"xs\",\"value\":\"2\"}]"`, wantLen: 1},
		{name: "empty array", raw: `[]`, wantErr: true},
		{name: "stringified empty array", raw: `"[]"`, wantErr: true},
		{name: "object", raw: `{"key":"c_user"}`, wantErr: true},
		{name: "not json", raw: `cookie1;cookie2`, wantErr: true},
		{name: "null", raw: `null`, wantErr: true},
		{name: "blank", raw: `   `, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := ParseAppState([]byte(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAppState)
				return
			}
			require.NoError(t, err)
			assert.Len(t, state, tt.wantLen)
		})
	}
}

func TestFingerprint(t *testing.T) {
	a := domain.AppState{json.RawMessage(`{"key": "c_user", "value": "1"}`)}
	b := domain.AppState{json.RawMessage(`{"key":"c_user","value":"1"}`)}
	c := domain.AppState{json.RawMessage(`{"key":"c_user","value":"2"}`)}

	assert.Len(t, Fingerprint(a), 16)
	assert.Equal(t, Fingerprint(a), Fingerprint(b), "whitespace does not matter")
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
}
