package service

import (
	"context"
	"testing"
)

func TestAllowlistVerifier(t *testing.T) {
	tests := []struct {
		name      string
		allowlist []string
		auth      map[string]any
		wantOK    bool
		wantDID   string
	}{
		{"no auth is anonymous", nil, nil, true, ""},
		{"no auth with allowlist", []string{"did:a"}, nil, true, ""},
		{"did without allowlist", nil, map[string]any{"did": "did:x"}, true, "did:x"},
		{"credential_did fallback", nil, map[string]any{"credential_did": "did:y"}, true, "did:y"},
		{"did preferred", nil, map[string]any{"did": "did:x", "credential_did": "did:y"}, true, "did:x"},
		{"allowlisted", []string{"did:a", "did:b"}, map[string]any{"did": "did:b"}, true, "did:b"},
		{"not allowlisted", []string{"did:a"}, map[string]any{"did": "did:z"}, false, "did:z"},
		{"auth without did", []string{"did:a"}, map[string]any{"token": "t"}, false, ""},
		{"non-string did", []string{"did:a"}, map[string]any{"did": 42}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, did := NewAllowlistVerifier(tt.allowlist).Verify(context.Background(), tt.auth)
			if ok != tt.wantOK || did != tt.wantDID {
				t.Errorf("Verify = %v, %q; want %v, %q", ok, did, tt.wantOK, tt.wantDID)
			}
		})
	}
}
