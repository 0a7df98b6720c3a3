package service

import (
	"context"
	"slices"
)

// Verifier decides whether a submission may create a task. It returns the
// requester DID to record on the task ("" for anonymous callers).
type Verifier interface {
	Verify(ctx context.Context, auth map[string]any) (allowed bool, requesterDID string)
}

// AllowlistVerifier admits callers by DID.
//
// A submission without auth material is admitted anonymously. Otherwise
// the DID is read from "did" or "credential_did"; with a non-empty
// allowlist the DID must be on it. Credential signatures are not checked.
type AllowlistVerifier struct {
	allowed []string
}

// NewAllowlistVerifier returns a verifier for the given DIDs. An empty list
// admits any DID.
func NewAllowlistVerifier(dids []string) *AllowlistVerifier {
	return &AllowlistVerifier{allowed: slices.Clone(dids)}
}

// Verify implements Verifier.
func (v *AllowlistVerifier) Verify(_ context.Context, auth map[string]any) (bool, string) {
	if len(auth) == 0 {
		return true, ""
	}
	did := stringValue(auth, "did")
	if did == "" {
		did = stringValue(auth, "credential_did")
	}
	if len(v.allowed) == 0 {
		return true, did
	}
	return did != "" && slices.Contains(v.allowed, did), did
}

func stringValue(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
