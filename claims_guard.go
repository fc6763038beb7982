package auth

import (
	"fmt"

	"github.com/goliatone/go-errors"
)

const textCodeSubjectChanged = "CREDENTIAL_SUBJECT_CHANGED"

// ErrSubjectChanged is returned when a refreshed credential belongs to a
// different subject than the one it replaces.
var ErrSubjectChanged = errors.New("credential subject changed on refresh", errors.CategoryAuth).
	WithTextCode(textCodeSubjectChanged).
	WithCode(errors.CodeUnauthorized)

// checkSubjectContinuity rejects a refresh that swaps identities. Opaque
// tokens that do not decode are not compared.
func checkSubjectContinuity(prev, next *Credential) error {
	if prev == nil || next == nil {
		return nil
	}

	before, err := Decode(prev.AccessToken())
	if err != nil || before.Subject == "" {
		return nil
	}

	after, err := Decode(next.AccessToken())
	if err != nil {
		return err
	}

	if after.Subject != before.Subject {
		return withDetails(ErrSubjectChanged, fmt.Sprintf("credential subject changed from %q to %q", before.Subject, after.Subject), map[string]any{
			"claim": "sub",
		})
	}
	return nil
}
