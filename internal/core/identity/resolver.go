// Package identity maps raw card credentials to employees.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"punchclock.service/internal/core/model"
)

// CredentialStore looks up a credential binding and the bound employee.
// It returns model.ErrUnknownCredential when no binding exists.
type CredentialStore interface {
	FindCredential(ctx context.Context, scheme model.CredentialScheme, cardKey string) (model.CardCredential, model.Employee, error)
}

// Resolver resolves credentials against a CredentialStore. It only reads;
// wrap the store in a CachingStore to keep known cards resolving through
// an outage.
type Resolver struct {
	store CredentialStore
}

func NewResolver(store CredentialStore) *Resolver {
	return &Resolver{store: store}
}

// CardKey normalizes a raw card value into the key stored for scheme.
func CardKey(scheme model.CredentialScheme, raw string) (string, error) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if value == "" {
		return "", model.ErrUnknownCredential
	}
	switch scheme {
	case model.SchemeRaw:
		return value, nil
	case model.SchemeLegacyHash:
		sum := sha256.Sum256([]byte(value))
		return hex.EncodeToString(sum[:]), nil
	default:
		return "", fmt.Errorf("%w: %q", model.ErrUnsupportedScheme, scheme)
	}
}

// Resolve returns the active employee bound to the credential.
func (r *Resolver) Resolve(ctx context.Context, raw string, scheme model.CredentialScheme) (model.Employee, error) {
	key, err := CardKey(scheme, raw)
	if err != nil {
		return model.Employee{}, err
	}

	cred, emp, err := r.store.FindCredential(ctx, scheme, key)
	if err != nil {
		return model.Employee{}, fmt.Errorf("resolve credential: %w", err)
	}

	if !cred.Active || !emp.Active {
		return model.Employee{}, model.ErrInactiveEmployee
	}
	if cred.EmployeeID != emp.ID {
		return model.Employee{}, fmt.Errorf("credential %d bound to %s, got employee %s: %w", cred.ID, cred.EmployeeID, emp.ID, model.ErrUnknownCredential)
	}
	return emp, nil
}
