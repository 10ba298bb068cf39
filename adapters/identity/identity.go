// Package identity resolves API credentials to the caller's user ID.
package identity

import (
	"context"
	"strings"

	"github.com/artpar/costboard/ports"
)

// Key binds a bcrypt-hashed API key to a user.
type Key struct {
	UserID  string
	KeyHash string
}

// KeyResolver checks presented credentials against configured key hashes.
type KeyResolver struct {
	keys   []Key
	hasher ports.Hasher
}

// NewKeyResolver creates a resolver over keys.
func NewKeyResolver(keys []Key, hasher ports.Hasher) *KeyResolver {
	return &KeyResolver{
		keys:   keys,
		hasher: hasher,
	}
}

// Resolve returns the user ID owning credential.
// Returns ports.ErrNotFound for empty or unknown credentials.
func (r *KeyResolver) Resolve(ctx context.Context, credential string) (string, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return "", ports.ErrNotFound
	}

	for _, k := range r.keys {
		if k.UserID == "" {
			continue
		}
		if r.hasher.Compare([]byte(k.KeyHash), credential) {
			return k.UserID, nil
		}
	}
	return "", ports.ErrNotFound
}

// Len returns the number of configured keys.
func (r *KeyResolver) Len() int {
	return len(r.keys)
}

// Ensure interface compliance.
var _ ports.IdentityResolver = (*KeyResolver)(nil)
