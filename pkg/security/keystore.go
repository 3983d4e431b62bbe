package security

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"

	"github.com/google/uuid"

	zerr "github.com/zorroa/archivist-core/pkg/errors"
)

// Secret is a string type that redacts itself in String(), GoString(),
// and MarshalText() so signing material cannot leak through logging or
// serialization. The raw value is only reachable via [Secret.Value].
type Secret string

// secretRedacted replaces the real value in all printed output.
const secretRedacted = "[REDACTED]"

// String returns the redacted placeholder.
func (s Secret) String() string { return secretRedacted }

// GoString returns the redacted placeholder, covering %#v.
func (s Secret) GoString() string { return secretRedacted }

// MarshalText implements encoding.TextMarshaler with the redacted
// placeholder, covering JSON and YAML output.
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }

// Value returns the raw secret. Call only at the point of use, i.e.
// when passing to a cryptographic function.
func (s Secret) Value() string { return string(s) }

// SigningKey is the per-identity secret used symmetrically: to sign
// tokens this system issues for the owner, and to verify tokens and
// signed requests the owner presents. Keys are created when the owning
// user or API key is created, rotated only by re-issue, and never
// returned in any read response.
type SigningKey struct {
	// OwnerID is the user or API key the secret belongs to.
	OwnerID uuid.UUID

	// Secret is the HMAC key material.
	Secret Secret
}

// SigningKeyStore resolves the current signing key for an identity.
//
// Implementations must fail closed: a missing key is an error carrying
// [zerr.CodeNotFoundKey], never a default secret. Deleting a key is
// how every token signed with it is invalidated, so lookup failure
// after deletion is the revocation mechanism.
type SigningKeyStore interface {
	Key(ctx context.Context, ownerID uuid.UUID) (SigningKey, error)
}

// GenerateSecret returns a new random base64url secret of n bytes of
// entropy, suitable as HMAC key material. Panics only if the system
// entropy source is broken.
func GenerateSecret(n int) Secret {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		panic("security: entropy source unavailable: " + err.Error())
	}
	return Secret(base64.RawURLEncoding.EncodeToString(buf))
}

// StaticKeyStore is an in-memory SigningKeyStore. It backs tests and
// single-node setups where keys are loaded from configuration rather
// than the database. Safe for concurrent use.
type StaticKeyStore struct {
	mu   sync.RWMutex
	keys map[uuid.UUID]Secret
}

// NewStaticKeyStore creates a StaticKeyStore with the given keys.
func NewStaticKeyStore(keys map[uuid.UUID]Secret) *StaticKeyStore {
	copied := make(map[uuid.UUID]Secret, len(keys))
	for k, v := range keys {
		copied[k] = v
	}
	return &StaticKeyStore{keys: copied}
}

// Put installs or replaces the key for an owner.
func (s *StaticKeyStore) Put(ownerID uuid.UUID, secret Secret) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[ownerID] = secret
}

// Delete removes the key for an owner, invalidating every token
// signed with it.
func (s *StaticKeyStore) Delete(ownerID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, ownerID)
}

// Key implements SigningKeyStore.
func (s *StaticKeyStore) Key(ctx context.Context, ownerID uuid.UUID) (SigningKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	secret, ok := s.keys[ownerID]
	if !ok {
		return SigningKey{}, zerr.Newf(zerr.CodeNotFoundKey,
			"security: no signing key for %s", ownerID)
	}
	return SigningKey{OwnerID: ownerID, Secret: secret}, nil
}

// Compile-time interface check.
var _ SigningKeyStore = (*StaticKeyStore)(nil)
