package migrator

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/pkg/errors"
)

// HashSize is the length in bytes of a content hash.
const HashSize = sha256.Size

// Hash is the SHA-256 digest identifying the exact byte content of a
// migration document or schema snapshot. Hashes are computed over raw file
// bytes with no normalization, so any edit, including whitespace, produces
// a different identity.
type Hash [HashSize]byte

// MigrationHash computes the content identity of a migration document.
func MigrationHash(text string) Hash {
	return sha256.Sum256([]byte(text))
}

// SchemaHash computes the content identity of a schema snapshot.
func SchemaHash(text string) Hash {
	return sha256.Sum256([]byte(text))
}

// HashFromBytes converts a raw byte slice into a Hash, as when scanning a
// BYTEA column. Returns an error if the slice is not exactly HashSize bytes.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, errors.Errorf("invalid hash length: got %d bytes, want %d", len(b), HashSize)
	}
	copy(h[:], b)
	return h, nil
}

// Bytes returns the hash as a byte slice for database parameters.
func (h Hash) Bytes() []byte {
	return h[:]
}

// String returns the full hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Short returns an 8-character hex prefix, used in logs and status output.
func (h Hash) Short() string {
	return hex.EncodeToString(h[:4])
}
