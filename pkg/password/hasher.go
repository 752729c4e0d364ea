package password

import (
	"errors"
	"fmt"
	"strings"
)

// Algorithm names accepted by NewHasher.
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

// Hasher turns a password into a self-describing digest and checks passwords
// against digests it produced.
type Hasher interface {
	Hash(password string) (string, error)

	// Verify reports whether password matches digest. A mismatch is (false, nil);
	// an error means the digest could not be interpreted.
	Verify(password, digest string) (bool, error)
}

var ErrEmptyPassword = errors.New("password cannot be empty")

// NewHasher returns the hasher for an algorithm name. New digests are produced
// with that algorithm; digests of the other supported algorithm still verify.
func NewHasher(algorithm string) (Hasher, error) {
	switch strings.ToLower(algorithm) {
	case "", AlgorithmArgon2id:
		return &DetectingHasher{Primary: NewArgon2Hasher()}, nil
	case AlgorithmBcrypt:
		return &DetectingHasher{Primary: NewBcryptHasher()}, nil
	}
	return nil, fmt.Errorf("unsupported password hash algorithm %q", algorithm)
}

// DetectingHasher hashes with Primary and verifies by looking at the digest prefix,
// so accounts keep working after the configured algorithm changes. Verification
// parameters always come from the digest itself.
type DetectingHasher struct {
	Primary Hasher
}

func (h *DetectingHasher) Hash(password string) (string, error) {
	return h.Primary.Hash(password)
}

func (h *DetectingHasher) Verify(password, digest string) (bool, error) {
	switch {
	case strings.HasPrefix(digest, "$argon2id$"):
		return (&Argon2Hasher{}).Verify(password, digest)
	case strings.HasPrefix(digest, "$2a$"), strings.HasPrefix(digest, "$2b$"), strings.HasPrefix(digest, "$2y$"):
		return (&BcryptHasher{}).Verify(password, digest)
	}
	return false, errors.New("unrecognized password digest format")
}
