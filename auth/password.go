package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2Params are the argon2id cost parameters. Memory is in KiB.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params are the costs stored hashes were created with.
var DefaultArgon2Params = Argon2Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 4,
	SaltLength:  16,
	KeyLength:   32,
}

// Ceilings applied to parameters read back from stored hashes. A stored hash
// asking for more than this is treated as a mismatch.
const (
	maxMemoryKiB  = 1 << 20
	maxIterations = 64
	maxKeyLength  = 128
)

var ErrInvalidParams = errors.New("invalid argon2 parameters")

// PasswordHasher hashes and verifies passwords with argon2id.
type PasswordHasher struct {
	params Argon2Params
}

// NewPasswordHasher validates params once. An error here is a configuration
// problem and should stop the process.
func NewPasswordHasher(params Argon2Params) (*PasswordHasher, error) {
	switch {
	case params.Iterations < 1 || params.Iterations > maxIterations:
		return nil, fmt.Errorf("%w: iterations %d", ErrInvalidParams, params.Iterations)
	case params.Parallelism < 1:
		return nil, fmt.Errorf("%w: parallelism must be at least 1", ErrInvalidParams)
	case params.Memory < 8*uint32(params.Parallelism) || params.Memory > maxMemoryKiB:
		return nil, fmt.Errorf("%w: memory %d KiB", ErrInvalidParams, params.Memory)
	case params.SaltLength < 8:
		return nil, fmt.Errorf("%w: salt length %d", ErrInvalidParams, params.SaltLength)
	case params.KeyLength < 16 || params.KeyLength > maxKeyLength:
		return nil, fmt.Errorf("%w: key length %d", ErrInvalidParams, params.KeyLength)
	}
	return &PasswordHasher{params: params}, nil
}

// Hash returns an encoded argon2id hash in PHC string format.
func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. The parameters stored in
// encoded are used, not the hasher's own. Malformed input never errors, it
// just doesn't match.
func (h *PasswordHasher) Verify(password, encoded string) bool {
	params, salt, key, ok := decodeHash(encoded)
	if !ok {
		return false
	}

	other := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
	return subtle.ConstantTimeCompare(key, other) == 1
}

// NeedsRehash reports whether encoded was produced with different parameters
// than the hasher's current ones.
func (h *PasswordHasher) NeedsRehash(encoded string) bool {
	params, salt, _, ok := decodeHash(encoded)
	if !ok {
		return true
	}
	return params.Memory != h.params.Memory ||
		params.Iterations != h.params.Iterations ||
		params.Parallelism != h.params.Parallelism ||
		params.KeyLength != h.params.KeyLength ||
		uint32(len(salt)) != h.params.SaltLength
}

func decodeHash(encoded string) (Argon2Params, []byte, []byte, bool) {
	var params Argon2Params

	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return params, nil, nil, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return params, nil, nil, false
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return params, nil, nil, false
	}
	if memory == 0 || memory > maxMemoryKiB || iterations == 0 || iterations > maxIterations || parallelism == 0 {
		return params, nil, nil, false
	}

	salt, err := base64.RawStdEncoding.Strict().DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return params, nil, nil, false
	}
	key, err := base64.RawStdEncoding.Strict().DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > maxKeyLength {
		return params, nil, nil, false
	}

	params = Argon2Params{
		Memory:      memory,
		Iterations:  iterations,
		Parallelism: parallelism,
		SaltLength:  uint32(len(salt)),
		KeyLength:   uint32(len(key)),
	}
	return params, salt, key, true
}
