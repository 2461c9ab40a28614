package security

import (
	"errors"
	"strings"

	"github.com/matthewhartstonge/argon2"
	"golang.org/x/crypto/bcrypt"
)

var ErrUnknownHashFormat = errors.New("unknown password hash format")

// HasherConfig holds the argon2id work factors.
type HasherConfig struct {
	TimeCost    uint32
	MemoryCost  uint32
	Parallelism uint8
}

// DefaultHasherConfig returns the argon2 library defaults.
func DefaultHasherConfig() HasherConfig {
	cfg := argon2.DefaultConfig()

	return HasherConfig{
		TimeCost:    cfg.TimeCost,
		MemoryCost:  cfg.MemoryCost,
		Parallelism: cfg.Parallelism,
	}
}

// Hasher hashes passwords with argon2id and verifies both argon2 and legacy bcrypt hashes.
type Hasher struct {
	argon argon2.Config
}

// NewHasher creates a Hasher with the given work factors. Zero values fall back to the defaults.
func NewHasher(cfg HasherConfig) *Hasher {
	argon := argon2.DefaultConfig()
	if cfg.TimeCost > 0 {
		argon.TimeCost = cfg.TimeCost
	}
	if cfg.MemoryCost > 0 {
		argon.MemoryCost = cfg.MemoryCost
	}
	if cfg.Parallelism > 0 {
		argon.Parallelism = cfg.Parallelism
	}

	return &Hasher{argon: argon}
}

// Hash returns the encoded argon2id hash of the password.
func (h *Hasher) Hash(password string) (string, error) {
	encoded, err := h.argon.HashEncoded([]byte(password))
	if err != nil {
		return "", err
	}

	return string(encoded), nil
}

// Verify reports whether password matches the encoded hash.
// Accounts carried over from the bcrypt-era store still verify against their bcrypt hash.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	switch {
	case strings.HasPrefix(encoded, "$argon2"):
		return argon2.VerifyEncoded([]byte(password), []byte(encoded))
	case isBcrypt(encoded):
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, ErrUnknownHashFormat
	}
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}
