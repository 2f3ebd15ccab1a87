package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16
	algorithmID           = "argon2id"

	// DefaultMinLength is the shortest accepted password in bytes.
	DefaultMinLength = 8
	// DefaultMaxLength caps the KDF input so oversized bodies cannot burn CPU.
	DefaultMaxLength = 1024
)

var (
	// ErrTooShort is returned by Hash when the password is below MinLength.
	ErrTooShort = errors.New("password too short")
	// ErrTooLong is returned by Hash and Verify when the password exceeds MaxLength.
	ErrTooLong = errors.New("password too long")
	// ErrMalformedHash is returned when a stored hash is not a valid argon2id PHC string.
	ErrMalformedHash = errors.New("malformed password hash")
)

// Config holds argon2id cost parameters and length policy.
type Config struct {
	Memory      uint32 `yaml:"memory"`
	Time        uint32 `yaml:"time"`
	Parallelism uint8  `yaml:"parallelism"`
	SaltLength  uint32 `yaml:"salt_length"`
	KeyLength   uint32 `yaml:"key_length"`
	MinLength   int    `yaml:"min_length"`
	MaxLength   int    `yaml:"max_length"`
}

// DefaultConfig returns the production argon2id parameters.
func DefaultConfig() Config {
	return Config{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
		MinLength:   DefaultMinLength,
		MaxLength:   DefaultMaxLength,
	}
}

// Argon2 hashes and verifies passwords with argon2id.
//
// Argon2 is safe for concurrent use.
type Argon2 struct {
	config Config
	kdf    func(password, salt []byte, time, memory uint32, threads uint8, keyLen uint32) []byte

	dummyOnce sync.Once
	dummy     string
}

type parsedPHC struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	hash        []byte
	keyLength   uint32
}

// NewArgon2 validates cfg and returns a hasher. Zero length limits fall back
// to DefaultMinLength and DefaultMaxLength.
func NewArgon2(cfg Config) (*Argon2, error) {
	if cfg.MinLength == 0 {
		cfg.MinLength = DefaultMinLength
	}
	if cfg.MaxLength == 0 {
		cfg.MaxLength = DefaultMaxLength
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return &Argon2{config: cfg, kdf: argon2.IDKey}, nil
}

// Hash describes the hash operation and its observable behavior.
//
// Hash returns ErrTooShort or ErrTooLong when the password violates the
// configured length policy, and a PHC encoded argon2id hash otherwise.
func (a *Argon2) Hash(password string) (string, error) {
	// Raw bytes, no Unicode normalization.
	if len(password) < a.config.MinLength {
		return "", fmt.Errorf("%w: minimum is %d bytes", ErrTooShort, a.config.MinLength)
	}
	if len(password) > a.config.MaxLength {
		return "", fmt.Errorf("%w: maximum is %d bytes", ErrTooLong, a.config.MaxLength)
	}

	salt := make([]byte, a.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := a.kdf(
		[]byte(password),
		salt,
		a.config.Time,
		a.config.Memory,
		a.config.Parallelism,
		a.config.KeyLength,
	)

	return encodePHC(a.config, salt, key), nil
}

// Verify reports whether password matches encodedHash. The comparison is
// constant time over the derived key. A malformed hash is an error, never a
// match.
func (a *Argon2) Verify(password string, encodedHash string) (bool, error) {
	if len(password) > a.config.MaxLength {
		return false, ErrTooLong
	}

	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := a.kdf(
		[]byte(password),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		parsed.keyLength,
	)

	return subtle.ConstantTimeCompare(computed, parsed.hash) == 1, nil
}

// VerifyDummy burns the same KDF cost as a real Verify and always reports
// false. Callers use it when no user matched so that unknown and known
// accounts take the same time to reject. Oversized passwords return at once,
// as Verify does.
func (a *Argon2) VerifyDummy(password string) {
	if len(password) > a.config.MaxLength {
		return
	}
	a.dummyOnce.Do(func() {
		salt := make([]byte, a.config.SaltLength)
		_, _ = io.ReadFull(rand.Reader, salt)
		key := a.kdf([]byte("dummy-password"), salt, a.config.Time, a.config.Memory, a.config.Parallelism, a.config.KeyLength)
		a.dummy = encodePHC(a.config, salt, key)
	})
	_, _ = a.Verify(password, a.dummy)
}

// NeedsUpgrade reports whether encodedHash was produced with weaker
// parameters than the current configuration.
func (a *Argon2) NeedsUpgrade(encodedHash string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	switch {
	case a.config.Memory > parsed.memory,
		a.config.Time > parsed.time,
		a.config.Parallelism > parsed.parallelism,
		a.config.KeyLength != parsed.keyLength:
		return true, nil
	}
	return false, nil
}

// MinLength returns the configured minimum password length.
func (a *Argon2) MinLength() int { return a.config.MinLength }

func encodePHC(cfg Config, salt, key []byte) string {
	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		cfg.Memory,
		cfg.Time,
		cfg.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", ErrMalformedHash, reason)
}

func parsePHC(encodedHash string) (*parsedPHC, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, malformed("invalid PHC format")
	}
	if parts[1] != algorithmID {
		return nil, malformed("unsupported algorithm")
	}

	versionPart, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return nil, malformed("missing argon2 version")
	}
	version, err := strconv.Atoi(versionPart)
	if err != nil || version != argon2.Version {
		return nil, malformed("unsupported argon2 version")
	}

	params, err := parseParams(parts[3])
	if err != nil {
		return nil, err
	}

	salt, err := decodeSegment(parts[4])
	if err != nil || len(salt) < int(minSaltLength) {
		return nil, malformed("invalid salt")
	}
	hash, err := decodeSegment(parts[5])
	if err != nil || len(hash) == 0 {
		return nil, malformed("invalid hash")
	}

	return &parsedPHC{
		memory:      params.memory,
		time:        params.time,
		parallelism: params.parallelism,
		salt:        salt,
		hash:        hash,
		keyLength:   uint32(len(hash)),
	}, nil
}

// decodeSegment accepts both unpadded (PHC canonical) and padded base64 so
// hashes written by other argon2 libraries still verify.
func decodeSegment(s string) ([]byte, error) {
	if strings.HasSuffix(s, "=") {
		return base64.StdEncoding.DecodeString(s)
	}
	return base64.RawStdEncoding.DecodeString(s)
}

type parsedParams struct {
	memory      uint32
	time        uint32
	parallelism uint8
}

func parseParams(part string) (*parsedParams, error) {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return nil, malformed("invalid parameter format")
	}

	var (
		memorySet, timeSet, parallelismSet bool
		params                             parsedParams
	)

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, malformed("invalid parameter entry")
		}

		switch key {
		case "m":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return nil, malformed("invalid memory parameter")
			}
			params.memory = uint32(v)
			memorySet = true
		case "t":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return nil, malformed("invalid time parameter")
			}
			params.time = uint32(v)
			timeSet = true
		case "p":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return nil, malformed("invalid parallelism parameter")
			}
			params.parallelism = uint8(v)
			parallelismSet = true
		default:
			return nil, malformed("unsupported parameter")
		}
	}

	if !memorySet || !timeSet || !parallelismSet {
		return nil, malformed("missing parameters")
	}

	return &params, nil
}

func validateConfig(cfg Config) error {
	if cfg.Memory < minMemoryKB {
		return errors.New("password memory must be >= 8192 KB")
	}
	if cfg.Time < minTimeCost {
		return errors.New("password time must be >= 1")
	}
	if cfg.Parallelism < minParallelism {
		return errors.New("password parallelism must be >= 1")
	}
	if cfg.SaltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	if cfg.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}
	if cfg.MinLength < 1 {
		return errors.New("password min length must be >= 1")
	}
	if cfg.MaxLength < cfg.MinLength {
		return errors.New("password max length must be >= min length")
	}

	return nil
}
