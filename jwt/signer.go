package jwt

import (
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const minHMACSecret = 32

// Verifier is the verification half of a signing key. Retired keys stay
// registered as verifiers so tokens minted before a rotation keep working
// until they expire.
type Verifier interface {
	Method() jwt.SigningMethod
	KeyID() string
	VerifyKey() any
}

// Signer is a signing capability. The Manager never inspects key material
// directly, so algorithms can rotate without touching callers.
type Signer interface {
	Verifier
	SignKey() any
}

type staticKey struct {
	method jwt.SigningMethod
	kid    string
	sign   any
	verify any
}

func (k staticKey) Method() jwt.SigningMethod { return k.method }
func (k staticKey) KeyID() string             { return k.kid }
func (k staticKey) SignKey() any              { return k.sign }
func (k staticKey) VerifyKey() any            { return k.verify }

// NewHS256Signer returns an HMAC-SHA256 signer. The secret must be at least
// 32 bytes.
func NewHS256Signer(secret []byte, kid string) (Signer, error) {
	if len(secret) < minHMACSecret {
		return nil, fmt.Errorf("hs256 secret must be at least %d bytes", minHMACSecret)
	}
	key := append([]byte(nil), secret...)
	return staticKey{method: jwt.SigningMethodHS256, kid: strings.TrimSpace(kid), sign: key, verify: key}, nil
}

// NewEd25519Signer accepts a raw 64 byte private key or a PKCS#8 PEM block.
func NewEd25519Signer(privateKey []byte, kid string) (Signer, error) {
	priv, err := parseEdPrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	return staticKey{
		method: jwt.SigningMethodEdDSA,
		kid:    strings.TrimSpace(kid),
		sign:   priv,
		verify: priv.Public(),
	}, nil
}

// NewEd25519Verifier accepts a raw 32 byte public key or a PKIX PEM block.
func NewEd25519Verifier(publicKey []byte, kid string) (Verifier, error) {
	pub, err := parseEdPublicKey(publicKey)
	if err != nil {
		return nil, err
	}
	return staticKey{method: jwt.SigningMethodEdDSA, kid: strings.TrimSpace(kid), verify: pub}, nil
}

// NewRS256Signer parses a PEM encoded RSA private key (PKCS#1 or PKCS#8).
func NewRS256Signer(privatePEM []byte, kid string) (Signer, error) {
	priv, err := jwt.ParseRSAPrivateKeyFromPEM(privatePEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa private key: %w", err)
	}
	return rsaSigner(priv, kid)
}

func rsaSigner(priv *rsa.PrivateKey, kid string) (Signer, error) {
	if priv.N.BitLen() < 2048 {
		return nil, errors.New("rsa key must be at least 2048 bits")
	}
	return staticKey{
		method: jwt.SigningMethodRS256,
		kid:    strings.TrimSpace(kid),
		sign:   priv,
		verify: &priv.PublicKey,
	}, nil
}

// NewRS256Verifier parses a PEM encoded RSA public key.
func NewRS256Verifier(publicPEM []byte, kid string) (Verifier, error) {
	pub, err := jwt.ParseRSAPublicKeyFromPEM(publicPEM)
	if err != nil {
		return nil, fmt.Errorf("parse rsa public key: %w", err)
	}
	return staticKey{method: jwt.SigningMethodRS256, kid: strings.TrimSpace(kid), verify: pub}, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
