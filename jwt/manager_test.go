package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func newHSManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	signer, err := NewHS256Signer(testSecret, "hs-1")
	if err != nil {
		t.Fatalf("hs256 signer: %v", err)
	}
	m, err := NewManager(Config{
		Signer:     signer,
		Issuer:     "tenantauth",
		Audience:   "api",
		AccessTTL:  time.Hour,
		RefreshTTL: 7 * 24 * time.Hour,
		Now:        clock.Now,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m
}

func TestAccessRoundTrip(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newHSManager(t, clock)

	in := Identity{
		UserID:      "u1",
		TenantID:    "t1",
		Email:       "admin@demo.com",
		Roles:       []string{"admin"},
		Permissions: []string{"users.create", "users.read"},
	}
	token, issued, err := m.IssueAccess(in)
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	claims, err := m.ParseAccess(token)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.UID != in.UserID || claims.TID != in.TenantID || claims.Email != in.Email {
		t.Fatalf("identity mismatch: %+v", claims)
	}
	if !reflect.DeepEqual(claims.Roles, in.Roles) || !reflect.DeepEqual(claims.Perms, in.Permissions) {
		t.Fatalf("authorization snapshot mismatch: %+v", claims)
	}
	if !claims.ExpiresAt.Equal(issued.ExpiresAt.Time) {
		t.Fatalf("exp mismatch: %v vs %v", claims.ExpiresAt, issued.ExpiresAt)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != time.Hour {
		t.Fatalf("expected 1h lifetime, got %v", got)
	}
}

func TestAccessExpired(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newHSManager(t, clock)

	token, _, err := m.IssueAccess(Identity{UserID: "u1", TenantID: "t1"})
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	clock.now = clock.now.Add(time.Hour + time.Second)
	if _, err := m.ParseAccess(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestAccessTampered(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newHSManager(t, clock)

	token, _, err := m.IssueAccess(Identity{UserID: "u1", TenantID: "t1"})
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}

	other, _, err := m.IssueAccess(Identity{UserID: "u2", TenantID: "t1", Permissions: []string{"system.settings"}})
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	// Header and signature of one token around the payload of another.
	a := strings.Split(token, ".")
	b := strings.Split(other, ".")
	tampered := a[0] + "." + b[1] + "." + a[2]
	if _, err := m.ParseAccess(tampered); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	if _, err := m.ParseAccess(""); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for empty token, got %v", err)
	}
}

func TestTokenTypesAreNotInterchangeable(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newHSManager(t, clock)

	access, _, _ := m.IssueAccess(Identity{UserID: "u1", TenantID: "t1"})
	refresh, _, _ := m.IssueRefresh("u1", "t1", "s1")

	if _, err := m.ParseAccess(refresh); !errors.Is(err, ErrInvalid) {
		t.Fatalf("refresh token accepted as access: %v", err)
	}
	if _, err := m.ParseRefresh(access); !errors.Is(err, ErrInvalid) {
		t.Fatalf("access token accepted as refresh: %v", err)
	}
}

func TestRefreshCarriesOnlySessionBinding(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newHSManager(t, clock)

	token, _, err := m.IssueRefresh("u1", "t1", "s1")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}

	mc := gjwt.MapClaims{}
	if _, _, err := gjwt.NewParser().ParseUnverified(token, mc); err != nil {
		t.Fatalf("parse unverified: %v", err)
	}
	for _, forbidden := range []string{"perms", "roles", "email"} {
		if _, ok := mc[forbidden]; ok {
			t.Fatalf("refresh token must not carry %q", forbidden)
		}
	}

	claims, err := m.ParseRefresh(token)
	if err != nil {
		t.Fatalf("parse refresh: %v", err)
	}
	if claims.SID != "s1" || claims.UID != "u1" || claims.TID != "t1" {
		t.Fatalf("unexpected refresh claims: %+v", claims)
	}
}

func TestParseRefreshIgnoringExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newHSManager(t, clock)

	token, _, _ := m.IssueRefresh("u1", "t1", "s1")
	clock.now = clock.now.Add(8 * 24 * time.Hour)

	if _, err := m.ParseRefresh(token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	claims, err := m.ParseRefreshIgnoringExpiry(token)
	if err != nil {
		t.Fatalf("expected expired refresh to parse for logout: %v", err)
	}
	if claims.SID != "s1" {
		t.Fatalf("unexpected sid %q", claims.SID)
	}

	other, _ := NewHS256Signer([]byte("ffffffffffffffffffffffffffffffff"), "hs-1")
	forged, _ := NewManager(Config{Signer: other, Issuer: "tenantauth", Audience: "api", AccessTTL: time.Hour, RefreshTTL: time.Hour, Now: clock.Now})
	bad, _, _ := forged.IssueRefresh("u1", "t1", "s1")
	if _, err := m.ParseRefreshIgnoringExpiry(bad); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected forged refresh to fail, got %v", err)
	}
}

func TestIssuerAndAudienceBinding(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	m := newHSManager(t, clock)

	signer, _ := NewHS256Signer(testSecret, "hs-1")
	other, err := NewManager(Config{Signer: signer, Issuer: "someone-else", Audience: "api", AccessTTL: time.Hour, RefreshTTL: time.Hour, Now: clock.Now})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, _, _ := other.IssueAccess(Identity{UserID: "u1", TenantID: "t1"})
	if _, err := m.ParseAccess(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected issuer mismatch to fail, got %v", err)
	}

	wrongAud, _ := NewManager(Config{Signer: signer, Issuer: "tenantauth", Audience: "other", AccessTTL: time.Hour, RefreshTTL: time.Hour, Now: clock.Now})
	token, _, _ = wrongAud.IssueAccess(Identity{UserID: "u1", TenantID: "t1"})
	if _, err := m.ParseAccess(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected audience mismatch to fail, got %v", err)
	}
}

func TestRejectsWrongAlgorithm(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	signer, err := NewEd25519Signer(priv, "ed-1")
	if err != nil {
		t.Fatalf("ed25519 signer: %v", err)
	}
	m, err := NewManager(Config{Signer: signer, AccessTTL: time.Minute, RefreshTTL: time.Hour})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := AccessClaims{UID: "u1", TID: "t1", Type: typeAccess, RegisteredClaims: gjwt.RegisteredClaims{
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	tok.Header["kid"] = "ed-1"
	token, err := tok.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.ParseAccess(token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected wrong algorithm to be rejected, got %v", err)
	}
}

func TestKeyRotation(t *testing.T) {
	_, oldPriv, _ := ed25519.GenerateKey(rand.Reader)
	oldSigner, err := NewEd25519Signer(oldPriv, "2025-01")
	if err != nil {
		t.Fatalf("old signer: %v", err)
	}
	before, err := NewManager(Config{Signer: oldSigner, AccessTTL: time.Hour, RefreshTTL: 2 * time.Hour})
	if err != nil {
		t.Fatalf("manager before rotation: %v", err)
	}
	oldToken, _, err := before.IssueAccess(Identity{UserID: "u1", TenantID: "t1"})
	if err != nil {
		t.Fatalf("issue with old key: %v", err)
	}

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(rsaKey)})
	newSigner, err := NewRS256Signer(privPEM, "2025-06")
	if err != nil {
		t.Fatalf("rs256 signer: %v", err)
	}
	oldVerifier, err := NewEd25519Verifier(oldPriv.Public().(ed25519.PublicKey), "2025-01")
	if err != nil {
		t.Fatalf("old verifier: %v", err)
	}
	after, err := NewManager(Config{Signer: newSigner, Verifiers: []Verifier{oldVerifier}, AccessTTL: time.Hour, RefreshTTL: 2 * time.Hour})
	if err != nil {
		t.Fatalf("manager after rotation: %v", err)
	}

	if _, err := after.ParseAccess(oldToken); err != nil {
		t.Fatalf("token signed before rotation should verify: %v", err)
	}
	newToken, _, err := after.IssueAccess(Identity{UserID: "u1", TenantID: "t1"})
	if err != nil {
		t.Fatalf("issue with new key: %v", err)
	}
	if _, err := after.ParseAccess(newToken); err != nil {
		t.Fatalf("token signed after rotation should verify: %v", err)
	}
	if _, err := before.ParseAccess(newToken); !errors.Is(err, ErrInvalid) {
		t.Fatalf("old manager must not accept unknown kid, got %v", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&rsaKey.PublicKey)
	if err != nil {
		t.Fatalf("marshal rsa public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	rsVerifier, err := NewRS256Verifier(pubPEM, "2025-06")
	if err != nil {
		t.Fatalf("rs256 verifier: %v", err)
	}
	verifyOnly, err := NewManager(Config{Signer: oldSigner, Verifiers: []Verifier{rsVerifier}, AccessTTL: time.Hour, RefreshTTL: 2 * time.Hour})
	if err != nil {
		t.Fatalf("verify-only manager: %v", err)
	}
	if _, err := verifyOnly.ParseAccess(newToken); err != nil {
		t.Fatalf("rs256 verifier should accept token: %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	signer, _ := NewHS256Signer(testSecret, "k")
	cases := map[string]Config{
		"nil signer":       {AccessTTL: time.Minute, RefreshTTL: time.Hour},
		"zero access":      {Signer: signer, RefreshTTL: time.Hour},
		"refresh < access": {Signer: signer, AccessTTL: time.Hour, RefreshTTL: time.Minute},
		"leeway":           {Signer: signer, AccessTTL: time.Minute, RefreshTTL: time.Hour, Leeway: time.Hour},
		"duplicate kid":    {Signer: signer, Verifiers: []Verifier{signer}, AccessTTL: time.Minute, RefreshTTL: time.Hour},
	}
	for name, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	if _, err := NewHS256Signer([]byte("short"), ""); err == nil {
		t.Fatal("expected short hs256 secret to be rejected")
	}
}
