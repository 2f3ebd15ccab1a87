package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

var (
	// ErrExpired is returned when a token is well formed and correctly
	// signed but past its exp.
	ErrExpired = errors.New("token expired")
	// ErrInvalid covers every other verification failure: signature,
	// algorithm, unknown kid, issuer, audience, token type, malformed input.
	ErrInvalid = errors.New("token invalid")
)

// Config defines the issuer settings for a Manager.
type Config struct {
	// Signer signs every new token.
	Signer Signer
	// Verifiers are additional keys accepted during verification,
	// typically the previous signer after a rotation.
	Verifiers  []Verifier
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Identity is the subject an access token is minted for.
type Identity struct {
	UserID      string
	TenantID    string
	Email       string
	Roles       []string
	Permissions []string
}

// AccessClaims is the access token payload.
type AccessClaims struct {
	UID   string   `json:"uid"`
	TID   string   `json:"tid"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles"`
	Perms []string `json:"perms"`
	Type  string   `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims is the refresh token payload. It never carries roles or
// permissions; those are resolved again on every refresh.
type RefreshClaims struct {
	UID  string `json:"uid"`
	TID  string `json:"tid"`
	SID  string `json:"sid"`
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// Manager issues and verifies access and refresh tokens.
type Manager struct {
	config    Config
	verifiers map[string]Verifier
}

// NewManager validates cfg and indexes the verification keys by kid.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Signer == nil {
		return nil, errors.New("jwt signer is required")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL < cfg.AccessTTL {
		return nil, errors.New("refresh TTL must be >= access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	m := &Manager{config: cfg, verifiers: make(map[string]Verifier, len(cfg.Verifiers)+1)}
	for _, v := range append([]Verifier{cfg.Signer}, cfg.Verifiers...) {
		if v == nil {
			return nil, errors.New("nil verifier")
		}
		if _, dup := m.verifiers[v.KeyID()]; dup {
			return nil, fmt.Errorf("duplicate verification key id %q", v.KeyID())
		}
		m.verifiers[v.KeyID()] = v
	}
	return m, nil
}

// AccessTTL returns the configured access token lifetime.
func (m *Manager) AccessTTL() time.Duration { return m.config.AccessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (m *Manager) RefreshTTL() time.Duration { return m.config.RefreshTTL }

// SigningAlgorithm returns the JWS alg of the active signer, e.g. "HS256".
func (m *Manager) SigningAlgorithm() string { return m.config.Signer.Method().Alg() }

// IssueAccess mints an access token carrying a snapshot of the identity's
// roles and permissions.
func (m *Manager) IssueAccess(id Identity) (string, *AccessClaims, error) {
	now := m.config.Now()
	claims := &AccessClaims{
		UID:              id.UserID,
		TID:              id.TenantID,
		Email:            id.Email,
		Roles:            nonNil(id.Roles),
		Perms:            nonNil(id.Permissions),
		Type:             typeAccess,
		RegisteredClaims: m.registered(id.UserID, now, m.config.AccessTTL),
	}
	signed, err := m.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// IssueRefresh mints a refresh token bound to session sid.
func (m *Manager) IssueRefresh(uid, tid, sid string) (string, *RefreshClaims, error) {
	now := m.config.Now()
	claims := &RefreshClaims{
		UID:              uid,
		TID:              tid,
		SID:              sid,
		Type:             typeRefresh,
		RegisteredClaims: m.registered(uid, now, m.config.RefreshTTL),
	}
	signed, err := m.sign(claims)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// ParseAccess verifies signature, expiry, issuer, audience and token type.
func (m *Manager) ParseAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(token, claims, true); err != nil {
		return nil, err
	}
	if claims.Type != typeAccess || claims.UID == "" || claims.TID == "" {
		return nil, fmt.Errorf("%w: not an access token", ErrInvalid)
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token the same way ParseAccess does.
func (m *Manager) ParseRefresh(token string) (*RefreshClaims, error) {
	return m.parseRefresh(token, true)
}

// ParseRefreshIgnoringExpiry verifies the signature and token type of a
// refresh token but accepts it past exp. Logout uses it so that an expired
// session can still be revoked explicitly.
func (m *Manager) ParseRefreshIgnoringExpiry(token string) (*RefreshClaims, error) {
	return m.parseRefresh(token, false)
}

func (m *Manager) parseRefresh(token string, checkExpiry bool) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(token, claims, checkExpiry); err != nil {
		return nil, err
	}
	if claims.Type != typeRefresh || claims.SID == "" || claims.UID == "" || claims.TID == "" {
		return nil, fmt.Errorf("%w: not a refresh token", ErrInvalid)
	}
	return claims, nil
}

func (m *Manager) registered(subject string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    m.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	if m.config.Audience != "" {
		rc.Audience = jwt.ClaimStrings{m.config.Audience}
	}
	return rc
}

func (m *Manager) sign(claims jwt.Claims) (string, error) {
	signer := m.config.Signer
	token := jwt.NewWithClaims(signer.Method(), claims)
	if kid := signer.KeyID(); kid != "" {
		token.Header["kid"] = kid
	}
	signed, err := token.SignedString(signer.SignKey())
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (m *Manager) parse(token string, claims jwt.Claims, checkExpiry bool) error {
	if token == "" {
		return fmt.Errorf("%w: empty token", ErrInvalid)
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods(m.algorithms()),
		jwt.WithTimeFunc(m.config.Now),
		jwt.WithIssuedAt(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}
	if !checkExpiry {
		options = append(options, jwt.WithoutClaimsValidation())
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, claims, m.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpired
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !parsed.Valid {
		return ErrInvalid
	}
	if !checkExpiry {
		// Claims validation was skipped; issuer and audience still bind.
		if err := m.checkBinding(claims); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) checkBinding(claims jwt.Claims) error {
	if m.config.Issuer != "" {
		iss, _ := claims.GetIssuer()
		if iss != m.config.Issuer {
			return fmt.Errorf("%w: issuer mismatch", ErrInvalid)
		}
	}
	if m.config.Audience != "" {
		aud, _ := claims.GetAudience()
		found := false
		for _, a := range aud {
			if a == m.config.Audience {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: audience mismatch", ErrInvalid)
		}
	}
	return nil
}

func (m *Manager) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	v, ok := m.verifiers[kid]
	if !ok {
		return nil, errors.New("unknown kid")
	}
	if t.Method.Alg() != v.Method().Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}
	return v.VerifyKey(), nil
}

func (m *Manager) algorithms() []string {
	seen := make(map[string]struct{}, len(m.verifiers))
	out := make([]string, 0, len(m.verifiers))
	for _, v := range m.verifiers {
		alg := v.Method().Alg()
		if _, ok := seen[alg]; ok {
			continue
		}
		seen[alg] = struct{}{}
		out = append(out, alg)
	}
	return out
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
