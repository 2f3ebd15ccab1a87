package flows

import (
	"context"
	"fmt"
	"time"

	"github.com/MrEthical07/tenantauth/identity"
	"github.com/MrEthical07/tenantauth/jwt"
	"github.com/MrEthical07/tenantauth/permission"
	"github.com/MrEthical07/tenantauth/session"
)

// Issued is a freshly minted token pair and its session.
type Issued struct {
	AccessToken  string
	RefreshToken string
	Access       *jwt.AccessClaims
	SessionID    string
	ChainID      string
	ExpiresIn    time.Duration
}

// ClientInfo is request metadata recorded on the session.
type ClientInfo struct {
	IP        string
	UserAgent string
}

func identityOf(user identity.User, res permission.Resolution) jwt.Identity {
	return jwt.Identity{
		UserID:      user.ID,
		TenantID:    user.TenantID,
		Email:       user.Email,
		Roles:       res.Roles,
		Permissions: res.Permissions.Sorted(),
	}
}

// mintRefresh signs a refresh token for sid and builds the matching record.
func (s Service) mintRefresh(user identity.User, sid string, client ClientInfo) (string, session.Record, error) {
	token, claims, err := s.deps.Tokens.IssueRefresh(user.ID, user.TenantID, sid)
	if err != nil {
		return "", session.Record{}, fmt.Errorf("issue refresh token: %w", err)
	}
	rec := session.Record{
		ID:          sid,
		UserID:      user.ID,
		TenantID:    user.TenantID,
		Fingerprint: session.Fingerprint(token),
		IssuedAt:    s.deps.Now(),
		ExpiresAt:   claims.ExpiresAt.Time,
		IP:          client.IP,
		UserAgent:   client.UserAgent,
	}
	return token, rec, nil
}

func (s Service) mintAccess(user identity.User, res permission.Resolution) (string, *jwt.AccessClaims, error) {
	token, claims, err := s.deps.Tokens.IssueAccess(identityOf(user, res))
	if err != nil {
		return "", nil, fmt.Errorf("issue access token: %w", err)
	}
	return token, claims, nil
}

// startSession opens a new session chain for user.
func (s Service) startSession(ctx context.Context, user identity.User, res permission.Resolution, client ClientInfo) (Issued, error) {
	sid, chain := s.deps.NewID(), s.deps.NewID()
	refresh, rec, err := s.mintRefresh(user, sid, client)
	if err != nil {
		return Issued{}, err
	}
	rec.ChainID = chain

	access, claims, err := s.mintAccess(user, res)
	if err != nil {
		return Issued{}, err
	}
	if err := s.deps.Sessions.Create(ctx, rec); err != nil {
		return Issued{}, err
	}
	return Issued{
		AccessToken:  access,
		RefreshToken: refresh,
		Access:       claims,
		SessionID:    sid,
		ChainID:      chain,
		ExpiresIn:    s.deps.Tokens.AccessTTL(),
	}, nil
}
