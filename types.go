package tenantauth

import (
	"io"
	"time"

	internalaudit "github.com/MrEthical07/tenantauth/internal/audit"
	"github.com/MrEthical07/tenantauth/permission"
	"github.com/sirupsen/logrus"
)

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "Bearer"

// PublicUser is the user view returned with a token pair. It never carries
// the password hash.
type PublicUser struct {
	ID          string   `json:"id"`
	TenantID    string   `json:"tenant_id"`
	Email       string   `json:"email"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// AuthResult is returned by [Engine.Login] and [Engine.Refresh].
type AuthResult struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int64      `json:"expires_in"`
	User         PublicUser `json:"user"`
}

// Claims is the verified content of an access token. Roles and Permissions
// are the snapshot taken when the token was issued; use
// [Engine.ValidateLive] for the current grants.
type Claims struct {
	UserID      string
	TenantID    string
	Email       string
	Roles       []string
	Permissions []string
	TokenID     string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Has reports whether the claims grant code.
func (c *Claims) Has(code string) bool {
	return CheckPermission(c, code)
}

// CheckPermission reports whether claims grant the permission code. A
// "resource.*" grant covers every action on resource. Nil claims grant
// nothing.
func CheckPermission(claims *Claims, code string) bool {
	if claims == nil {
		return false
	}
	return permission.Check(claims.Permissions, code)
}

// AuditEvent is the canonical audit event.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events.
type AuditSink = internalaudit.Sink

// NoOpSink drops audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers audit events in a channel.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes audit events as JSON lines.
type JSONWriterSink = internalaudit.JSONWriterSink

// LogrusSink writes audit events as structured log entries.
type LogrusSink = internalaudit.LogrusSink

// NewChannelSink returns a channel backed sink.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a JSON lines sink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewLogrusSink returns a sink logging through log.
func NewLogrusSink(log logrus.FieldLogger) *LogrusSink {
	return internalaudit.NewLogrusSink(log)
}
