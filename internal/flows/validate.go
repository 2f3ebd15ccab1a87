package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/tenantauth/identity"
	"github.com/MrEthical07/tenantauth/jwt"
	"github.com/MrEthical07/tenantauth/permission"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureInvalid
	ValidateFailureExpired
	ValidateFailureUserNotFound
	ValidateFailureUserLookup
	ValidateFailureDisabled
	ValidateFailureResolve
)

// ValidateResult returns either claims or a classified failure. Live is
// populated only for live validation.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.AccessClaims
	Live    *permission.Resolution
}

// Validate verifies an access token. It performs no store lookups.
func (s Service) Validate(accessToken string) ValidateResult {
	claims, err := s.deps.Tokens.ParseAccess(accessToken)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return ValidateResult{Failure: ValidateFailureExpired, Err: err}
		}
		return ValidateResult{Failure: ValidateFailureInvalid, Err: err}
	}
	return ValidateResult{Claims: claims}
}

// ValidateLive verifies an access token, then reloads the user and
// re-resolves permissions so role changes apply immediately.
func (s Service) ValidateLive(ctx context.Context, accessToken string) ValidateResult {
	out := s.Validate(accessToken)
	if out.Failure != ValidateFailureNone {
		return out
	}

	user, err := s.deps.Users.UserByID(ctx, out.Claims.TID, out.Claims.UID)
	if err != nil {
		out.Err = err
		if errors.Is(err, identity.ErrNotFound) {
			out.Failure = ValidateFailureUserNotFound
		} else {
			out.Failure = ValidateFailureUserLookup
		}
		return out
	}
	if !user.Active {
		out.Failure = ValidateFailureDisabled
		return out
	}

	res, err := s.deps.Resolver.Resolve(ctx, user.TenantID, user.ID)
	if err != nil {
		out.Failure, out.Err = ValidateFailureResolve, err
		return out
	}
	out.Live = &res
	return out
}
