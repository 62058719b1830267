package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Actor is the authenticated caller of an engine operation. Authentication
// itself happens upstream; the engine only verifies the bearer token and
// extracts who is acting, for which tenant, with which permissions.
type Actor struct {
	ID          string   `json:"id"`
	TenantID    string   `json:"tenant_id"`
	WorkerID    string   `json:"worker_id,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

const (
	PermissionAdmin          = "admin"
	PermissionApprovePayroll = "approve_payroll"
	PermissionApproveCash    = "approve_cash"
	PermissionManageBilling  = "manage_billing"
	PermissionClosePeriods   = "close_periods"
)

func (a *Actor) HasPermission(permission string) bool {
	for _, p := range a.Permissions {
		if p == permission || p == PermissionAdmin {
			return true
		}
	}
	return false
}

type Claims struct {
	TenantID    string   `json:"tenant_id"`
	WorkerID    string   `json:"worker_id,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
)

// ParseToken verifies an HMAC-signed bearer token and returns the actor it
// describes.
func ParseToken(tokenString string, signingKey []byte) (*Actor, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return &Actor{
		ID:          claims.Subject,
		TenantID:    claims.TenantID,
		WorkerID:    claims.WorkerID,
		Permissions: claims.Permissions,
	}, nil
}

// IssueToken mints a token for an actor. Used by the seeder and tests; the
// production issuer lives in the external auth service.
func IssueToken(actor *Actor, signingKey []byte, ttl time.Duration) (string, error) {
	claims := &Claims{
		TenantID:    actor.TenantID,
		WorkerID:    actor.WorkerID,
		Permissions: actor.Permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(signingKey)
}

type ctxKey string

const actorKey ctxKey = "actor"

func ContextWithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

func ActorFromContext(ctx context.Context) (*Actor, bool) {
	actor, ok := ctx.Value(actorKey).(*Actor)
	return actor, ok
}
