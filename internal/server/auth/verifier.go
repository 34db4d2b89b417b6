// Package auth verifies bearer tokens issued by the external identity
// provider and produces the request-scoped AuthContext consumed by
// authorization logic.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redinc23/mangu-publishing-site-sub001/internal/common"
	"github.com/redinc23/mangu-publishing-site-sub001/internal/logging"
)

// claims carries the registered claims plus the provider-specific ones this
// system reads. token_use names the token category; client_id binds access
// tokens to the application; scope is a space-separated scope list.
type claims struct {
	jwt.RegisteredClaims
	TokenUse string `json:"token_use"`
	ClientID string `json:"client_id"`
	Scope    string `json:"scope"`
}

// Verifier checks bearer tokens against the configured trusted issuer and
// registered client id. It is stateless per call aside from the shared
// key-set cache.
type Verifier struct {
	issuer   string
	clientID string
	keys     *KeySet
	logger   logging.Logger
}

// NewVerifier constructs a Verifier bound to one issuer and client id.
func NewVerifier(issuer, clientID string, keys *KeySet, logger logging.Logger) *Verifier {
	return &Verifier{issuer: issuer, clientID: clientID, keys: keys, logger: logger}
}

// Verify validates a raw bearer token and returns the caller's AuthContext.
//
// Every verification failure (bad signature, unknown key, expired, wrong
// issuer, wrong audience or client, unexpected category) comes back as
// common.ErrInvalidToken; the specific cause is only logged. A valid access
// token missing one of requiredScopes fails with common.ErrInsufficientScope
// instead, so callers can tell "not logged in" from "not permitted".
func (v *Verifier) Verify(ctx context.Context, tokenString string, requiredScopes ...string) (*AuthContext, error) {
	c := &claims{}
	token, err := jwt.ParseWithClaims(tokenString, c,
		func(t *jwt.Token) (any, error) {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid header")
			}
			return v.keys.Key(ctx, kid)
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		// The library treats a missing exp as "never expires" unless told
		// otherwise; tokens without one must not verify.
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, v.reject(ctx, err)
	}
	if !token.Valid {
		return nil, v.reject(ctx, errors.New("token not valid"))
	}

	switch TokenCategory(c.TokenUse) {
	case TokenCategoryIdentity:
		if !containsString(c.Audience, v.clientID) {
			return nil, v.reject(ctx, fmt.Errorf("audience %v does not include client %q", c.Audience, v.clientID))
		}
		if len(requiredScopes) > 0 {
			// Identity tokens carry no scopes, so any scoped route is off
			// limits to them.
			return nil, common.ErrInsufficientScope
		}
		return &AuthContext{
			Subject:          c.Subject,
			TokenCategory:    TokenCategoryIdentity,
			AudienceOrClient: v.clientID,
		}, nil

	case TokenCategoryAccess:
		if c.ClientID != v.clientID {
			return nil, v.reject(ctx, fmt.Errorf("client id %q does not match %q", c.ClientID, v.clientID))
		}
		scopes := strings.Fields(c.Scope)
		for _, required := range requiredScopes {
			if !containsString(scopes, required) {
				return nil, common.ErrInsufficientScope
			}
		}
		return &AuthContext{
			Subject:          c.Subject,
			TokenCategory:    TokenCategoryAccess,
			AudienceOrClient: c.ClientID,
			Scopes:           scopes,
		}, nil

	default:
		return nil, v.reject(ctx, fmt.Errorf("unexpected token_use %q", c.TokenUse))
	}
}

// reject logs the real cause and collapses it into the uniform token error.
func (v *Verifier) reject(ctx context.Context, cause error) error {
	v.logger.Warn(ctx, "token rejected", "cause", cause.Error())
	return common.ErrInvalidToken
}

func containsString(items []string, want string) bool {
	for _, s := range items {
		if s == want {
			return true
		}
	}
	return false
}
