package auth

// TokenCategory distinguishes the two token kinds the identity provider
// issues.
type TokenCategory string

const (
	TokenCategoryIdentity TokenCategory = "identity"
	TokenCategoryAccess   TokenCategory = "access"
)

// AuthContext is the verified identity attached to a request. It is only
// ever constructed from a token that passed every verification step; a
// failed verification yields an error, never a partially populated context.
type AuthContext struct {
	// Subject is the stable external identity id (the token's sub claim).
	Subject string

	// TokenCategory is identity or access.
	TokenCategory TokenCategory

	// AudienceOrClient is the client id the token was issued for, already
	// confirmed to match this application.
	AudienceOrClient string

	// Scopes are the granted scope strings. Empty for identity tokens.
	Scopes []string
}

// HasScope reports whether the context carries the given scope.
func (c *AuthContext) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}
