// Package middleware provides logging, authentication, rate limiting and
// tracing middleware for the HTTP layer.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"folio/internal/config"
	"folio/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const principalLocal = "principal"

// PrincipalResolver looks up the role and active flag behind a token subject.
type PrincipalResolver interface {
	ResolvePrincipal(ctx context.Context, userID uint) (models.Principal, error)
}

// PrincipalResolverFunc adapts a function to PrincipalResolver.
type PrincipalResolverFunc func(ctx context.Context, userID uint) (models.Principal, error)

// ResolvePrincipal calls f.
func (f PrincipalResolverFunc) ResolvePrincipal(ctx context.Context, userID uint) (models.Principal, error) {
	return f(ctx, userID)
}

// Authenticator validates bearer tokens issued by the identity provider and
// resolves them to principals.
type Authenticator struct {
	secret   []byte
	issuer   string
	audience string
	resolver PrincipalResolver
}

// NewAuthenticator creates an Authenticator using the JWT settings in cfg.
func NewAuthenticator(cfg *config.Config, resolver PrincipalResolver) *Authenticator {
	return &Authenticator{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.JWTIssuer,
		audience: cfg.JWTAudience,
		resolver: resolver,
	}
}

// ParseToken verifies the signature, issuer and audience and returns the
// user id carried in the subject claim.
func (a *Authenticator) ParseToken(tokenString string) (uint, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if a.audience != "" {
		opts = append(opts, jwt.WithAudience(a.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return 0, errors.New("invalid or expired token")
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return 0, errors.New("token is missing a subject")
	}
	id, err := strconv.ParseUint(sub, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid subject %q", sub)
	}
	return uint(id), nil
}

// IssueToken signs an HS256 token for userID. It backs the admin CLI and
// tests; production tokens come from the identity provider.
func IssueToken(secret, issuer, audience string, userID uint, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(uint64(userID), 10),
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func (a *Authenticator) authenticate(c *fiber.Ctx, token string) error {
	userID, err := a.ParseToken(token)
	if err != nil {
		return models.NewUnauthorizedError("Invalid or expired token")
	}

	principal, err := a.resolver.ResolvePrincipal(c.UserContext(), userID)
	if err != nil {
		if models.ErrorCode(err) == models.CodeNotFound {
			return models.NewUnauthorizedError("Unknown principal")
		}
		return err
	}
	if !principal.IsActive {
		return models.NewUnauthorizedError("Account is deactivated")
	}

	c.Locals(principalLocal, principal)
	c.Locals("userID", principal.ID)
	c.SetUserContext(context.WithValue(c.UserContext(), UserIDKey, principal.ID))
	return nil
}

// Required rejects requests without a valid bearer token for an active principal.
func (a *Authenticator) Required() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c)
		if !ok {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization header required"))
		}
		if err := a.authenticate(c, token); err != nil {
			return respondAuthError(c, err)
		}
		return c.Next()
	}
}

// Optional attaches a principal when a valid token is present and otherwise
// lets the request through anonymously. A malformed or stale token is still
// rejected so clients notice.
func (a *Authenticator) Optional() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, ok := bearerToken(c)
		if !ok {
			return c.Next()
		}
		if err := a.authenticate(c, token); err != nil {
			return respondAuthError(c, err)
		}
		return c.Next()
	}
}

func respondAuthError(c *fiber.Ctx, err error) error {
	if models.ErrorCode(err) == models.CodeUnauthorized {
		return models.RespondWithError(c, fiber.StatusUnauthorized, err)
	}
	Logger.ErrorContext(c.UserContext(), "principal lookup failed", "error", err)
	return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
}

// AdminRequired must run after Required and rejects non-admin principals.
func AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !PrincipalFrom(c).IsAdmin() {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Admin access required"))
		}
		return c.Next()
	}
}

// PrincipalFrom returns the principal attached by the authenticator, or the
// anonymous principal.
func PrincipalFrom(c *fiber.Ctx) models.Principal {
	if p, ok := c.Locals(principalLocal).(models.Principal); ok {
		return p
	}
	return models.Principal{}
}
