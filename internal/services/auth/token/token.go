// Package token encodes and validates the signed session claims carried in
// the session cookie. Tokens are self-contained: no server-side session table
// exists, so everything needed to authenticate a request travels inside the
// token itself.
package token

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/starhaven/platform/internal/platform/errors"
)

// Service identifies a token issuer or audience. Values outside the known
// constants are carried through untouched so tokens minted by newer
// deployments keep their audience on round-trip.
type Service string

const (
	// ServicePlatform is the Star Haven platform itself.
	ServicePlatform Service = "star_haven_platform"
	// ServiceSccache is the build-cache sibling service.
	ServiceSccache Service = "star_haven_sccache"
)

// Known reports whether the service is one this deployment understands.
func (s Service) Known() bool {
	return s == ServicePlatform || s == ServiceSccache
}

// Scope names a permission grant carried inside claims. Unknown values pass
// through untouched for forward compatibility.
type Scope string

const (
	// ScopeCreateMod allows creating draft mods.
	ScopeCreateMod Scope = "create_mod"
	// ScopePublishMod allows publishing mods the subject created.
	ScopePublishMod Scope = "publish_mod"
	// ScopeAdminister allows administering all content.
	ScopeAdminister Scope = "administer"
)

// Known reports whether the scope is one this deployment understands.
func (s Scope) Known() bool {
	return s == ScopeCreateMod || s == ScopePublishMod || s == ScopeAdminister
}

// Claims is the decoded session claim set. Immutable once minted; the only
// derived artifact is its encoded string form.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Audience  []Service
	Issuer    Service
	Scopes    []Scope
}

// HasScope reports whether the claim set grants the given scope.
func (c Claims) HasScope(scope Scope) bool {
	return slices.Contains(c.Scopes, scope)
}

// NewClaims builds the claim set minted at login: subject is the user id,
// the audience is the platform and its trusted sibling services, and the
// issuer is the platform.
func NewClaims(userID string, scopes []Scope, lifetime time.Duration, now time.Time) Claims {
	issued := now.UTC().Truncate(time.Second)
	sorted := slices.Clone(scopes)
	slices.Sort(sorted)
	return Claims{
		Subject:   userID,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(lifetime),
		Audience:  []Service{ServicePlatform, ServiceSccache},
		Issuer:    ServicePlatform,
		Scopes:    sorted,
	}
}

// ErrInvalidToken is the single error surfaced for any decode failure.
// Signature, structure, expiry, and audience failures are deliberately not
// distinguished to callers.
var ErrInvalidToken = apperrors.New(apperrors.CodeTokenInvalid, "invalid token")

// wireClaims is the JWT payload shape.
type wireClaims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scopes"`
}

// Codec signs and validates session claims with a symmetric key.
type Codec struct {
	key   []byte
	clock func() time.Time
}

// NewCodec builds a codec around an HMAC signing key.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("signing key is required")
	}
	return &Codec{key: key, clock: time.Now}, nil
}

// WithClock overrides the codec clock. Intended for tests.
func (c *Codec) WithClock(clock func() time.Time) *Codec {
	if clock != nil {
		c.clock = clock
	}
	return c
}

// Encode produces the compact signed representation of the claims.
// Deterministic given identical claims and key.
func (c *Codec) Encode(claims Claims) (string, error) {
	audience := make([]string, 0, len(claims.Audience))
	for _, service := range claims.Audience {
		audience = append(audience, string(service))
	}
	scopes := make([]string, 0, len(claims.Scopes))
	for _, scope := range claims.Scopes {
		scopes = append(scopes, string(scope))
	}
	wire := wireClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
			Audience:  jwt.ClaimStrings(audience),
			Issuer:    string(claims.Issuer),
		},
		Scopes: scopes,
	}
	encoded, err := jwt.NewWithClaims(jwt.SigningMethodHS256, wire).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign claims: %w", err)
	}
	return encoded, nil
}

// Decode verifies the signature and required claims. Subject and expiry must
// be present, the expiry must be in the future, and the audience must include
// the platform. Every failure collapses to ErrInvalidToken.
func (c *Codec) Decode(encoded string) (Claims, error) {
	var wire wireClaims
	_, err := jwt.ParseWithClaims(encoded, &wire, func(*jwt.Token) (any, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, apperrors.Wrap(apperrors.CodeTokenInvalid, "invalid token", err)
	}

	if wire.Subject == "" || wire.ExpiresAt == nil {
		return Claims{}, ErrInvalidToken
	}
	now := c.clock().UTC()
	if !wire.ExpiresAt.Time.After(now) {
		return Claims{}, ErrInvalidToken
	}
	if !slices.Contains(wire.Audience, string(ServicePlatform)) {
		return Claims{}, ErrInvalidToken
	}

	claims := Claims{
		Subject:   wire.Subject,
		ExpiresAt: wire.ExpiresAt.Time.UTC(),
		Issuer:    Service(wire.Issuer),
	}
	if wire.IssuedAt != nil {
		claims.IssuedAt = wire.IssuedAt.Time.UTC()
	}
	for _, audience := range wire.Audience {
		claims.Audience = append(claims.Audience, Service(audience))
	}
	for _, scope := range wire.Scopes {
		claims.Scopes = append(claims.Scopes, Scope(scope))
	}
	return claims, nil
}
