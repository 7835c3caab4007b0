// Package auth mints and verifies the HS256 JWTs handed out to clients.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Claims is the fixed claim set of every token we issue. The jti lives in
// RegisteredClaims.ID and the owner in Identity (mirrored into Subject).
type Claims struct {
	jwt.RegisteredClaims
	Type     models.TokenType `json:"type"`
	Identity string           `json:"identity"`
	Fresh    bool             `json:"fresh,omitempty"`
}

// Issuer signs and parses tokens with a single HMAC secret.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	newID      func() string
}

func NewIssuer(secret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// NewAccessToken mints an access token. fresh marks tokens obtained by
// presenting credentials rather than a refresh token.
func (i *Issuer) NewAccessToken(identity string, fresh bool) (string, Claims, error) {
	return i.sign(identity, models.TokenTypeAccess, i.accessTTL, fresh)
}

func (i *Issuer) NewRefreshToken(identity string) (string, Claims, error) {
	return i.sign(identity, models.TokenTypeRefresh, i.refreshTTL, false)
}

func (i *Issuer) sign(identity string, typ models.TokenType, ttl time.Duration, fresh bool) (string, Claims, error) {
	if identity == "" {
		return "", Claims{}, common.ErrorInvalidRequest
	}

	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        i.newID(),
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Type:     typ,
		Identity: identity,
		Fresh:    fresh,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Parse verifies signature and time claims. Expired tokens yield
// common.ErrTokenExpired, anything else malformed common.ErrInvalidToken.
func (i *Issuer) Parse(token string) (Claims, error) {
	return i.parse(token, jwt.WithTimeFunc(i.now))
}

// Decode verifies the signature only. It is used when registering a token
// that was just minted, so clock skew cannot reject it.
func (i *Issuer) Decode(token string) (Claims, error) {
	return i.parse(token, jwt.WithoutClaimsValidation())
}

func (i *Issuer) parse(token string, opts ...jwt.ParserOption) (Claims, error) {
	claims := Claims{}
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, common.ErrTokenExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.ID == "" || claims.Identity == "" || !claims.Type.Valid() || claims.ExpiresAt == nil {
		return Claims{}, common.ErrInvalidToken
	}
	return claims, nil
}
