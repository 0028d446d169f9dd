package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var errExpiryBeforeIssue = errors.New("token expires before it was issued")

// TokenPair is the result of a login: an access token for the guard and a
// longer lived refresh token sharing the same session id.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenService signs and verifies HS256 claims tokens. It holds no mutable state.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenService creates a token service. Zero lifetimes fall back to the defaults.
func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, internal(errors.New("token signing secret is empty"))
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// AccessTTL returns the access token lifetime, which is also the session lifetime.
func (ts *TokenService) AccessTTL() time.Duration { return ts.accessTTL }

// Issue signs claims with a fresh jti. IssuedAt and ExpiresAt must be set.
func (ts *TokenService) Issue(claims AdminClaims) (string, error) {
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return "", internal(errors.New("claims must carry iat and exp"))
	}
	if !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		return "", internal(errExpiryBeforeIssue)
	}
	claims.ID = uuid.New().String()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.secret)
	if err != nil {
		return "", internal(fmt.Errorf("failed to sign token: %w", err))
	}
	return signed, nil
}

// IssuePair issues an access and a refresh token for one session.
func (ts *TokenService) IssuePair(subject, role, sessionID string) (*TokenPair, error) {
	now := ts.now().Truncate(time.Second)
	accessExp := now.Add(ts.accessTTL)
	refreshExp := now.Add(ts.refreshTTL)

	access, err := ts.Issue(ts.claims(subject, role, sessionID, now, accessExp))
	if err != nil {
		return nil, err
	}
	refresh, err := ts.Issue(ts.claims(subject, role, sessionID, now, refreshExp))
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (ts *TokenService) claims(subject, role, sessionID string, iat, exp time.Time) AdminClaims {
	return AdminClaims{
		Role:      role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
}

// Verify checks the signature, the algorithm and the expiry. Any failure is
// KindUnauthorized; the cause is kept for logging.
func (ts *TokenService) Verify(tokenString string) (*AdminClaims, error) {
	claims, err := ts.parse(tokenString,
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(ts.now),
	)
	if err != nil {
		return nil, unauthorized(MsgInvalidToken, err)
	}
	if claims.IssuedAt == nil || !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		return nil, unauthorized(MsgInvalidToken, errExpiryBeforeIssue)
	}
	return claims, nil
}

// Decode checks the signature and algorithm but accepts expired tokens. It is
// only used to locate a session to tear down.
func (ts *TokenService) Decode(tokenString string) (*AdminClaims, error) {
	claims, err := ts.parse(tokenString, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, unauthorized(MsgInvalidToken, err)
	}
	return claims, nil
}

func (ts *TokenService) parse(tokenString string, opts ...jwt.ParserOption) (*AdminClaims, error) {
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return ts.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
