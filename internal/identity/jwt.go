package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims carries the account id and permission set inside a signed token
type Claims struct {
	AccountID   string   `json:"account_id"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// TokenResolver resolves signed bearer tokens into principals
type TokenResolver struct {
	secretKey []byte
	expiry    time.Duration
}

func NewTokenResolver(secretKey string, expiry time.Duration) *TokenResolver {
	return &TokenResolver{
		secretKey: []byte(secretKey),
		expiry:    expiry,
	}
}

// Issue creates a signed token for an account with the given permissions
func (r *TokenResolver) Issue(accountID string, permissions []string) (string, time.Time, error) {
	expiresAt := time.Now().Add(r.expiry)

	claims := Claims{
		AccountID:   accountID,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   accountID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(r.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// Resolve validates a token and returns the principal it identifies
func (r *TokenResolver) Resolve(tokenString string) (Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return r.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrExpiredToken
		}
		return Principal{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	return Principal{
		AccountID:   claims.AccountID,
		Permissions: claims.Permissions,
	}, nil
}
