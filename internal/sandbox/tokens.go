package sandbox

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenIssuer   = "codeyard-sandbox"
	tokenAudience = "codeyard-api"
)

// Claims are the claims of a sandbox access token. Generation ties the token
// to the signing generation; ExpireAccessTokens bumps it.
type Claims struct {
	jwt.RegisteredClaims
	UserID     int64  `json:"user_id"`
	Username   string `json:"username"`
	Generation int64  `json:"gen"`
}

func (s *Service) issueAccessToken(u *userRow, generation int64) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			Subject:   u.Username,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID:     u.ID,
		Username:   u.Username,
		Generation: generation,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.opts.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

func (s *Service) parseAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.opts.JWTSecret), nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithAudience(tokenAudience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
