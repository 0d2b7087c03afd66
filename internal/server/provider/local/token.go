package local

import (
	"time"

	"github.com/dmitrijs2005/idgate/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Issuer is the iss claim of access tokens minted by the embedded provider.
const Issuer = "idgate"

// Claims are the access token claims. Sub carries the user id, as GoTrue
// tokens do.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

func generateAccessToken(userID, email string, secret []byte, now time.Time, ttl time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
	})
	return token.SignedString(secret)
}

// ParseAccessToken verifies an HS256 access token and returns the user id.
func ParseAccessToken(tokenString string, secret []byte) (string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(Issuer))
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", common.ErrInvalidToken
	}
	return claims.Subject, nil
}
