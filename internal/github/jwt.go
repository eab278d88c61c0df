package github

import (
	"crypto/rsa"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// appJWTLifetime is the longest lifetime GitHub accepts for an App JWT.
const appJWTLifetime = 10 * time.Minute

// createJWT uses the provided appID and RSA private key to create a JWT that
// can be used to authenticate to GitHub APIs as the specified App.
//
// See https://docs.github.com/en/apps/creating-github-apps/authenticating-with-a-github-app/generating-a-json-web-token-jwt-for-a-github-app // nolint: lll
func createJWT(appID int64, key *rsa.PrivateKey, now time.Time) (string, error) {
	return jwt.NewWithClaims(
		jwt.SigningMethodRS256,
		jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(appJWTLifetime)),
			Issuer:    strconv.FormatInt(appID, 10),
		},
	).SignedString(key)
}
