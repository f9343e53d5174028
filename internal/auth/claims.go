package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformedToken is returned for tokens that are not three-part JWTs.
var ErrMalformedToken = errors.New("malformed token")

// Claims are the ID token claims the storefront uses.
type Claims struct {
	Subject       string    `json:"sub"`
	Username      string    `json:"username"`
	Email         string    `json:"email,omitempty"`
	EmailVerified bool      `json:"email_verified"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// DecodeClaims reads the payload of an ID token without verifying its
// signature. The claims feed display and ownership hints only.
func DecodeClaims(token string) (Claims, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	c := Claims{
		Subject:       stringClaim(mc, "sub"),
		Username:      stringClaim(mc, "cognito:username"),
		Email:         stringClaim(mc, "email"),
		EmailVerified: parseBoolClaim(mc["email_verified"]),
	}
	if c.Username == "" {
		c.Username = stringClaim(mc, "username")
	}
	exp, err := mc.GetExpirationTime()
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if exp != nil {
		c.ExpiresAt = exp.Time.UTC()
	}
	return c, nil
}

func stringClaim(mc jwt.MapClaims, name string) string {
	s, _ := mc[name].(string)
	return s
}

// parseBoolClaim accepts true and "true"; the provider sends either.
func parseBoolClaim(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	}
	return false
}
