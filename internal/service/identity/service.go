package identity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"storefront/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrDisabled     = errors.New("bearer authentication not configured")
)

// Verifier checks HS256 bearer tokens issued by the storefront's auth service
// and maps them to user cart owners.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

func (v *Verifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

// Owner verifies token and returns the user it was issued for. The user id is
// read from "user_id" and falls back to "sub".
func (v *Verifier) Owner(token string) (domain.CartOwner, error) {
	if !v.Enabled() {
		return domain.CartOwner{}, ErrDisabled
	}
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return domain.CartOwner{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	id := claimString(claims["user_id"])
	if id == "" {
		id, _ = claims.GetSubject()
	}
	if strings.TrimSpace(id) == "" {
		return domain.CartOwner{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return domain.UserOwner(id), nil
}

func claimString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatInt(int64(val), 10)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
