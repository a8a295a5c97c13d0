package ws

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/semanticallynull/ridemarket-backend/user"
)

var ErrInvalidToken = errors.New("invalid session token")

// Claims identify the actor a websocket handshake is made for.
type Claims struct {
	ActorType string `json:"actor_type"`
	jwt.RegisteredClaims
}

// TokenVerifier issues and checks HS256 handshake tokens.
type TokenVerifier struct {
	secret []byte
	issuer string
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: "ridemarket"}
}

// Issue returns a token binding the session to the given actor for ttl.
func (v *TokenVerifier) Issue(t user.Type, actorID uuid.UUID, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(ttl)
	claims := Claims{
		ActorType: t.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actorID.String(),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Verify checks that token is valid and was issued for the actor.
func (v *TokenVerifier) Verify(token string, t user.Type, actorID uuid.UUID) error {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	if claims.Subject != actorID.String() || claims.ActorType != t.String() {
		return fmt.Errorf("%w: token was issued for another actor", ErrInvalidToken)
	}
	return nil
}
