package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"budgetshare/internal/core"
)

const inviteIssuer = "budgetshare"

// InviteSigner turns invite nonces into signed, expiring link tokens.
type InviteSigner struct {
	secret []byte
	now    func() time.Time
	parser *jwt.Parser
}

func NewInviteSigner(secret string) *InviteSigner {
	return &InviteSigner{
		secret: []byte(secret),
		now:    time.Now,
		// Expiry is checked by hand against s.now so it can be reported as
		// its own rejection kind.
		parser: &jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}, SkipClaimsValidation: true},
	}
}

// Sign issues a token for inv. The token carries the nonce and expiry only.
func (s *InviteSigner) Sign(inv core.Invite) (string, error) {
	claims := jwt.StandardClaims{
		Id:        inv.Token,
		Issuer:    inviteIssuer,
		IssuedAt:  inv.CreatedAt.Unix(),
		ExpiresAt: inv.ExpiresAt.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign invite: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and returns the invite nonce.
// Failures are *core.InviteError of kind InvalidToken or Expired.
func (s *InviteSigner) Parse(token string) (string, error) {
	claims := &jwt.StandardClaims{}
	_, err := s.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil || claims.Id == "" || claims.Issuer != inviteIssuer {
		return "", core.NewInviteError(core.InviteInvalidToken)
	}
	if claims.ExpiresAt != 0 && !s.now().Before(time.Unix(claims.ExpiresAt, 0)) {
		return "", core.NewInviteError(core.InviteExpired)
	}
	return claims.Id, nil
}
