package accounts

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Capability proves that one Authenticate call succeeded for one account.
// It is handed back to the privileged manager operations instead of the
// server remembering an authenticated flag, so no authentication state is
// ever shared between sessions. Tokens are short-lived; a capability is
// meant to cover a single command dispatch.
type Capability struct {
	account string
	token   string
}

// Account returns the account name this capability was issued for.
func (c *Capability) Account() string {
	if c == nil {
		return ""
	}
	return c.account
}

// Token returns the signed token backing this capability.
func (c *Capability) Token() string {
	if c == nil {
		return ""
	}
	return c.token
}

type capabilityIssuer struct {
	signingKey []byte
	ttl        time.Duration
}

func newCapabilityIssuer(signingKey []byte, ttl time.Duration) (*capabilityIssuer, error) {
	if len(signingKey) == 0 {
		// Capabilities never need to outlive the process, so a random
		// per-process key is fine when none is configured.
		signingKey = make([]byte, 32)
		if _, err := rand.Read(signingKey); err != nil {
			return nil, fmt.Errorf("failed to generate capability signing key: %v", err)
		}
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &capabilityIssuer{signingKey: signingKey, ttl: ttl}, nil
}

func (ci *capabilityIssuer) issue(account string) (*Capability, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   account,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ci.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ci.signingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign capability token: %v", err)
	}
	return &Capability{account: account, token: token}, nil
}

// verify checks that cap is a valid, unexpired capability for account.
func (ci *capabilityIssuer) verify(cap *Capability, account string) bool {
	if cap == nil || cap.account != account {
		return false
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(cap.token, claims,
		func(t *jwt.Token) (interface{}, error) { return ci.signingKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return false
	}
	return claims.Subject == account
}
