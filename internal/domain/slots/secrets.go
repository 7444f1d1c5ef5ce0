package slots

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
)

const (
	secretBytes       = 10
	maxSecretAttempts = 5
)

var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewRecoverySecret returns a 16 character base32 token with 80 bits of entropy.
func NewRecoverySecret() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return secretEncoding.EncodeToString(b), nil
}

// freshSecret draws secrets until one is unused across both statuses.
func (c *Controller) freshSecret(ctx context.Context, tx Tx) (string, error) {
	for attempt := 0; attempt < maxSecretAttempts; attempt++ {
		secret, err := c.newSecret()
		if err != nil {
			return "", err
		}
		inUse, err := tx.SecretInUse(ctx, secret)
		if err != nil {
			return "", storeErr("secret lookup", err)
		}
		if !inUse {
			return secret, nil
		}
	}
	return "", precondition("no unused recovery secret after %d attempts", maxSecretAttempts)
}
