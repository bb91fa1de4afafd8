package service

import (
	"context"
	"crypto/rand"
	"io"

	"github.com/Dan9191/card-service/internal/utils"
)

// DigestChecker reports whether a card number digest is already taken.
type DigestChecker interface {
	ExistsByDigest(ctx context.Context, digest string) (bool, error)
}

// NumberGenerator issues Luhn valid card numbers under a fixed issuer prefix.
type NumberGenerator struct {
	prefix string
	secret string
	rand   io.Reader
}

// NewNumberGenerator creates a generator drawing digits from crypto/rand.
func NewNumberGenerator(prefix, secret string) *NumberGenerator {
	return &NumberGenerator{prefix: prefix, secret: secret, rand: rand.Reader}
}

// Generate returns a fresh card number and its digest.
func (g *NumberGenerator) Generate() (number, digest string, err error) {
	number, err = utils.GenerateCardNumber(g.prefix, g.rand)
	if err != nil {
		return "", "", err
	}
	return number, utils.Digest(number, g.secret), nil
}

// GenerateUnique draws numbers until checker reports a digest that is not
// taken. Errors from checker are returned as they are.
func (g *NumberGenerator) GenerateUnique(ctx context.Context, checker DigestChecker) (number, digest string, attempts int, err error) {
	for {
		attempts++
		number, digest, err = g.Generate()
		if err != nil {
			return "", "", attempts, err
		}
		exists, err := checker.ExistsByDigest(ctx, digest)
		if err != nil {
			return "", "", attempts, err
		}
		if !exists {
			return number, digest, attempts, nil
		}
	}
}
