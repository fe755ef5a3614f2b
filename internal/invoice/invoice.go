// Package invoice generates human-readable invoice numbers of the form
// {PREFIX}-{yyyymmddHHMM}-{XXXX} where XXXX is a random uppercase
// alphanumeric suffix.
package invoice

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const suffixAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const suffixLen = 4

// MaxAttempts bounds the regenerate-and-recheck loop when a generated number
// collides with an existing one.
const MaxAttempts = 5

type Generator struct {
	prefix string
}

func NewGenerator(prefix string) *Generator {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = "INV"
	}
	return &Generator{prefix: prefix}
}

func (g *Generator) Prefix() string {
	return g.prefix
}

// Next returns a fresh invoice number for the given timestamp. Two calls with
// the same timestamp differ in the random suffix, which is what the bounded
// retry loop in the transaction engine relies on.
func (g *Generator) Next(at time.Time) string {
	var b strings.Builder
	b.WriteString(g.prefix)
	b.WriteByte('-')
	b.WriteString(at.Format("200601021504"))
	b.WriteByte('-')
	for i := 0; i < suffixLen; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(suffixAlphabet))))
		if err != nil {
			// crypto/rand failure is effectively unrecoverable; fall back to a
			// time-derived suffix character rather than panic.
			b.WriteByte(suffixAlphabet[time.Now().UnixNano()%int64(len(suffixAlphabet))])
			continue
		}
		b.WriteByte(suffixAlphabet[n.Int64()])
	}
	return b.String()
}

// ErrExhausted is returned by callers when MaxAttempts generated numbers all
// collided. It is deliberately a formatted error, not a sentinel: the
// condition is practically unreachable and callers treat it as internal.
func ErrExhausted(prefix string) error {
	return fmt.Errorf("could not generate a unique invoice number with prefix %s after %d attempts", prefix, MaxAttempts)
}
