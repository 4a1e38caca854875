// Package code generates the 8-digit public codes shown to customers and
// admins in place of internal row ids.
package code

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
)

// Length is the number of digits in every public code.
const Length = 8

const limit = 100_000_000

var modulus = big.NewInt(limit)

// Generator draws uniformly random digit strings from Rand.
type Generator struct {
	Rand io.Reader
}

// Default reads from crypto/rand.
var Default = Generator{Rand: rand.Reader}

// New returns a fresh random code.
func (g Generator) New() (string, error) {
	r := g.Rand
	if r == nil {
		r = rand.Reader
	}
	var buf [4]byte
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		// 取低 27 位，超出 10^8 的样本丢弃重抽，保证均匀。
		n := binary.BigEndian.Uint32(buf[:]) & (1<<27 - 1)
		if n < limit {
			return fmt.Sprintf("%0*d", Length, n), nil
		}
	}
}

// Unique draws codes until one is absent from used, then records it there.
// Rejection sampling is fine at the volumes involved (thousands of rows
// against a space of 10^8).
func (g Generator) Unique(used map[string]struct{}) (string, error) {
	for {
		c, err := g.New()
		if err != nil {
			return "", err
		}
		if _, taken := used[c]; taken {
			continue
		}
		used[c] = struct{}{}
		return c, nil
	}
}

// New returns a code from the default generator.
func New() (string, error) { return Default.New() }

// Legacy derives the deterministic fallback code used for orders created
// before public codes were stored: sha256("id-created_at-total") taken as a
// big integer, mod 10^8, zero padded.
func Legacy(id int64, createdAt string, totalCents int64) string {
	seed := fmt.Sprintf("%d-%s-%d", id, createdAt, totalCents)
	sum := sha256.Sum256([]byte(seed))
	n := new(big.Int).SetBytes(sum[:])
	n.Mod(n, modulus)
	return fmt.Sprintf("%0*d", Length, n)
}

// Valid reports whether s looks like a public code.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
