package randstr

import (
	"crypto/rand"
	"math/big"
)

// Unambiguous leaves out characters that are easy to confuse when read aloud or
// copied by hand (0/O, 1/I/L).
const Unambiguous = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

type Generator struct {
	letters []byte
}

func New(letters []byte) *Generator {
	return &Generator{letters: letters}
}

func (g *Generator) GenerateRandomString(length int) string {
	b := make([]byte, length)
	max := big.NewInt(int64(len(g.letters)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		b[i] = g.letters[n.Int64()]
	}

	return string(b)
}
