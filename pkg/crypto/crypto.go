package crypto

import (
	"crypto/rand"
	"errors"
	"io"
)

// CodeAlphabet is upper-case alphanumerics without the look-alikes 0, O, 1 and I.
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var (
	errEmptyAlphabet = errors.New("crypto: alphabet must have between 2 and 256 symbols")
	errBadLength     = errors.New("crypto: code length must be positive")
)

// GenerateCode returns length symbols drawn uniformly from alphabet using
// randomness from r, or crypto/rand when r is nil.
func GenerateCode(r io.Reader, alphabet string, length int) (string, error) {
	if len(alphabet) < 2 || len(alphabet) > 256 {
		return "", errEmptyAlphabet
	}
	if length <= 0 {
		return "", errBadLength
	}
	if r == nil {
		r = rand.Reader
	}

	// Bytes at or above limit are rejected to keep the draw unbiased.
	limit := 256 - 256%len(alphabet)
	out := make([]byte, 0, length)
	buffer := make([]byte, length)
	for len(out) < length {
		if _, err := io.ReadFull(r, buffer); err != nil {
			return "", err
		}
		for _, b := range buffer {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
