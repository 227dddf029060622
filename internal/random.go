package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const opaqueTokenSize = 32

// NewConfirmationCode returns a numeric code of the given length drawn from
// crypto/rand.
func NewConfirmationCode(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid confirmation code digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	code := b.String()
	if len(code) != digits {
		return "", fmt.Errorf("invalid confirmation code length")
	}
	return code, nil
}

// NewOpaqueToken returns a random base64url token with the given prefix.
func NewOpaqueToken(prefix string) (string, error) {
	var raw [opaqueTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return prefix + base64.RawURLEncoding.EncodeToString(raw[:]), nil
}
