package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Handle is the raw form of an opaque challenge session handle.
type Handle [24]byte

func NewHandle() (Handle, error) {
	var h Handle
	_, err := rand.Read(h[:])
	return h, err
}

func (h Handle) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(h[:])
}

func ParseHandle(s string) (Handle, error) {
	var h Handle
	if len(s) != base64.RawURLEncoding.EncodedLen(len(h)) {
		return h, errors.New("invalid handle size")
	}

	raw, err := base64.RawURLEncoding.Strict().DecodeString(s)
	if err != nil {
		return h, err
	}
	if len(raw) != len(h) {
		return h, errors.New("invalid handle size")
	}

	copy(h[:], raw)
	return h, nil
}

// NewOTP returns a decimal one-time code of the given length.
func NewOTP(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid otp digits")
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

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// HashCode hashes a confirmation code scoped to its email so that equal codes
// for different accounts never share a stored hash.
func HashCode(email, code string) [32]byte {
	return sha256.Sum256([]byte(email + "\x00" + code))
}

// RandomIndex returns a uniform index in [0, n).
func RandomIndex(n int) (int, error) {
	if n <= 0 {
		return 0, errors.New("invalid range")
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
