package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"iter"
	"math/big"
	"time"

	"github.com/signalix/reverseotp/internal/model"
)

const (
	codeLength    = 6
	requestIDSize = 16 // bytes, 128 bits
)

var codeSpace = big.NewInt(1_000_000)

// GenerateCode returns a uniformly random 6-digit code in [000000, 999999].
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// GenerateRequestID returns 128 random bits hex-encoded.
func GenerateRequestID() (string, error) {
	b := make([]byte, requestIDSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate request id: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// ValidateCodeFormat reports whether code is exactly six ASCII digits.
func ValidateCodeFormat(code string) bool {
	if len(code) != codeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !isDigit(code[i]) {
			return false
		}
	}
	return true
}

// ExtractCode returns the first run of exactly six ASCII digits in text that stands as a whole
// word. Letters, digits and '_' are word characters, so "OTP123456" and "id_123456" never
// match and longer digit runs are skipped whole.
func ExtractCode(text string) (string, bool) {
	for i := 0; i < len(text); {
		if !isDigit(text[i]) {
			i++
			continue
		}
		j := i
		for j < len(text) && isDigit(text[j]) {
			j++
		}
		if j-i == codeLength && (i == 0 || !isWordChar(text[i-1])) && (j == len(text) || !isWordChar(text[j])) {
			return text[i:j], true
		}
		i = j
	}
	return "", false
}

// FindByCode returns the first live, unverified entry in entries whose code equals code.
// Callers pass entries in creation order so collisions resolve to the earliest request.
func FindByCode(code string, entries iter.Seq[model.PendingRequest], now time.Time) (model.PendingRequest, bool) {
	for e := range entries {
		if e.Verified || e.IsExpired(now) {
			continue
		}
		if e.Code == code {
			return e, true
		}
	}
	return model.PendingRequest{}, false
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isWordChar(c byte) bool {
	return isDigit(c) || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
