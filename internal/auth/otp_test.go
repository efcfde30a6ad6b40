package auth

import (
	"encoding/hex"
	"iter"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalix/reverseotp/internal/model"
)

var t0 = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

func TestGenerateCode_format(t *testing.T) {
	for range 500 {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.True(t, ValidateCodeFormat(code), "code %q must be 6 digits", code)
	}
}

func TestGenerateCode_leadingZeros(t *testing.T) {
	// P(no leading zero in 2000 draws) = 0.9^2000, effectively zero.
	for range 2000 {
		code, err := GenerateCode()
		require.NoError(t, err)
		if code[0] == '0' {
			return
		}
	}
	t.Error("codes with a leading zero must be possible")
}

func TestGenerateRequestID(t *testing.T) {
	seen := make(map[string]struct{})
	for range 1000 {
		id, err := GenerateRequestID()
		require.NoError(t, err)
		decoded, err := hex.DecodeString(id)
		require.NoError(t, err, "request id should be valid hex")
		assert.Len(t, decoded, 16, "request id should carry 128 bits")
		_, dup := seen[id]
		require.False(t, dup, "request ids must not repeat")
		seen[id] = struct{}{}
	}
}

func TestValidateCodeFormat(t *testing.T) {
	assert.True(t, ValidateCodeFormat("000000"))
	assert.True(t, ValidateCodeFormat("042938"))
	assert.False(t, ValidateCodeFormat("12345"))
	assert.False(t, ValidateCodeFormat("1234567"))
	assert.False(t, ValidateCodeFormat("12a456"))
	assert.False(t, ValidateCodeFormat("١٢٣٤٥٦"), "non-ASCII digits are rejected")
}

func TestExtractCode(t *testing.T) {
	cases := []struct {
		text string
		want string
		ok   bool
	}{
		{"my code is 042938 thanks", "042938", true},
		{"no digits here", "", false},
		{"12345", "", false},
		{"call 555-1234567 now", "", false},
		{"123456", "123456", true},
		{"code:654321.", "654321", true},
		{"first 111111 then 222222", "111111", true},
		{"1234567 then 765432", "765432", true},
		{"abc123456def", "", false},
		{"OTP123456", "", false},
		{"123456abc", "", false},
		{"id_123456", "", false},
		{"OTP123456 or 654321", "654321", true},
		{"(123456)", "123456", true},
		{"code-123456", "123456", true},
		{"", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			got, ok := ExtractCode(tc.text)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func entries(es ...model.PendingRequest) iter.Seq[model.PendingRequest] {
	return slices.Values(es)
}

func TestFindByCode(t *testing.T) {
	live := t0.Add(time.Minute)
	list := []model.PendingRequest{
		{ID: "expired", Code: "123456", ExpiresAt: t0.Add(-time.Second), Seq: 1},
		{ID: "verified", Code: "123456", ExpiresAt: live, Seq: 2, Verified: true},
		{ID: "other", Code: "999999", ExpiresAt: live, Seq: 3},
		{ID: "first", Code: "123456", ExpiresAt: live, Seq: 4},
		{ID: "second", Code: "123456", ExpiresAt: live, Seq: 5},
	}

	for range 10 {
		got, ok := FindByCode("123456", entries(list...), t0)
		require.True(t, ok)
		assert.Equal(t, "first", got.ID, "collisions resolve to the earliest live entry")
	}

	_, ok := FindByCode("000000", entries(list...), t0)
	assert.False(t, ok)

	_, ok = FindByCode("123456", entries(), t0)
	assert.False(t, ok)
}
