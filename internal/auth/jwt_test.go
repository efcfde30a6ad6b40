package auth

import (
	"encoding/base64"
	"encoding/json"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalix/reverseotp/internal/clock"
)

const testSecret = "test-credential-secret-at-least-32-bytes"

func TestIssuer_IssueAndVerify(t *testing.T) {
	now := time.Now().Truncate(time.Second)
	iss := NewIssuer(testSecret, "reverse-otp", 0, nil)

	cred, err := iss.Issue("u1", "req-1", now)
	require.NoError(t, err)
	assert.NotEmpty(t, cred.Token)
	assert.NotEmpty(t, cred.TokenID)
	assert.Equal(t, now.Add(24*time.Hour), cred.ExpiresAt)

	claims, err := iss.Verify(cred.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "req-1", claims.RequestID)
	assert.Equal(t, cred.TokenID, claims.ID)
	assert.Equal(t, now.Unix(), claims.IssuedAt.Unix())
	assert.Equal(t, now.Add(24*time.Hour).Unix(), claims.ExpiresAt.Unix())
}

func TestIssuer_rejectsForgery(t *testing.T) {
	now := time.Now()
	iss := NewIssuer(testSecret, "reverse-otp", time.Hour, nil)

	other := NewIssuer("another-secret-that-is-also-32-bytes!!", "reverse-otp", time.Hour, nil)
	forged, err := other.Issue("u1", "req-1", now)
	require.NoError(t, err)
	_, err = iss.Verify(forged.Token)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, &CredentialClaims{UserID: "u1", RequestID: "req-1"})
	noneToken, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = iss.Verify(noneToken)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	cred, err := iss.Issue("u1", "req-1", now)
	require.NoError(t, err)
	parts := strings.Split(cred.Token, ".")
	require.Len(t, parts, 3)
	payload, err := json.Marshal(map[string]any{"sub": "admin", "rid": "req-1", "iss": "reverse-otp", "exp": now.Add(time.Hour).Unix()})
	require.NoError(t, err)
	tampered := parts[0] + "." + base64.RawURLEncoding.EncodeToString(payload) + "." + parts[2]
	_, err = iss.Verify(tampered)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestIssuer_rejectsExpiredAndWrongIssuer(t *testing.T) {
	iss := NewIssuer(testSecret, "reverse-otp", time.Minute, nil)
	old, err := iss.Issue("u1", "req-1", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = iss.Verify(old.Token)
	assert.ErrorIs(t, err, ErrInvalidCredential)

	foreign := NewIssuer(testSecret, "someone-else", time.Hour, nil)
	cred, err := foreign.Issue("u1", "req-1", time.Now())
	require.NoError(t, err)
	_, err = iss.Verify(cred.Token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestIssuer_VerifyUsesInjectedClock(t *testing.T) {
	clk := clock.NewFixed(t0)
	iss := NewIssuer(testSecret, "reverse-otp", 24*time.Hour, clk)

	cred, err := iss.Issue("u1", "req-1", t0)
	require.NoError(t, err)

	clk.Advance(23 * time.Hour)
	claims, err := iss.Verify(cred.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)

	clk.Advance(2 * time.Hour)
	_, err = iss.Verify(cred.Token)
	assert.ErrorIs(t, err, ErrInvalidCredential)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestLoginURL(t *testing.T) {
	got, err := LoginURL("abc.def.ghi", "https://yourapp.com/login")
	require.NoError(t, err)
	assert.Equal(t, "https://yourapp.com/login?token=abc.def.ghi", got)

	got, err = LoginURL("tok", "https://yourapp.com/login?next=%2Fhome")
	require.NoError(t, err)
	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "tok", u.Query().Get("token"))
	assert.Equal(t, "/home", u.Query().Get("next"))

	_, err = LoginURL("tok", "://bad")
	assert.Error(t, err)
}
