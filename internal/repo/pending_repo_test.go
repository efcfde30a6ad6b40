package repo

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalix/reverseotp/internal/model"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newEntry(id, code string, expiresAt time.Time) model.PendingRequest {
	return model.PendingRequest{
		ID:          id,
		Code:        code,
		PhoneNumber: "+15551234567",
		UserID:      "u-" + id,
		CreatedAt:   t0,
		ExpiresAt:   expiresAt,
	}
}

func issueFixed(token string) IssueFunc {
	return func(req model.PendingRequest) (model.Verification, error) {
		return model.Verification{
			Credential: model.Credential{Token: token, IssuedAt: t0, ExpiresAt: t0.Add(24 * time.Hour)},
			LoginURL:   "https://example.test/login?token=" + token,
		}, nil
	}
}

func TestPendingRepo_PutGetDelete(t *testing.T) {
	r := NewPendingRepo()
	require.NoError(t, r.Put(newEntry("a", "000001", t0.Add(time.Minute))))

	got, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "000001", got.Code)
	assert.Equal(t, uint64(1), got.Seq)

	err = r.Put(newEntry("a", "000002", t0.Add(time.Minute)))
	assert.ErrorIs(t, err, ErrDuplicateID)

	r.Delete("a")
	r.Delete("a")
	_, err = r.Get("a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, r.Len())
}

func TestPendingRepo_SweepExpired(t *testing.T) {
	r := NewPendingRepo()
	require.NoError(t, r.Put(newEntry("old", "111111", t0.Add(-time.Second))))
	require.NoError(t, r.Put(newEntry("edge", "222222", t0)))
	require.NoError(t, r.Put(newEntry("new", "333333", t0.Add(time.Minute))))

	assert.Equal(t, 1, r.SweepExpired(t0), "only entries strictly before now are removed")
	assert.Equal(t, 0, r.SweepExpired(t0), "second sweep has no effect")
	assert.Equal(t, 2, r.Len())

	_, err := r.Get("edge")
	assert.NoError(t, err)
}

func TestPendingRepo_AllInsertionOrder(t *testing.T) {
	r := NewPendingRepo()
	ids := []string{"z", "m", "a", "q", "b"}
	for _, id := range ids {
		require.NoError(t, r.Put(newEntry(id, "123456", t0.Add(time.Minute))))
	}

	for range 5 {
		var got []string
		for e := range r.All() {
			got = append(got, e.ID)
		}
		assert.Equal(t, ids, got)
	}
}

func TestPendingRepo_AllSnapshot(t *testing.T) {
	r := NewPendingRepo()
	require.NoError(t, r.Put(newEntry("a", "123456", t0.Add(time.Minute))))
	require.NoError(t, r.Put(newEntry("b", "123456", t0.Add(time.Minute))))

	var seen []string
	for e := range r.All() {
		// Mutation during iteration must not deadlock or change the snapshot.
		r.Delete("b")
		require.NoError(t, r.Put(newEntry(e.ID+"-child", "654321", t0.Add(time.Minute))))
		seen = append(seen, e.ID)
	}
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestPendingRepo_MarkVerified(t *testing.T) {
	r := NewPendingRepo()
	require.NoError(t, r.Put(newEntry("a", "123456", t0.Add(time.Minute))))

	now := t0.Add(10 * time.Second)
	got, err := r.MarkVerified("a", now, issueFixed("tok"))
	require.NoError(t, err)
	assert.True(t, got.Verified)
	require.NotNil(t, got.Credential)
	assert.Equal(t, "tok", got.Credential.Token)
	require.NotNil(t, got.VerifiedAt)
	assert.Equal(t, now, *got.VerifiedAt)

	_, err = r.MarkVerified("a", now.Add(time.Second), issueFixed("tok2"))
	assert.ErrorIs(t, err, ErrAlreadyVerified)

	stored, err := r.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "tok", stored.Credential.Token, "verified entry must not change")
	assert.Equal(t, now, *stored.VerifiedAt)
}

func TestPendingRepo_MarkVerifiedErrors(t *testing.T) {
	r := NewPendingRepo()
	require.NoError(t, r.Put(newEntry("a", "123456", t0)))

	_, err := r.MarkVerified("missing", t0, issueFixed("x"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.MarkVerified("a", t0.Add(time.Nanosecond), issueFixed("x"))
	assert.ErrorIs(t, err, ErrExpired)

	boom := errors.New("boom")
	_, err = r.MarkVerified("a", t0, func(model.PendingRequest) (model.Verification, error) {
		return model.Verification{}, boom
	})
	assert.ErrorIs(t, err, boom)

	stored, err := r.Get("a")
	require.NoError(t, err)
	assert.False(t, stored.Verified, "failed issue must leave the entry pending")
}

func TestPendingRepo_MarkVerifiedConcurrent(t *testing.T) {
	r := NewPendingRepo()
	require.NoError(t, r.Put(newEntry("a", "123456", t0.Add(time.Minute))))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.MarkVerified("a", t0, issueFixed(fmt.Sprintf("tok-%d", i))); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load(), "exactly one caller may verify")
}
