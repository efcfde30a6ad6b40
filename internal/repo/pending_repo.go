package repo

import (
	"cmp"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/signalix/reverseotp/internal/model"
)

var (
	// ErrNotFound is returned when no entry exists for a request id.
	ErrNotFound = errors.New("request not found")
	// ErrExpired is returned when the entry exists but is past its expiry.
	ErrExpired = errors.New("request expired")
	// ErrDuplicateID is returned by Put when the id is already stored.
	ErrDuplicateID = errors.New("duplicate request id")
	// ErrAlreadyVerified is returned when verifying an entry that is already verified.
	ErrAlreadyVerified = errors.New("request already verified")
)

// IssueFunc produces the credential for a request about to be verified. It runs
// while the store is locked and must not block on I/O.
type IssueFunc func(req model.PendingRequest) (model.Verification, error)

// PendingRepo defines the operations on the table of pending verification requests
type PendingRepo interface {
	Put(req model.PendingRequest) error
	Get(id string) (model.PendingRequest, error)
	Delete(id string)
	SweepExpired(now time.Time) int
	All() iter.Seq[model.PendingRequest]
	MarkVerified(id string, now time.Time, issue IssueFunc) (model.PendingRequest, error)
	Len() int
}

type pendingRepo struct {
	mu      sync.Mutex
	entries map[string]*model.PendingRequest
	seq     uint64
}

// NewPendingRepo creates an empty in-memory PendingRepo
func NewPendingRepo() PendingRepo {
	return &pendingRepo{entries: make(map[string]*model.PendingRequest)}
}

// Put inserts a new entry and assigns its insertion sequence number.
func (r *pendingRepo) Put(req model.PendingRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[req.ID]; exists {
		return fmt.Errorf("put %s: %w", req.ID, ErrDuplicateID)
	}
	r.seq++
	req.Seq = r.seq
	r.entries[req.ID] = &req
	return nil
}

// Get returns a copy of the entry. Expiry is the caller's concern.
func (r *pendingRepo) Get(id string) (model.PendingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return model.PendingRequest{}, ErrNotFound
	}
	return *e, nil
}

func (r *pendingRepo) Delete(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// SweepExpired removes every entry whose expiry is strictly before now and returns how many were removed.
func (r *pendingRepo) SweepExpired(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, e := range r.entries {
		if e.ExpiresAt.Before(now) {
			delete(r.entries, id)
			removed++
		}
	}
	return removed
}

// All yields a snapshot of the entries taken when iteration starts, earliest-created first.
func (r *pendingRepo) All() iter.Seq[model.PendingRequest] {
	return func(yield func(model.PendingRequest) bool) {
		r.mu.Lock()
		snapshot := make([]model.PendingRequest, 0, len(r.entries))
		for _, e := range r.entries {
			snapshot = append(snapshot, *e)
		}
		r.mu.Unlock()

		slices.SortFunc(snapshot, func(a, b model.PendingRequest) int {
			return cmp.Compare(a.Seq, b.Seq)
		})
		for _, e := range snapshot {
			if !yield(e) {
				return
			}
		}
	}
}

// MarkVerified performs the pending -> verified transition for id atomically.
// The entry is re-checked under the lock, so of two racing callers exactly one succeeds.
func (r *pendingRepo) MarkVerified(id string, now time.Time, issue IssueFunc) (model.PendingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return model.PendingRequest{}, ErrNotFound
	}
	if e.IsExpired(now) {
		return model.PendingRequest{}, ErrExpired
	}
	if e.Verified {
		return model.PendingRequest{}, ErrAlreadyVerified
	}

	v, err := issue(*e)
	if err != nil {
		return model.PendingRequest{}, fmt.Errorf("issue credential: %w", err)
	}

	cred := v.Credential
	verifiedAt := now
	e.Verified = true
	e.Credential = &cred
	e.LoginURL = v.LoginURL
	e.VerifiedAt = &verifiedAt
	return *e, nil
}

func (r *pendingRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
