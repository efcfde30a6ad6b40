package model

import (
	"time"
)

// PendingRequest represents one outstanding reverse-OTP challenge
type PendingRequest struct {
	ID          string
	Code        string
	PhoneNumber string
	UserID      string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	// Seq is assigned by the store on insert and orders entries earliest-created first.
	Seq uint64

	Verified   bool
	Credential *Credential
	LoginURL   string
	VerifiedAt *time.Time
}

// IsExpired reports whether the request is past its expiry at now
func (r PendingRequest) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Credential is a signed bearer token issued on verification
type Credential struct {
	Token     string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Verification is the result of issuing credentials for a matched request
type Verification struct {
	Credential Credential
	LoginURL   string
}

// VerificationEvent is the audit record written for every verified request
type VerificationEvent struct {
	RequestID           string
	UserID              string
	PhoneNumber         string
	Sender              string
	TokenID             string
	VerifiedAt          time.Time
	CredentialExpiresAt time.Time
}
