package auth

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/signalix/reverseotp/internal/logging"
	"github.com/signalix/reverseotp/internal/model"
	"github.com/signalix/reverseotp/internal/repo"
)

const (
	rejectionMessage = "Invalid or expired OTP code. Please request a new OTP."
	failureMessage   = "An error occurred while processing your OTP. Please try again."
	auditTimeout     = 5 * time.Second
)

// Notifier delivers plain-text messages to a user over the messaging channel
type Notifier interface {
	Send(ctx context.Context, to, text string) error
}

// Outcome classifies what an inbound message led to
type Outcome int

const (
	// OutcomeNoCode means the message carried no 6-digit code and was ignored.
	OutcomeNoCode Outcome = iota
	// OutcomeRejected means no live request matched and a rejection was sent.
	OutcomeRejected
	// OutcomeVerified means a request was verified and credentials were sent.
	OutcomeVerified
	// OutcomeFailed means a request matched but could not be verified because of an internal error.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoCode:
		return "no_code"
	case OutcomeRejected:
		return "rejected"
	case OutcomeVerified:
		return "verified"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// InboundResult reports how an inbound message was handled.
// NotifyErr is set when the reply could not be delivered; it never undoes a verification.
type InboundResult struct {
	Outcome   Outcome
	RequestID string
	NotifyErr error
}

// VerifierOptions configures a Verifier
type VerifierOptions struct {
	LoginBaseURL string
	// EnforceSenderMatch only lets a code verify a request created for the sending phone number.
	EnforceSenderMatch bool
}

// Verifier matches inbound messages against pending requests and performs the pending -> verified transition
type Verifier struct {
	pending  repo.PendingRepo
	issuer   *Issuer
	notifier Notifier
	audit    repo.AuditRepo
	opts     VerifierOptions
	logger   *zap.Logger
}

// NewVerifier creates a new Verifier
func NewVerifier(
	pending repo.PendingRepo,
	issuer *Issuer,
	notifier Notifier,
	audit repo.AuditRepo,
	opts VerifierOptions,
	logger *zap.Logger,
) *Verifier {
	if audit == nil {
		audit = repo.NewNopAuditRepo()
	}
	return &Verifier{
		pending:  pending,
		issuer:   issuer,
		notifier: notifier,
		audit:    audit,
		opts:     opts,
		logger:   logger,
	}
}

// OnInboundMessage handles one (sender, text) pair received from the messaging channel.
func (v *Verifier) OnInboundMessage(ctx context.Context, sender, text string, now time.Time) InboundResult {
	log := v.logger.With(logging.Phone("sender", sender))

	code, ok := ExtractCode(text)
	if !ok {
		log.Debug("no otp found in message")
		return InboundResult{Outcome: OutcomeNoCode}
	}

	match, ok := FindByCode(code, v.candidates(sender), now)
	if !ok {
		if v.opts.EnforceSenderMatch {
			if other, found := FindByCode(code, v.pending.All(), now); found {
				log.Warn("otp matched a request registered to a different phone",
					zap.String("request_id", other.ID),
					logging.Phone("registered_phone", other.PhoneNumber),
				)
			}
		}
		log.Info("no matching otp found or otp expired")
		return v.reject(ctx, sender, "")
	}

	verified, err := v.pending.MarkVerified(match.ID, now, func(req model.PendingRequest) (model.Verification, error) {
		cred, err := v.issuer.Issue(req.UserID, req.ID, now)
		if err != nil {
			return model.Verification{}, err
		}
		loginURL, err := LoginURL(cred.Token, v.opts.LoginBaseURL)
		if err != nil {
			return model.Verification{}, err
		}
		return model.Verification{Credential: cred, LoginURL: loginURL}, nil
	})
	if err != nil {
		// Lost a race with another message, or the entry expired between match and commit.
		if errors.Is(err, repo.ErrAlreadyVerified) || errors.Is(err, repo.ErrExpired) || errors.Is(err, repo.ErrNotFound) {
			log.Info("matched request is no longer pending", zap.String("request_id", match.ID), zap.Error(err))
			return v.reject(ctx, sender, match.ID)
		}
		log.Error("failed to verify request", zap.String("request_id", match.ID), zap.Error(err))
		return v.reply(ctx, sender, match.ID, OutcomeFailed, failureMessage)
	}

	log.Info("otp verified", zap.String("request_id", verified.ID), zap.String("user_id", verified.UserID))
	v.recordAudit(ctx, verified, sender)

	res := InboundResult{Outcome: OutcomeVerified, RequestID: verified.ID}
	if err := v.notifier.Send(ctx, sender, successMessage(verified)); err != nil {
		log.Error("failed to send login credentials", zap.String("request_id", verified.ID), zap.Error(err))
		res.NotifyErr = fmt.Errorf("notify %s: %w", verified.ID, err)
		return res
	}
	log.Info("sent login credentials", zap.String("request_id", verified.ID))
	return res
}

// candidates yields the entries a code from sender may verify.
func (v *Verifier) candidates(sender string) iter.Seq[model.PendingRequest] {
	all := v.pending.All()
	if !v.opts.EnforceSenderMatch {
		return all
	}
	return func(yield func(model.PendingRequest) bool) {
		for e := range all {
			if SamePhone(e.PhoneNumber, sender) && !yield(e) {
				return
			}
		}
	}
}

func (v *Verifier) reject(ctx context.Context, sender, requestID string) InboundResult {
	return v.reply(ctx, sender, requestID, OutcomeRejected, rejectionMessage)
}

func (v *Verifier) reply(ctx context.Context, sender, requestID string, outcome Outcome, text string) InboundResult {
	res := InboundResult{Outcome: outcome, RequestID: requestID}
	if err := v.notifier.Send(ctx, sender, text); err != nil {
		v.logger.Error("failed to send reply", logging.Phone("sender", sender), zap.String("outcome", outcome.String()), zap.Error(err))
		res.NotifyErr = fmt.Errorf("notify %s: %w", outcome, err)
	}
	return res
}

func (v *Verifier) recordAudit(ctx context.Context, req model.PendingRequest, sender string) {
	ev := model.VerificationEvent{
		RequestID:   req.ID,
		UserID:      req.UserID,
		PhoneNumber: req.PhoneNumber,
		Sender:      sender,
	}
	if req.VerifiedAt != nil {
		ev.VerifiedAt = *req.VerifiedAt
	}
	if req.Credential != nil {
		ev.TokenID = req.Credential.TokenID
		ev.CredentialExpiresAt = req.Credential.ExpiresAt
	}

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditTimeout)
	defer cancel()
	if err := v.audit.RecordVerification(auditCtx, ev); err != nil {
		v.logger.Error("failed to record verification", zap.String("request_id", req.ID), zap.Error(err))
	}
}

func successMessage(req model.PendingRequest) string {
	var b strings.Builder
	b.WriteString("OTP verified successfully!\n\n")
	fmt.Fprintf(&b, "Login URL: %s\n\n", req.LoginURL)
	if req.Credential != nil {
		fmt.Fprintf(&b, "Bearer Token: %s\n\n", req.Credential.Token)
		fmt.Fprintf(&b, "Token expires in %s", HumanDuration(req.Credential.ExpiresAt.Sub(req.Credential.IssuedAt)))
	}
	return b.String()
}

// HumanDuration renders whole hours or minutes as "5 minutes", "24 hours".
func HumanDuration(d time.Duration) string {
	if d%time.Hour == 0 {
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	}
	if d%time.Minute == 0 {
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	}
	return d.String()
}

// SamePhone compares phone numbers by their digits only, so "+1 (555) 123-4567" equals "15551234567".
func SamePhone(a, b string) bool {
	da, db := digits(a), digits(b)
	return da != "" && da == db
}

func digits(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if isDigit(s[i]) {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
