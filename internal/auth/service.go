package auth

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/signalix/reverseotp/internal/logging"
	"github.com/signalix/reverseotp/internal/model"
	"github.com/signalix/reverseotp/internal/repo"
)

const defaultRequestTTL = 5 * time.Minute

// ErrInvalidArgument is returned when a required field is missing or malformed
var ErrInvalidArgument = errors.New("invalid argument")

// CreatedRequest is returned to the caller of CreateRequest
type CreatedRequest struct {
	RequestID string
	Code      string
	Message   string
	ExpiresAt time.Time
	ExpiresIn time.Duration
}

// Status is the pollable state of a request
type Status struct {
	RequestID  string
	Verified   bool
	ExpiresAt  time.Time
	LoginURL   string
	Credential string
	VerifiedAt *time.Time
}

type createRequestInput struct {
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	UserID      string `json:"userId" validate:"required"`
}

// Service implements the externally facing request API: create a challenge, poll it
type Service struct {
	pending  repo.PendingRepo
	validate *validator.Validate
	ttl      time.Duration
	logger   *zap.Logger
}

// NewService creates a new request service. A zero ttl falls back to 5 minutes.
func NewService(pending repo.PendingRepo, ttl time.Duration, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = defaultRequestTTL
	}
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Service{
		pending:  pending,
		validate: validate,
		ttl:      ttl,
		logger:   logger,
	}
}

// CreateRequest validates input, stores a new pending request and returns the code the user must send.
func (s *Service) CreateRequest(ctx context.Context, phoneNumber, userID string, now time.Time) (CreatedRequest, error) {
	in := createRequestInput{
		PhoneNumber: strings.TrimSpace(phoneNumber),
		UserID:      strings.TrimSpace(userID),
	}
	if err := s.validate.StructCtx(ctx, in); err != nil {
		return CreatedRequest{}, validationError(err)
	}

	code, err := GenerateCode()
	if err != nil {
		return CreatedRequest{}, err
	}

	req := model.PendingRequest{
		Code:        code,
		PhoneNumber: in.PhoneNumber,
		UserID:      in.UserID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}

	// A duplicate id is practically impossible with 128 random bits; retry once before giving up.
	for attempt := 0; ; attempt++ {
		if req.ID, err = GenerateRequestID(); err != nil {
			return CreatedRequest{}, err
		}
		err = s.pending.Put(req)
		if err == nil {
			break
		}
		if !errors.Is(err, repo.ErrDuplicateID) || attempt > 0 {
			return CreatedRequest{}, fmt.Errorf("store request: %w", err)
		}
	}

	if swept := s.pending.SweepExpired(now); swept > 0 {
		s.logger.Debug("swept expired requests", zap.Int("count", swept))
	}

	s.logger.Info("reverse otp requested",
		zap.String("request_id", req.ID),
		logging.Phone("phone", req.PhoneNumber),
		zap.Time("expires_at", req.ExpiresAt),
	)

	return CreatedRequest{
		RequestID: req.ID,
		Code:      code,
		Message:   fmt.Sprintf("Please send this OTP code via WhatsApp to verify your login: %s", code),
		ExpiresAt: req.ExpiresAt,
		ExpiresIn: s.ttl,
	}, nil
}

// GetStatus returns the state of a request. An expired request is evicted and reported as repo.ErrExpired;
// later calls for the same id return repo.ErrNotFound.
func (s *Service) GetStatus(ctx context.Context, requestID string, now time.Time) (Status, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return Status{}, fmt.Errorf("%w: requestId is required", ErrInvalidArgument)
	}

	req, err := s.pending.Get(requestID)
	if err != nil {
		return Status{}, err
	}
	if req.IsExpired(now) {
		s.pending.Delete(requestID)
		return Status{}, repo.ErrExpired
	}

	st := Status{
		RequestID: req.ID,
		Verified:  req.Verified,
		ExpiresAt: req.ExpiresAt,
	}
	if req.Verified {
		st.LoginURL = req.LoginURL
		st.VerifiedAt = req.VerifiedAt
		if req.Credential != nil {
			st.Credential = req.Credential.Token
		}
	}
	return st, nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return fmt.Errorf("%w: %s required", ErrInvalidArgument, strings.Join(fields, " and "))
}
