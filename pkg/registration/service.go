package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultRequestTimeout = 10 * time.Second

// Option configures a Service.
type Option func(*Service)

// WithRequestTimeout bounds each background registration call.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithResultHook registers an observer for finished attempts.
// The hook runs on the background goroutine.
func WithResultHook(hook func(Result)) Option {
	return func(s *Service) {
		s.onResult = hook
	}
}

// Service turns token rotations into fire-and-forget gateway registrations.
type Service struct {
	identity IdentityResolver
	gateway  Gateway
	timeout  time.Duration
	onResult func(Result)
	logger   *slog.Logger

	inflight sync.WaitGroup
}

// New creates a Service. The identity resolver is consulted on every event.
func New(identity IdentityResolver, gateway Gateway, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		identity: identity,
		gateway:  gateway,
		timeout:  defaultRequestTimeout,
		logger:   logger.With("component", "TokenRegistration"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnTokenRotated handles a platform token rotation. It resolves the signed-in user
// and, when one exists, starts exactly one background registration call.
func (s *Service) OnTokenRotated(token DeviceToken) Outcome {
	if !token.Valid() {
		s.logger.Warn("Ignoring rotation with empty token")
		return OutcomeInvalidToken
	}

	userID, ok, err := s.resolveIdentity()
	if err != nil {
		s.logger.Error("Failed to read local identity; registration skipped", "err", err)
		return OutcomeIdentityUnavailable
	}
	if !ok {
		s.logger.Info("No signed-in user; token registration deferred")
		return OutcomeSkippedNoIdentity
	}

	return s.dispatch(userID, token)
}

// RegisterFor registers token for an explicitly supplied user, e.g. right after sign-in.
func (s *Service) RegisterFor(userID string, token DeviceToken) Outcome {
	if !token.Valid() {
		s.logger.Warn("Ignoring registration with empty token", "user_id", userID)
		return OutcomeInvalidToken
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		s.logger.Info("Registration requested without a user; skipped")
		return OutcomeSkippedNoIdentity
	}
	return s.dispatch(userID, token)
}

// Wait blocks until every background call has finished or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) resolveIdentity() (userID string, ok bool, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	userID, ok, err = s.identity.CurrentUserID(ctx)
	if err != nil {
		return "", false, err
	}
	userID = strings.TrimSpace(userID)
	return userID, ok && userID != "", nil
}

func (s *Service) dispatch(userID string, token DeviceToken) Outcome {
	req := RegistrationRequest{UserID: userID, FCMToken: token.Value}
	requestID := uuid.NewString()

	attrs := []any{"request_id", requestID, "user_id", userID}
	if !token.IssuedAt.IsZero() {
		attrs = append(attrs, "token_age", time.Since(token.IssuedAt).Round(time.Millisecond))
	}
	s.logger.Debug("Dispatching token registration", attrs...)

	s.inflight.Add(1)
	go s.send(requestID, req)

	return OutcomeDispatched
}

func (s *Service) send(requestID string, req RegistrationRequest) {
	defer s.inflight.Done()

	start := time.Now()
	result := Result{RequestID: requestID, Request: req}
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("registration panicked: %v", r)
		}
		result.Duration = time.Since(start)
		s.report(result)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	result.Err = s.gateway.Register(ctx, req)
}

func (s *Service) report(result Result) {
	log := s.logger.With(
		"request_id", result.RequestID,
		"user_id", result.Request.UserID,
		"duration", result.Duration,
	)

	var regErr *Error
	switch {
	case result.Err == nil:
		log.Info("Token registered with gateway")
	case errors.As(result.Err, &regErr) && regErr.Kind == KindGatewayRejected:
		log.Error("Gateway rejected token registration", "status", regErr.StatusCode, "body", regErr.Body)
	case errors.As(result.Err, &regErr):
		log.Error("Token registration failed", "kind", regErr.Kind.String(), "err", regErr.Err)
	default:
		log.Error("Token registration failed", "err", result.Err)
	}

	if s.onResult != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("Result hook panicked", "panic", r)
				}
			}()
			s.onResult(result)
		}()
	}
}
