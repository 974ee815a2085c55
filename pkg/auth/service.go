package auth

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pariksha-io/pariksha/pkg/apperr"
	"github.com/pariksha-io/pariksha/pkg/audit"
	"github.com/pariksha-io/pariksha/pkg/directory"
	"github.com/pariksha-io/pariksha/pkg/observability"
)

// DefaultMinPasswordLength is the minimum accepted new-password length
const DefaultMinPasswordLength = 8

// UserStore is the slice of the directory the service needs.
// directory.Store satisfies it.
type UserStore interface {
	GetUser(ctx context.Context, id uuid.UUID) (*directory.User, error)
	GetUserByEmail(ctx context.Context, email string) (*directory.User, error)
	GetUserByUsername(ctx context.Context, username string) (*directory.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
}

// ClientContext carries request attribution for audit events
type ClientContext struct {
	IP        string
	UserAgent string
	RequestID string
}

// LoginResult is returned on successful authentication or token refresh
type LoginResult struct {
	User         *directory.User `json:"user"`
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresIn    int64           `json:"expires_in"`
}

// Service implements the authentication flows
type Service struct {
	store             UserStore
	hasher            Hasher
	issuer            *Issuer
	recorder          audit.Recorder
	logger            *observability.Logger
	metrics           *observability.Metrics
	minPasswordLength int
}

// NewService creates an authentication service. recorder may be
// audit.NoopRecorder{} and metrics may be nil.
func NewService(store UserStore, hasher Hasher, issuer *Issuer, recorder audit.Recorder, logger *observability.Logger, metrics *observability.Metrics) *Service {
	return &Service{
		store:             store,
		hasher:            hasher,
		issuer:            issuer,
		recorder:          recorder,
		logger:            logger,
		metrics:           metrics,
		minPasswordLength: DefaultMinPasswordLength,
	}
}

// WithMinPasswordLength overrides the new-password length policy
func (s *Service) WithMinPasswordLength(n int) *Service {
	if n > 0 {
		s.minPasswordLength = n
	}
	return s
}

// Authenticate verifies credentials and issues a token pair. The identifier
// is tried as an email first, then as a username. Failed attempts against
// existing accounts are audited before the error is returned; an unknown
// identifier has no account to attribute and produces no audit record.
func (s *Service) Authenticate(ctx context.Context, identifier, password string, client ClientContext) (*LoginResult, error) {
	user, err := s.store.GetUserByEmail(ctx, identifier)
	if apperr.IsNotFound(err) {
		user, err = s.store.GetUserByUsername(ctx, identifier)
	}
	if err != nil {
		if apperr.IsNotFound(err) {
			s.countLogin("failure")
			return nil, apperr.NotFound("user not found")
		}
		return nil, err
	}

	if !user.Active {
		s.recordLoginFailure(ctx, user, client, "account is inactive")
		s.countLogin("failure")
		return nil, apperr.Validation("account is inactive")
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		s.recordLoginFailure(ctx, user, client, "invalid credentials")
		s.countLogin("failure")
		return nil, apperr.Validation("invalid credentials")
	}

	access, refresh, err := s.issuer.Pair(user)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.store.UpdateLastLogin(ctx, user.ID, now); err != nil {
		// Login already succeeded; losing the timestamp is not worth a 500
		s.logger.WithError(err).WithField("user_id", user.ID.String()).Warn("failed to record last login")
	}
	user.LastLoginAt = &now

	s.recorder.Record(ctx, &audit.AuditEvent{
		EventType:    audit.EventTypeAuthLogin,
		Status:       audit.EventStatusSuccess,
		ActorID:      &user.ID,
		ActorEmail:   user.Email,
		ActorRoles:   user.RoleNames(),
		ResourceType: audit.ResourceTypeUser,
		ResourceID:   user.ID.String(),
		IPAddress:    client.IP,
		UserAgent:    client.UserAgent,
		RequestID:    client.RequestID,
		Description:  "user logged in",
	})
	s.countLogin("success")

	return s.loginResult(user, access, refresh), nil
}

// Refresh rotates a refresh token into a new pair. The new access token is
// built from the user's current roles, so role changes and deactivations
// propagate on rotation.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	claims, err := s.issuer.Verify(refreshToken)
	if err != nil {
		s.countRefresh("failure")
		return nil, apperr.Validation("invalid or expired refresh token")
	}

	if claims.TokenType != TokenTypeRefresh {
		s.countRefresh("failure")
		return nil, apperr.Validation("not a refresh token")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		s.countRefresh("failure")
		return nil, apperr.Validation("malformed user ID in token subject")
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		s.countRefresh("failure")
		if apperr.IsNotFound(err) {
			return nil, apperr.NotFound("user not found")
		}
		return nil, err
	}

	if !user.Active {
		s.countRefresh("failure")
		return nil, apperr.Validation("account is inactive")
	}

	access, refresh, err := s.issuer.Pair(user)
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, &audit.AuditEvent{
		EventType:    audit.EventTypeAuthTokenRefresh,
		Status:       audit.EventStatusSuccess,
		ActorID:      &user.ID,
		ActorEmail:   user.Email,
		ActorRoles:   user.RoleNames(),
		ResourceType: audit.ResourceTypeUser,
		ResourceID:   user.ID.String(),
		Description:  "token refreshed",
	})
	s.countRefresh("success")

	return s.loginResult(user, access, refresh), nil
}

// ChangePassword verifies the current password and stores a hash of the new
// one.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string, client ClientContext) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if apperr.IsNotFound(err) {
			return apperr.NotFound("user not found")
		}
		return err
	}

	if len(newPassword) < s.minPasswordLength {
		s.countPasswordChange("failure")
		return apperr.Validationf("password must be at least %d characters", s.minPasswordLength)
	}

	if err := s.hasher.Compare(user.PasswordHash, currentPassword); err != nil {
		s.recorder.Record(ctx, &audit.AuditEvent{
			EventType:    audit.EventTypeAuthPasswordChangeFailed,
			Status:       audit.EventStatusFailure,
			ActorID:      &user.ID,
			ActorEmail:   user.Email,
			ActorRoles:   user.RoleNames(),
			ResourceType: audit.ResourceTypeUser,
			ResourceID:   user.ID.String(),
			IPAddress:    client.IP,
			UserAgent:    client.UserAgent,
			RequestID:    client.RequestID,
			Description:  "password change rejected",
			ErrorMessage: "current password is incorrect",
		})
		s.countPasswordChange("failure")
		return apperr.Validation("current password is incorrect")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	if err := s.store.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	s.recorder.Record(ctx, &audit.AuditEvent{
		EventType:    audit.EventTypeAuthPasswordChange,
		Status:       audit.EventStatusSuccess,
		ActorID:      &user.ID,
		ActorEmail:   user.Email,
		ActorRoles:   user.RoleNames(),
		ResourceType: audit.ResourceTypeUser,
		ResourceID:   user.ID.String(),
		IPAddress:    client.IP,
		UserAgent:    client.UserAgent,
		RequestID:    client.RequestID,
		Description:  "password changed",
	})
	s.countPasswordChange("success")

	return nil
}

// loginResult builds the response payload with the password hash cleared
func (s *Service) loginResult(user *directory.User, access, refresh string) *LoginResult {
	sanitized := *user
	sanitized.PasswordHash = ""

	return &LoginResult{
		User:         &sanitized,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.issuer.AccessTTL().Seconds()),
	}
}

func (s *Service) recordLoginFailure(ctx context.Context, user *directory.User, client ClientContext, reason string) {
	s.recorder.Record(ctx, &audit.AuditEvent{
		EventType:    audit.EventTypeAuthLoginFailed,
		Status:       audit.EventStatusFailure,
		ActorID:      &user.ID,
		ActorEmail:   user.Email,
		ActorRoles:   user.RoleNames(),
		ResourceType: audit.ResourceTypeUser,
		ResourceID:   user.ID.String(),
		IPAddress:    client.IP,
		UserAgent:    client.UserAgent,
		RequestID:    client.RequestID,
		Description:  "login failed",
		ErrorMessage: reason,
	})
}

func (s *Service) countLogin(outcome string) {
	if s.metrics != nil {
		s.metrics.LoginsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) countRefresh(outcome string) {
	if s.metrics != nil {
		s.metrics.TokenRefreshTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Service) countPasswordChange(outcome string) {
	if s.metrics != nil {
		s.metrics.PasswordChangesTotal.WithLabelValues(outcome).Inc()
	}
}
