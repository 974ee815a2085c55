package sso

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pariksha-io/pariksha/pkg/apperr"
	"github.com/pariksha-io/pariksha/pkg/audit"
	"github.com/pariksha-io/pariksha/pkg/auth"
	"github.com/pariksha-io/pariksha/pkg/directory"
	"github.com/pariksha-io/pariksha/pkg/observability"
)

// DefaultRole is assigned to users provisioned from SSO when no role is
// configured.
const DefaultRole = directory.RoleStudent

// DirectoryStore is the directory slice the SSO service needs.
// directory.Store satisfies it.
type DirectoryStore interface {
	GetUserByEmail(ctx context.Context, email string) (*directory.User, error)
	GetRoleByName(ctx context.Context, name string) (*directory.Role, error)
	CreateUser(ctx context.Context, user *directory.User) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Service turns a verified federated identity into a local login. Unknown
// verified emails are provisioned just in time with the default role and a
// password nobody knows; known emails log in with their existing account.
type Service struct {
	store       DirectoryStore
	hasher      auth.Hasher
	issuer      *auth.Issuer
	defaultRole string
	recorder    audit.Recorder
	logger      *observability.Logger
	metrics     *observability.Metrics
}

// NewService creates an SSO login service. recorder may be
// audit.NoopRecorder{} and metrics may be nil.
func NewService(store DirectoryStore, hasher auth.Hasher, issuer *auth.Issuer, defaultRole string, recorder audit.Recorder, logger *observability.Logger, metrics *observability.Metrics) *Service {
	if defaultRole == "" {
		defaultRole = DefaultRole
	}
	return &Service{
		store:       store,
		hasher:      hasher,
		issuer:      issuer,
		defaultRole: defaultRole,
		recorder:    recorder,
		logger:      logger,
		metrics:     metrics,
	}
}

// Login completes a federated login for the asserted identity, provisioning
// the user on first sight. Returns the same token pair as a password login.
func (s *Service) Login(ctx context.Context, identity *Identity, client auth.ClientContext) (*auth.LoginResult, error) {
	if identity.Email == "" {
		s.count(identity.Provider, "failure")
		return nil, apperr.Validation("identity provider did not assert an email")
	}
	if !identity.EmailVerified {
		s.count(identity.Provider, "failure")
		return nil, apperr.Validation("email not verified by identity provider")
	}

	user, err := s.store.GetUserByEmail(ctx, identity.Email)
	if apperr.IsNotFound(err) {
		user, err = s.provision(ctx, identity, client)
	}
	if err != nil {
		s.count(identity.Provider, "failure")
		return nil, err
	}

	if !user.Active {
		s.recorder.Record(ctx, &audit.AuditEvent{
			EventType:    audit.EventTypeSSOLogin,
			Status:       audit.EventStatusFailure,
			ActorID:      &user.ID,
			ActorEmail:   user.Email,
			ActorRoles:   user.RoleNames(),
			ResourceType: audit.ResourceTypeUser,
			ResourceID:   user.ID.String(),
			IPAddress:    client.IP,
			UserAgent:    client.UserAgent,
			RequestID:    client.RequestID,
			Description:  "federated login rejected",
			ErrorMessage: "account is inactive",
			Metadata:     map[string]interface{}{"provider": identity.Provider},
		})
		s.count(identity.Provider, "failure")
		return nil, apperr.Validation("account is inactive")
	}

	access, refresh, err := s.issuer.Pair(user)
	if err != nil {
		s.count(identity.Provider, "failure")
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.store.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.WithError(err).WithField("user_id", user.ID.String()).Warn("failed to record last login")
	}
	user.LastLoginAt = &now

	s.recorder.Record(ctx, &audit.AuditEvent{
		EventType:    audit.EventTypeSSOLogin,
		Status:       audit.EventStatusSuccess,
		ActorID:      &user.ID,
		ActorEmail:   user.Email,
		ActorRoles:   user.RoleNames(),
		ResourceType: audit.ResourceTypeUser,
		ResourceID:   user.ID.String(),
		IPAddress:    client.IP,
		UserAgent:    client.UserAgent,
		RequestID:    client.RequestID,
		Description:  "user logged in via " + identity.Provider,
		Metadata:     map[string]interface{}{"provider": identity.Provider, "subject": identity.Subject},
	})
	s.count(identity.Provider, "success")

	sanitized := *user
	sanitized.PasswordHash = ""
	return &auth.LoginResult{
		User:         &sanitized,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.issuer.AccessTTL().Seconds()),
	}, nil
}

// provision creates an account for a first-time federated login
func (s *Service) provision(ctx context.Context, identity *Identity, client auth.ClientContext) (*directory.User, error) {
	// %v, not %w: a missing default role is server misconfiguration and
	// must surface as a 500, not as the store's NotFound.
	role, err := s.store.GetRoleByName(ctx, s.defaultRole)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve default role %q: %v", s.defaultRole, err)
	}

	// The account authenticates through the provider only; the password is
	// random and discarded, so it can never be used to log in.
	passwordHash, err := s.unusablePassword()
	if err != nil {
		return nil, err
	}

	username := identity.Username
	if username == "" {
		username = identity.Email
	}
	name := identity.Name
	if name == "" {
		name = strings.SplitN(identity.Email, "@", 2)[0]
	}

	user := &directory.User{
		Email:         identity.Email,
		Username:      username,
		Name:          name,
		PasswordHash:  passwordHash,
		Active:        true,
		EmailVerified: true,
		Roles:         []directory.Role{*role},
	}

	err = s.store.CreateUser(ctx, user)
	if apperr.IsAlreadyExists(err) && username != identity.Email {
		// Preferred username taken by someone else; the email is unique
		user.Username = identity.Email
		err = s.store.CreateUser(ctx, user)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to provision user: %w", err)
	}

	s.recorder.Record(ctx, &audit.AuditEvent{
		EventType:    audit.EventTypeSSOUserProvisioned,
		Status:       audit.EventStatusSuccess,
		ActorID:      &user.ID,
		ActorEmail:   user.Email,
		ActorRoles:   user.RoleNames(),
		ResourceType: audit.ResourceTypeUser,
		ResourceID:   user.ID.String(),
		IPAddress:    client.IP,
		UserAgent:    client.UserAgent,
		RequestID:    client.RequestID,
		Description:  "user provisioned from " + identity.Provider,
		Metadata:     map[string]interface{}{"provider": identity.Provider, "subject": identity.Subject},
	})
	s.logger.WithFields(map[string]interface{}{
		"user_id":  user.ID.String(),
		"provider": identity.Provider,
		"role":     s.defaultRole,
	}).Info("provisioned user from federated login")

	return user, nil
}

func (s *Service) unusablePassword() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate password: %w", err)
	}
	hash, err := s.hasher.Hash(base64.RawURLEncoding.EncodeToString(raw))
	if err != nil {
		return "", err
	}
	return hash, nil
}

func (s *Service) count(provider, outcome string) {
	if s.metrics == nil {
		return
	}
	if provider == "" {
		provider = "unknown"
	}
	s.metrics.SSOLoginsTotal.WithLabelValues(provider, outcome).Inc()
}
