package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dom/neighbor-group/internal/config"
	"github.com/dom/neighbor-group/internal/domain"
	"github.com/dom/neighbor-group/internal/mail"
	"github.com/dom/neighbor-group/internal/observability"
	"github.com/sirupsen/logrus"
)

// RequestMeta identifies where a request came from. IP keys the error
// budgets; the rest is stored as event metadata.
type RequestMeta struct {
	IP        string
	UserAgent string
	RequestID string
}

func (m RequestMeta) metadata() map[string]interface{} {
	md := map[string]interface{}{}
	if m.UserAgent != "" {
		md["user_agent"] = m.UserAgent
	}
	if m.RequestID != "" {
		md["request_id"] = m.RequestID
	}
	return md
}

type SignupInput struct {
	Name     string
	Email    string
	Password string
}

type AuthResult struct {
	User      *domain.User
	Token     string
	Session   *BoundSession
	ExpiresAt time.Time
}

// AuthService runs the credentialed operations in the order the site
// requires: budget check, attempt, audit.
type AuthService struct {
	users    *UserDirectory
	creds    *CredentialStore
	events   *AuthEventLog
	limiter  *RateLimiter
	resets   *PasswordResetFlow
	sessions *SessionBinding
	mailer   mail.Mailer
	cfg      *config.Config
	metrics  *observability.Metrics
	log      *logrus.Logger
}

func NewAuthService(
	users *UserDirectory,
	creds *CredentialStore,
	events *AuthEventLog,
	limiter *RateLimiter,
	resets *PasswordResetFlow,
	sessions *SessionBinding,
	mailer mail.Mailer,
	cfg *config.Config,
	metrics *observability.Metrics,
	log *logrus.Logger,
) *AuthService {
	return &AuthService{
		users:    users,
		creds:    creds,
		events:   events,
		limiter:  limiter,
		resets:   resets,
		sessions: sessions,
		mailer:   mailer,
		cfg:      cfg,
		metrics:  metrics,
		log:      log,
	}
}

func (s *AuthService) Signup(ctx context.Context, meta RequestMeta, in SignupInput) (*AuthResult, error) {
	if err := s.limiter.CheckBudget(ctx, meta.IP, domain.EventSignup); err != nil {
		return nil, err
	}

	user, err := s.users.Create(ctx, NewUser{Name: in.Name, Email: in.Email, Password: in.Password})
	if err != nil {
		s.record(ctx, meta, domain.ErrorKind(domain.EventSignup), fmt.Sprintf("Signup error: %s <%s>", in.Name, in.Email))
		return nil, err
	}

	result, err := s.bind(ctx, user)
	if err != nil {
		return nil, err
	}
	s.record(ctx, meta, domain.EventSignup, fmt.Sprintf("Signup: %s <%s> (%d)", user.Name, user.Email, user.ID))
	return result, nil
}

// Login accepts an email address or a slug. Unknown users and wrong
// passwords both return ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, meta RequestMeta, identifier, password string) (*AuthResult, error) {
	if err := s.limiter.CheckBudget(ctx, meta.IP, domain.EventLogin); err != nil {
		return nil, err
	}

	failed := func() {
		s.record(ctx, meta, domain.ErrorKind(domain.EventLogin), fmt.Sprintf("Login error: %s", identifier))
	}

	user, err := s.users.ResolveLoginIdentifier(ctx, identifier)
	if err != nil {
		failed()
		if errors.Is(err, domain.ErrNotFound) {
			s.creds.EqualizeTiming(password)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.creds.Verify(password, user.PasswordHash) {
		failed()
		return nil, domain.ErrInvalidCredentials
	}

	result, err := s.bind(ctx, user)
	if err != nil {
		return nil, err
	}
	s.record(ctx, meta, domain.EventLogin, fmt.Sprintf("Login: %s", user.Email))
	return result, nil
}

func (s *AuthService) Logout(ctx context.Context, meta RequestMeta, user *domain.User, session *BoundSession) error {
	if session != nil {
		if err := s.sessions.Revoke(ctx, session.ID); err != nil {
			return fmt.Errorf("revoke session: %w", err)
		}
	}
	if user != nil {
		s.record(ctx, meta, domain.EventLogout, fmt.Sprintf("Logout: %s", user.Email))
	}
	return nil
}

// StartPasswordReset issues a ticket for the account owning email and mails
// its code. When the code cannot be sent the ticket still exists and the
// error is an *domain.UndeliverableResetError carrying its id.
func (s *AuthService) StartPasswordReset(ctx context.Context, meta RequestMeta, email string) (string, error) {
	if err := s.limiter.CheckBudget(ctx, meta.IP, domain.EventPasswordReset); err != nil {
		return "", err
	}

	failed := func() {
		s.record(ctx, meta, domain.ErrorKind(domain.EventPasswordReset), fmt.Sprintf("Password reset error: %s", email))
	}

	email = strings.TrimSpace(email)
	if email == "" {
		failed()
		return "", domain.NewValidationError("email", "Please enter an email address.")
	}
	if !strings.Contains(email, "@") {
		failed()
		return "", domain.NewValidationError("email", "Please enter a valid email address.")
	}

	user, err := s.users.LoadByKey(ctx, domain.KeyByEmail(email))
	if err != nil {
		failed()
		return "", err
	}

	ticketID, code, err := s.resets.Start(ctx, user)
	if err != nil {
		failed()
		return "", err
	}
	s.record(ctx, meta, domain.EventPasswordResetStart, fmt.Sprintf("Password reset start: %s", user.Email))

	subject := fmt.Sprintf("%s password reset", s.cfg.SiteTitle)
	body := fmt.Sprintf("Your password reset code is: %s", code)
	if err := s.mailer.Send(ctx, user.Email, subject, body); err != nil {
		s.metrics.PasswordReset("undeliverable")
		s.log.WithError(err).WithField("ticket", ticketID).Error("[AuthService.StartPasswordReset] reset code not delivered")
		return ticketID, &domain.UndeliverableResetError{TicketID: ticketID, Err: err}
	}
	return ticketID, nil
}

// VerifyPasswordReset redeems a ticket and signs its owner in so they can
// choose a new password.
func (s *AuthService) VerifyPasswordReset(ctx context.Context, meta RequestMeta, ticketID, code string) (*AuthResult, error) {
	if err := s.limiter.CheckBudget(ctx, meta.IP, domain.EventPasswordReset); err != nil {
		return nil, err
	}

	user, err := s.resets.Verify(ctx, ticketID, strings.TrimSpace(code))
	if err != nil {
		s.record(ctx, meta, domain.ErrorKind(domain.EventPasswordReset), fmt.Sprintf("Password reset code error: ticket %s", ticketID))
		return nil, err
	}

	result, err := s.bind(ctx, user)
	if err != nil {
		return nil, err
	}
	s.record(ctx, meta, domain.EventPasswordResetCodeVerified, fmt.Sprintf("Password reset code verified: %s", user.Email))
	return result, nil
}

// ChangePassword sets a new password for the signed-in user.
func (s *AuthService) ChangePassword(ctx context.Context, meta RequestMeta, user *domain.User, password, confirm string) error {
	if user == nil {
		s.record(ctx, meta, domain.ErrorKind(domain.EventPasswordReset), "Password reset error (user not found).")
		return domain.ErrUnauthenticated
	}
	if err := s.limiter.CheckBudget(ctx, meta.IP, domain.EventPasswordReset); err != nil {
		return err
	}

	var err error
	if password != confirm {
		err = domain.NewValidationError("password2", "Sorry, your passwords did not match.")
	} else {
		err = s.users.SetPassword(ctx, user, password)
	}
	if err != nil {
		s.record(ctx, meta, domain.ErrorKind(domain.EventPasswordReset), fmt.Sprintf("Password reset error (%s): %s", err, user.Email))
		return err
	}

	s.record(ctx, meta, domain.EventPasswordResetSuccess, fmt.Sprintf("Password reset success: %s", user.Email))
	return nil
}

// Authenticate resolves a session token to its user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, *BoundSession, error) {
	session, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	user, err := s.users.LoadByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil, domain.ErrUnauthenticated
		}
		return nil, nil, err
	}
	return user, session, nil
}

func (s *AuthService) bind(ctx context.Context, user *domain.User) (*AuthResult, error) {
	token, session, err := s.sessions.Bind(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		User:      user,
		Token:     token,
		Session:   session,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// record appends an audit row. A failed append is logged, not returned:
// the caller's outcome is already decided.
func (s *AuthService) record(ctx context.Context, meta RequestMeta, kind, description string) {
	if err := s.events.Record(ctx, meta.IP, kind, description, meta.metadata()); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"ip":    meta.IP,
			"event": kind,
		}).Error("[AuthService] record auth event")
	}
}
