package service

import (
	"github.com/dom/neighbor-group/internal/config"
	"github.com/dom/neighbor-group/internal/mail"
	"github.com/dom/neighbor-group/internal/observability"
	"github.com/dom/neighbor-group/internal/repository"
	"github.com/sirupsen/logrus"
)

type Services struct {
	Credentials *CredentialStore
	Users       *UserDirectory
	Events      *AuthEventLog
	Limiter     *RateLimiter
	Resets      *PasswordResetFlow
	Sessions    *SessionBinding
	Membership  *MembershipAuthorizer
	Groups      *GroupService
	Auth        *AuthService
}

func NewServices(repos *repository.Repositories, cfg *config.Config, sessionKey []byte, mailer mail.Mailer, metrics *observability.Metrics, log *logrus.Logger) *Services {
	creds := NewCredentialStore()
	users := NewUserDirectory(repos.User, creds, metrics)
	events := NewAuthEventLog(repos.AuthLog, metrics)
	limiter := NewRateLimiter(events, metrics, log)
	resets := NewPasswordResetFlow(repos.PasswordReset, users, metrics)
	sessions := NewSessionBinding(repos.Session, sessionKey, cfg.SessionTTL)
	membership := NewMembershipAuthorizer(repos.Group, repos.GroupMember)

	return &Services{
		Credentials: creds,
		Users:       users,
		Events:      events,
		Limiter:     limiter,
		Resets:      resets,
		Sessions:    sessions,
		Membership:  membership,
		Groups:      NewGroupService(repos.Group, repos.GroupMember, repos.Message, membership),
		Auth:        NewAuthService(users, creds, events, limiter, resets, sessions, mailer, cfg, metrics, log),
	}
}
