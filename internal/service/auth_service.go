package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/spec-kit/talep-board/internal/auth"
	"github.com/spec-kit/talep-board/internal/config"
	"github.com/spec-kit/talep-board/internal/domain"
	"github.com/spec-kit/talep-board/internal/repository"
	"github.com/spec-kit/talep-board/pkg/util"
)

const minPasswordLen = 8

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Email       string
	DisplayName string
	OrgUnit     string
	Title       string
	Password    string
}

// AuthService registers accounts, verifies logins and derives the acting
// identity's roles.
type AuthService struct {
	accounts     repository.LoginRepository
	tokens       *auth.TokenManager
	bcryptCost   int
	monitorEmail string
	logger       *zap.Logger
}

// NewAuthService wires the service.
func NewAuthService(accounts repository.LoginRepository, tokens *auth.TokenManager, authCfg config.AuthConfig, boardCfg config.BoardConfig, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		accounts:     accounts,
		tokens:       tokens,
		bcryptCost:   authCfg.BcryptCost,
		monitorEmail: boardCfg.MonitorEmail,
		logger:       logger,
	}
}

// Register creates an account with a bcrypt-hashed password.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.Account, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, util.NewValidationError("a valid email is required", nil)
	}
	name := strings.TrimSpace(input.DisplayName)
	if name == "" {
		return nil, util.NewValidationError("display name is required", nil)
	}
	if len(input.Password) < minPasswordLen {
		return nil, util.NewValidationError("password too short", map[string]any{"min": minPasswordLen})
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, util.NewInternalError(err)
	}

	account := &domain.Account{
		Email:        email,
		DisplayName:  name,
		OrgUnit:      strings.TrimSpace(input.OrgUnit),
		Title:        strings.TrimSpace(input.Title),
		PasswordHash: hash,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, util.NewConflict("email already registered", map[string]any{"email": email})
		}
		return nil, util.MapError(err)
	}
	s.logger.Info("account registered", zap.String("email", email))
	return account, nil
}

// Login verifies credentials and returns a signed token plus the identity
// it carries. Unknown emails and bad passwords are indistinguishable to the
// caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *domain.Identity, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil, util.NewUnauthorized("invalid credentials")
		}
		return "", nil, util.MapError(err)
	}
	if !auth.CheckPassword(account.PasswordHash, password) {
		return "", nil, util.NewUnauthorized("invalid credentials")
	}

	identity := s.IdentityFor(account)
	token, err := s.tokens.Issue(identity)
	if err != nil {
		return "", nil, util.NewInternalError(err)
	}
	s.logger.Info("login succeeded",
		zap.String("email", email),
		zap.Bool("editor", identity.Editor),
		zap.Bool("monitor", identity.Monitor))
	return token, &identity, nil
}

// IdentityFor derives roles from the account row: members of the process
// improvement unit may edit the board, the configured monitor email gets
// the team-monitor view.
func (s *AuthService) IdentityFor(account *domain.Account) domain.Identity {
	return domain.Identity{
		Email:       account.Email,
		DisplayName: account.DisplayName,
		OrgUnit:     account.OrgUnit,
		Title:       account.Title,
		Editor:      domain.TurkishUpper(account.OrgUnit) == domain.EditorOrgUnit,
		Monitor:     s.monitorEmail != "" && strings.EqualFold(account.Email, s.monitorEmail),
	}
}

// ttlOrDefault guards against a zero token TTL in misconfigured deployments.
func ttlOrDefault(minutes int) time.Duration {
	if minutes <= 0 {
		return 8 * time.Hour
	}
	return time.Duration(minutes) * time.Minute
}

// NewTokenManagerFromConfig builds the token manager the API and this
// service share.
func NewTokenManagerFromConfig(cfg config.AuthConfig) *auth.TokenManager {
	return auth.NewTokenManager(cfg.JWTSecret, ttlOrDefault(cfg.AccessTokenTTLMinutes))
}
