package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/mkravets/contacts-api/app/observability/metrics"
	"github.com/mkravets/contacts-api/config"
	"github.com/mkravets/contacts-api/internal/api"
	"github.com/mkravets/contacts-api/internal/api/user"
)

var _ AuthService = (*AuthServiceImpl)(nil)

// Mailer delivers account mails. The auth service dispatches sends in the
// background; delivery failures never surface in the HTTP response.
type Mailer interface {
	SendVerificationMail(ctx context.Context, email, username, verificationURL string) error
	SendResetPasswordMail(ctx context.Context, email, username, resetToken string) error
}

// AuthService is the session lifecycle state machine:
// unregistered -> registered(unverified) -> verified -> [deleted].
type AuthService interface {
	Signup(ctx context.Context, body SignupRequest) error
	Login(ctx context.Context, email, password string) (accessToken, refreshToken string, err error)
	Refresh(ctx context.Context, refreshToken string) (string, string, error)
	Logout(ctx context.Context, refreshToken string) error
	Verify(ctx context.Context, token string) error
	ResendVerification(ctx context.Context, email string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

const mailSendTimeout = 30 * time.Second

type AuthServiceImpl struct {
	users   user.UserRepo
	tokens  TokenService
	codec   *TokenCodec
	mailer  Mailer
	baseURL string
	logger  *slog.Logger
	metrics *metrics.AppMetrics
}

func NewAuthService(
	users user.UserRepo,
	tokens TokenService,
	codec *TokenCodec,
	mailer Mailer,
	cfg *config.Config,
	logger *slog.Logger,
	appMetrics *metrics.AppMetrics,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		users:   users,
		tokens:  tokens,
		codec:   codec,
		mailer:  mailer,
		baseURL: strings.TrimRight(cfg.Server.BaseURL, "/"),
		logger:  logger,
		metrics: appMetrics,
	}
}

// Signup registers a new user with status REGISTERED and mails a verification
// link. No tokens are returned to the caller.
func (s *AuthServiceImpl) Signup(ctx context.Context, body SignupRequest) error {
	existing, err := s.users.GetByEmail(ctx, body.Email)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("This email is already signed up: %w", api.ErrConflict)
	}

	passwordHash, err := HashSecret(body.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	created, err := s.users.Create(ctx, body.Username, body.Email, passwordHash)
	if err != nil {
		return err
	}

	token, err := s.tokens.Create(ctx, api.TokenTypeVerification, created.ID)
	if err != nil {
		return err
	}
	s.countToken(ctx, api.TokenTypeVerification)
	s.metrics.SignupsTotal.Add(ctx, 1)

	s.sendVerificationMail(created.Email, created.Username, token.Token)
	return nil
}

// Login authenticates and returns a stateless access token plus a persisted
// refresh token. The invalid-credentials message is identical for an unknown
// email and a wrong password.
func (s *AuthServiceImpl) Login(ctx context.Context, email, password string) (string, string, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return "", "", err
	}
	if u == nil {
		return "", "", s.authFailure(ctx, "Invalid email or password")
	}

	if u.Status == api.UserStatusRegistered {
		return "", "", s.authFailure(ctx, "User needs to verify their account")
	}
	if u.Status == api.UserStatusDeleted {
		return "", "", s.authFailure(ctx, "User account is deleted")
	}

	if !VerifySecret(password, u.PasswordHash) {
		return "", "", s.authFailure(ctx, "Invalid email or password")
	}

	accessToken, err := s.tokens.Generate(api.TokenTypeAccess, u.ID)
	if err != nil {
		return "", "", err
	}
	refreshToken, err := s.tokens.Create(ctx, api.TokenTypeRefresh, u.ID)
	if err != nil {
		return "", "", err
	}

	s.countToken(ctx, api.TokenTypeAccess)
	s.countToken(ctx, api.TokenTypeRefresh)
	s.metrics.LoginsTotal.Add(ctx, 1)
	return accessToken, refreshToken.Token, nil
}

// Refresh rotates a refresh token: a new access/refresh pair is issued and the
// presented token is deleted. Each refresh token works exactly once.
func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	if refreshToken == "" {
		return "", "", s.authFailure(ctx, "Invalid refresh token")
	}

	payload := s.codec.Decode(refreshToken)
	stored, err := s.tokens.Get(ctx, refreshToken, "")
	if err != nil {
		return "", "", err
	}
	if stored == nil {
		return "", "", s.authFailure(ctx, "Invalid refresh token")
	}
	if payload == nil {
		// The row outlived the signature; clean it up.
		if delErr := s.tokens.Delete(ctx, refreshToken); delErr != nil {
			s.logger.WarnContext(ctx, "Failed to delete expired refresh token", slog.Any("error", delErr))
		}
		return "", "", s.authFailure(ctx, "Invalid refresh token")
	}
	if payload.TokenType != api.TokenTypeRefresh {
		return "", "", s.authFailure(ctx, "Invalid refresh token")
	}

	newAccessToken, err := s.tokens.Generate(api.TokenTypeAccess, payload.UserID)
	if err != nil {
		return "", "", err
	}
	newRefreshToken, err := s.tokens.Create(ctx, api.TokenTypeRefresh, payload.UserID)
	if err != nil {
		return "", "", err
	}

	// Rotation is not transactional with this delete; a crash in between can
	// briefly leave both tokens valid.
	if err := s.tokens.Delete(ctx, refreshToken); err != nil {
		s.logger.WarnContext(ctx, "Failed to delete rotated refresh token", slog.Any("error", err))
	}

	s.countToken(ctx, api.TokenTypeAccess)
	s.countToken(ctx, api.TokenTypeRefresh)
	return newAccessToken, newRefreshToken.Token, nil
}

// Logout invalidates the presented refresh token.
func (s *AuthServiceImpl) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return s.authFailure(ctx, "Invalid refresh token")
	}

	stored, err := s.tokens.Get(ctx, refreshToken, api.TokenTypeRefresh)
	if err != nil {
		return err
	}
	if stored == nil {
		return s.authFailure(ctx, "Invalid refresh token")
	}

	// A concurrent logout may have removed the row between Get and Delete;
	// that still counts as an invalid token, not a missing resource.
	if err := s.tokens.Delete(ctx, refreshToken); err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return s.authFailure(ctx, "Invalid refresh token")
		}
		return err
	}
	return nil
}

// Verify consumes a verification token and moves the user REGISTERED -> VERIFIED.
func (s *AuthServiceImpl) Verify(ctx context.Context, token string) error {
	payload := s.codec.Decode(token)
	if payload == nil || payload.TokenType != api.TokenTypeVerification {
		return s.authFailure(ctx, "Invalid token")
	}

	// A cryptographically valid token that was already consumed must fail the
	// same way as a forged one.
	stored, err := s.tokens.Get(ctx, token, "")
	if err != nil {
		return err
	}
	if stored == nil {
		return s.authFailure(ctx, "Invalid token")
	}

	u, err := s.users.GetByID(ctx, payload.UserID)
	if err != nil {
		return err
	}
	if u == nil {
		return fmt.Errorf("User not found: %w", api.ErrNotFound)
	}

	if u.Status != api.UserStatusRegistered {
		return fmt.Errorf("User is already verified: %w", api.ErrConflict)
	}

	status := api.UserStatusVerified
	if _, err := s.users.Update(ctx, u.ID, api.UserUpdate{Status: &status}); err != nil {
		return err
	}
	return s.tokens.Delete(ctx, token)
}

// ResendVerification invalidates all outstanding verification tokens for the
// user and issues a fresh one, so at most one stays live.
func (s *AuthServiceImpl) ResendVerification(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u == nil {
		return s.authFailure(ctx, "Invalid email")
	}

	if u.Status != api.UserStatusRegistered {
		return fmt.Errorf("User is already verified: %w", api.ErrConflict)
	}

	if err := s.invalidateTokens(ctx, u.ID, api.TokenTypeVerification); err != nil {
		return err
	}

	token, err := s.tokens.Create(ctx, api.TokenTypeVerification, u.ID)
	if err != nil {
		return err
	}
	s.countToken(ctx, api.TokenTypeVerification)

	s.sendVerificationMail(u.Email, u.Username, token.Token)
	return nil
}

// ForgotPassword issues and mails a reset token. An unknown email is a silent
// no-op so callers cannot probe which addresses exist; an unverified account
// is told to verify first.
func (s *AuthServiceImpl) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if u == nil {
		return nil
	}

	if u.Status == api.UserStatusRegistered {
		return s.authFailure(ctx, "User needs to verify their account")
	}

	if err := s.invalidateTokens(ctx, u.ID, api.TokenTypeReset); err != nil {
		return err
	}

	token, err := s.tokens.Create(ctx, api.TokenTypeReset, u.ID)
	if err != nil {
		return err
	}
	s.countToken(ctx, api.TokenTypeReset)

	s.sendResetPasswordMail(u.Email, u.Username, token.Token)
	return nil
}

// ResetPassword consumes a reset token and sets the new password.
func (s *AuthServiceImpl) ResetPassword(ctx context.Context, token, newPassword string) error {
	payload := s.codec.Decode(token)
	if payload == nil || payload.TokenType != api.TokenTypeReset {
		return s.authFailure(ctx, "Invalid token")
	}

	stored, err := s.tokens.Get(ctx, token, "")
	if err != nil {
		return err
	}
	if stored == nil {
		return s.authFailure(ctx, "Invalid token")
	}

	u, err := s.users.GetByID(ctx, payload.UserID)
	if err != nil {
		return err
	}
	if u == nil {
		return fmt.Errorf("User not found: %w", api.ErrNotFound)
	}

	passwordHash, err := HashSecret(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if _, err := s.users.Update(ctx, u.ID, api.UserUpdate{PasswordHash: &passwordHash}); err != nil {
		return err
	}
	return s.tokens.Delete(ctx, token)
}

// invalidateTokens deletes every stored token of the given type for the user.
func (s *AuthServiceImpl) invalidateTokens(ctx context.Context, userID int64, tokenType api.TokenType) error {
	outstanding, err := s.tokens.List(ctx, userID, tokenType)
	if err != nil {
		return err
	}
	if len(outstanding) == 0 {
		return nil
	}

	tokenStrings := make([]string, 0, len(outstanding))
	for _, t := range outstanding {
		tokenStrings = append(tokenStrings, t.Token)
	}
	_, err = s.tokens.DeleteMany(ctx, tokenStrings)
	return err
}

func (s *AuthServiceImpl) verificationURL(token string) string {
	return fmt.Sprintf("%s/api/auth/verify/%s", s.baseURL, token)
}

func (s *AuthServiceImpl) sendVerificationMail(email, username, token string) {
	verificationURL := s.verificationURL(token)
	s.sendAsync(email, func(ctx context.Context) error {
		return s.mailer.SendVerificationMail(ctx, email, username, verificationURL)
	})
}

func (s *AuthServiceImpl) sendResetPasswordMail(email, username, token string) {
	s.sendAsync(email, func(ctx context.Context) error {
		return s.mailer.SendResetPasswordMail(ctx, email, username, token)
	})
}

// sendAsync dispatches mail delivery decoupled from the request lifecycle.
func (s *AuthServiceImpl) sendAsync(email string, send func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mailSendTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			s.logger.Error("Mail delivery failed",
				slog.String("email", email), slog.Any("error", err))
		}
	}()
}

func (s *AuthServiceImpl) authFailure(ctx context.Context, detail string) error {
	s.metrics.AuthFailuresTotal.Add(ctx, 1)
	return fmt.Errorf("%s: %w", detail, api.ErrUnauthenticated)
}

func (s *AuthServiceImpl) countToken(ctx context.Context, tokenType api.TokenType) {
	s.metrics.TokensIssuedTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("type", string(tokenType))))
}
