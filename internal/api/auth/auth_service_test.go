package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mkravets/contacts-api/app/observability/metrics"
	"github.com/mkravets/contacts-api/internal/api"
)

// MockUserRepo is a mock implementation of the user.UserRepo interface.
type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, username, email, passwordHash string) (*api.User, error) {
	args := m.Called(ctx, username, email, passwordHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.User), args.Error(1)
}

func (m *MockUserRepo) GetByEmail(ctx context.Context, email string) (*api.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.User), args.Error(1)
}

func (m *MockUserRepo) GetByID(ctx context.Context, id int64) (*api.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.User), args.Error(1)
}

func (m *MockUserRepo) Update(ctx context.Context, id int64, patch api.UserUpdate) (*api.User, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.User), args.Error(1)
}

// MockTokenService is a mock implementation of the TokenService interface.
type MockTokenService struct {
	mock.Mock
}

func (m *MockTokenService) Generate(tokenType api.TokenType, userID int64) (string, error) {
	args := m.Called(tokenType, userID)
	return args.String(0), args.Error(1)
}

func (m *MockTokenService) Create(ctx context.Context, tokenType api.TokenType, userID int64) (*api.Token, error) {
	args := m.Called(ctx, tokenType, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.Token), args.Error(1)
}

func (m *MockTokenService) Get(ctx context.Context, token string, tokenType api.TokenType) (*api.Token, error) {
	args := m.Called(ctx, token, tokenType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.Token), args.Error(1)
}

func (m *MockTokenService) GetOrFail(ctx context.Context, token string) (*api.Token, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.Token), args.Error(1)
}

func (m *MockTokenService) Delete(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockTokenService) DeleteMany(ctx context.Context, tokens []string) (int64, error) {
	args := m.Called(ctx, tokens)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTokenService) List(ctx context.Context, userID int64, tokenType api.TokenType) ([]api.Token, error) {
	args := m.Called(ctx, userID, tokenType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]api.Token), args.Error(1)
}

// recordingMailer captures outbound mail so tests can wait for the async send.
type recordingMailer struct {
	mu       sync.Mutex
	sent     chan string
	lastURL  string
	lastCode string
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{sent: make(chan string, 4)}
}

func (m *recordingMailer) SendVerificationMail(ctx context.Context, email, username, verificationURL string) error {
	m.mu.Lock()
	m.lastURL = verificationURL
	m.mu.Unlock()
	m.sent <- email
	return nil
}

func (m *recordingMailer) SendResetPasswordMail(ctx context.Context, email, username, resetToken string) error {
	m.mu.Lock()
	m.lastCode = resetToken
	m.mu.Unlock()
	m.sent <- email
	return nil
}

func (m *recordingMailer) waitForSend(t *testing.T) string {
	t.Helper()
	select {
	case email := <-m.sent:
		return email
	case <-time.After(2 * time.Second):
		t.Fatal("expected a mail send that never happened")
		return ""
	}
}

type authServiceFixture struct {
	service *AuthServiceImpl
	users   *MockUserRepo
	tokens  *MockTokenService
	mailer  *recordingMailer
	codec   *TokenCodec
}

func newAuthServiceFixture(t *testing.T) *authServiceFixture {
	t.Helper()

	cfg := testCodecConfig()
	cfg.Server.BaseURL = "https://contacts.example.com"

	appMetrics, err := metrics.NewAppMetrics()
	require.NoError(t, err)

	users := new(MockUserRepo)
	tokens := new(MockTokenService)
	mailer := newRecordingMailer()
	codec := NewTokenCodec(cfg)

	logger := slog.New(slog.DiscardHandler)
	service := NewAuthService(users, tokens, codec, mailer, cfg, logger, appMetrics)

	return &authServiceFixture{
		service: service,
		users:   users,
		tokens:  tokens,
		mailer:  mailer,
		codec:   codec,
	}
}

func verifiedUser(id int64, email, password string) *api.User {
	hash, _ := HashSecret(password)
	return &api.User{
		ID:           id,
		Username:     "testuser",
		Email:        email,
		PasswordHash: hash,
		Status:       api.UserStatusVerified,
		Role:         api.UserRoleUser,
	}
}

func TestAuthService_Signup(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		body := SignupRequest{Username: "testuser", Email: "new@example.com", Password: "password123"}

		created := &api.User{ID: 1, Username: "testuser", Email: "new@example.com", Status: api.UserStatusRegistered}
		f.users.On("GetByEmail", ctx, "new@example.com").Return(nil, nil).Once()
		f.users.On("Create", ctx, "testuser", "new@example.com", mock.AnythingOfType("string")).Return(created, nil).Once()
		f.tokens.On("Create", ctx, api.TokenTypeVerification, int64(1)).
			Return(&api.Token{Token: "verification-token", Type: api.TokenTypeVerification, UserID: 1}, nil).Once()

		err := f.service.Signup(ctx, body)
		require.NoError(t, err)

		assert.Equal(t, "new@example.com", f.mailer.waitForSend(t))
		assert.Equal(t, "https://contacts.example.com/api/auth/verify/verification-token", f.mailer.lastURL)
		f.users.AssertExpectations(t)
		f.tokens.AssertExpectations(t)
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		existing := verifiedUser(1, "taken@example.com", "irrelevant")
		f.users.On("GetByEmail", ctx, "taken@example.com").Return(existing, nil).Once()

		err := f.service.Signup(ctx, SignupRequest{Username: "x", Email: "taken@example.com", Password: "password123"})
		require.Error(t, err)
		assert.ErrorIs(t, err, api.ErrConflict)
		assert.Contains(t, err.Error(), "This email is already signed up")
		f.users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestAuthService_Login(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		u := verifiedUser(7, "user@example.com", "password123")

		f.users.On("GetByEmail", ctx, "user@example.com").Return(u, nil).Once()
		f.tokens.On("Generate", api.TokenTypeAccess, int64(7)).Return("access-token", nil).Once()
		f.tokens.On("Create", ctx, api.TokenTypeRefresh, int64(7)).
			Return(&api.Token{Token: "refresh-token", Type: api.TokenTypeRefresh, UserID: 7}, nil).Once()

		access, refresh, err := f.service.Login(ctx, "user@example.com", "password123")
		require.NoError(t, err)
		assert.Equal(t, "access-token", access)
		assert.Equal(t, "refresh-token", refresh)
	})

	t.Run("UnknownEmail", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		f.users.On("GetByEmail", ctx, "ghost@example.com").Return(nil, nil).Once()

		_, _, err := f.service.Login(ctx, "ghost@example.com", "password123")
		require.Error(t, err)
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
		assert.Contains(t, err.Error(), "Invalid email or password")
	})

	t.Run("WrongPassword", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		u := verifiedUser(7, "user@example.com", "password123")
		f.users.On("GetByEmail", ctx, "user@example.com").Return(u, nil).Once()

		_, _, err := f.service.Login(ctx, "user@example.com", "not-the-password")
		require.Error(t, err)
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
		// Same message as an unknown email, so the two are indistinguishable.
		assert.Contains(t, err.Error(), "Invalid email or password")
	})

	t.Run("UnverifiedUser", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		u := verifiedUser(7, "user@example.com", "password123")
		u.Status = api.UserStatusRegistered
		f.users.On("GetByEmail", ctx, "user@example.com").Return(u, nil).Once()

		_, _, err := f.service.Login(ctx, "user@example.com", "password123")
		require.Error(t, err)
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
		assert.Contains(t, err.Error(), "User needs to verify their account")
	})

	t.Run("DeletedUser", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		u := verifiedUser(7, "user@example.com", "password123")
		u.Status = api.UserStatusDeleted
		f.users.On("GetByEmail", ctx, "user@example.com").Return(u, nil).Once()

		_, _, err := f.service.Login(ctx, "user@example.com", "password123")
		require.Error(t, err)
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
		assert.Contains(t, err.Error(), "User account is deleted")
	})
}

func TestAuthService_Refresh(t *testing.T) {
	ctx := context.Background()

	t.Run("RotatesToken", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		oldToken, err := f.codec.Encode(7, api.TokenTypeRefresh, time.Hour)
		require.NoError(t, err)

		f.tokens.On("Get", ctx, oldToken, api.TokenType("")).
			Return(&api.Token{Token: oldToken, Type: api.TokenTypeRefresh, UserID: 7}, nil).Once()
		f.tokens.On("Generate", api.TokenTypeAccess, int64(7)).Return("new-access", nil).Once()
		f.tokens.On("Create", ctx, api.TokenTypeRefresh, int64(7)).
			Return(&api.Token{Token: "new-refresh", Type: api.TokenTypeRefresh, UserID: 7}, nil).Once()
		f.tokens.On("Delete", ctx, oldToken).Return(nil).Once()

		access, refresh, err := f.service.Refresh(ctx, oldToken)
		require.NoError(t, err)
		assert.Equal(t, "new-access", access)
		assert.Equal(t, "new-refresh", refresh)
		f.tokens.AssertExpectations(t)
	})

	t.Run("RotatedTokenCannotBeReplayed", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		oldToken, err := f.codec.Encode(7, api.TokenTypeRefresh, time.Hour)
		require.NoError(t, err)

		// After rotation the row is gone, so a replay finds nothing.
		f.tokens.On("Get", ctx, oldToken, api.TokenType("")).Return(nil, nil).Once()

		_, _, err = f.service.Refresh(ctx, oldToken)
		require.Error(t, err)
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
		assert.Contains(t, err.Error(), "Invalid refresh token")
	})

	t.Run("EmptyToken", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		_, _, err := f.service.Refresh(ctx, "")
		require.Error(t, err)
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
	})

	t.Run("StoredButExpiredTokenIsDeleted", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		expired, err := f.codec.Encode(7, api.TokenTypeRefresh, -time.Minute)
		require.NoError(t, err)

		f.tokens.On("Get", ctx, expired, api.TokenType("")).
			Return(&api.Token{Token: expired, Type: api.TokenTypeRefresh, UserID: 7}, nil).Once()
		f.tokens.On("Delete", ctx, expired).Return(nil).Once()

		_, _, err = f.service.Refresh(ctx, expired)
		require.Error(t, err)
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
		f.tokens.AssertExpectations(t)
	})

	t.Run("WrongTokenType", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		accessToken, err := f.codec.Encode(7, api.TokenTypeAccess, time.Hour)
		require.NoError(t, err)

		f.tokens.On("Get", ctx, accessToken, api.TokenType("")).
			Return(&api.Token{Token: accessToken, Type: api.TokenTypeRefresh, UserID: 7}, nil).Once()

		_, _, err = f.service.Refresh(ctx, accessToken)
		require.Error(t, err)
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
	})
}

func TestAuthService_Logout(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		f.tokens.On("Get", ctx, "refresh-token", api.TokenTypeRefresh).
			Return(&api.Token{Token: "refresh-token", Type: api.TokenTypeRefresh, UserID: 7}, nil).Once()
		f.tokens.On("Delete", ctx, "refresh-token").Return(nil).Once()

		require.NoError(t, f.service.Logout(ctx, "refresh-token"))
		f.tokens.AssertExpectations(t)
	})

	t.Run("UnknownToken", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		f.tokens.On("Get", ctx, "gone", api.TokenTypeRefresh).Return(nil, nil).Once()

		err := f.service.Logout(ctx, "gone")
		require.Error(t, err)
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
	})

	t.Run("EmptyToken", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		err := f.service.Logout(ctx, "")
		require.Error(t, err)
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
	})

	t.Run("TokenDeletedConcurrently", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		f.tokens.On("Get", ctx, "refresh-token", api.TokenTypeRefresh).
			Return(&api.Token{Token: "refresh-token", Type: api.TokenTypeRefresh, UserID: 7}, nil).Once()
		f.tokens.On("Delete", ctx, "refresh-token").
			Return(fmt.Errorf("token not found: %w", api.ErrNotFound)).Once()

		err := f.service.Logout(ctx, "refresh-token")
		require.Error(t, err)
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
		assert.NotErrorIs(t, err, api.ErrNotFound)
	})
}

func TestAuthService_Verify(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		token, err := f.codec.Encode(7, api.TokenTypeVerification, time.Hour)
		require.NoError(t, err)

		registered := verifiedUser(7, "user@example.com", "password123")
		registered.Status = api.UserStatusRegistered

		f.tokens.On("Get", ctx, token, api.TokenType("")).
			Return(&api.Token{Token: token, Type: api.TokenTypeVerification, UserID: 7}, nil).Once()
		f.users.On("GetByID", ctx, int64(7)).Return(registered, nil).Once()
		f.users.On("Update", ctx, int64(7), mock.MatchedBy(func(patch api.UserUpdate) bool {
			return patch.Status != nil && *patch.Status == api.UserStatusVerified
		})).Return(registered, nil).Once()
		f.tokens.On("Delete", ctx, token).Return(nil).Once()

		require.NoError(t, f.service.Verify(ctx, token))
		f.users.AssertExpectations(t)
		f.tokens.AssertExpectations(t)
	})

	t.Run("SecondVerifyConflicts", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		token, err := f.codec.Encode(7, api.TokenTypeVerification, time.Hour)
		require.NoError(t, err)

		already := verifiedUser(7, "user@example.com", "password123")
		f.tokens.On("Get", ctx, token, api.TokenType("")).
			Return(&api.Token{Token: token, Type: api.TokenTypeVerification, UserID: 7}, nil).Once()
		f.users.On("GetByID", ctx, int64(7)).Return(already, nil).Once()

		err = f.service.Verify(ctx, token)
		require.Error(t, err)
		assert.ErrorIs(t, err, api.ErrConflict)
		assert.Contains(t, err.Error(), "User is already verified")
	})

	t.Run("ConsumedTokenFailsLikeForgedOne", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		token, err := f.codec.Encode(7, api.TokenTypeVerification, time.Hour)
		require.NoError(t, err)

		f.tokens.On("Get", ctx, token, api.TokenType("")).Return(nil, nil).Once()

		err = f.service.Verify(ctx, token)
		require.Error(t, err)
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
		assert.Contains(t, err.Error(), "Invalid token")
	})

	t.Run("GarbageToken", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		err := f.service.Verify(ctx, "garbage")
		require.Error(t, err)
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
	})

	t.Run("WrongTokenType", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		token, err := f.codec.Encode(7, api.TokenTypeAccess, time.Hour)
		require.NoError(t, err)

		err = f.service.Verify(ctx, token)
		require.Error(t, err)
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
	})
}

func TestAuthService_ResendVerification(t *testing.T) {
	ctx := context.Background()

	t.Run("InvalidatesOldTokensFirst", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		registered := verifiedUser(7, "user@example.com", "password123")
		registered.Status = api.UserStatusRegistered

		outstanding := []api.Token{
			{Token: "old-1", Type: api.TokenTypeVerification, UserID: 7},
			{Token: "old-2", Type: api.TokenTypeVerification, UserID: 7},
		}
		f.users.On("GetByEmail", ctx, "user@example.com").Return(registered, nil).Once()
		f.tokens.On("List", ctx, int64(7), api.TokenTypeVerification).Return(outstanding, nil).Once()
		f.tokens.On("DeleteMany", ctx, []string{"old-1", "old-2"}).Return(int64(2), nil).Once()
		f.tokens.On("Create", ctx, api.TokenTypeVerification, int64(7)).
			Return(&api.Token{Token: "fresh", Type: api.TokenTypeVerification, UserID: 7}, nil).Once()

		require.NoError(t, f.service.ResendVerification(ctx, "user@example.com"))
		assert.Equal(t, "user@example.com", f.mailer.waitForSend(t))
		f.tokens.AssertExpectations(t)
	})

	t.Run("UnknownEmail", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		f.users.On("GetByEmail", ctx, "ghost@example.com").Return(nil, nil).Once()

		err := f.service.ResendVerification(ctx, "ghost@example.com")
		require.Error(t, err)
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
		assert.Contains(t, err.Error(), "Invalid email")
	})

	t.Run("AlreadyVerified", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		f.users.On("GetByEmail", ctx, "user@example.com").
			Return(verifiedUser(7, "user@example.com", "password123"), nil).Once()

		err := f.service.ResendVerification(ctx, "user@example.com")
		require.Error(t, err)
		assert.ErrorIs(t, err, api.ErrConflict)
	})
}

func TestAuthService_ForgotPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("SendsResetToken", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		u := verifiedUser(7, "user@example.com", "password123")

		f.users.On("GetByEmail", ctx, "user@example.com").Return(u, nil).Once()
		f.tokens.On("List", ctx, int64(7), api.TokenTypeReset).Return([]api.Token{}, nil).Once()
		f.tokens.On("Create", ctx, api.TokenTypeReset, int64(7)).
			Return(&api.Token{Token: "reset-token", Type: api.TokenTypeReset, UserID: 7}, nil).Once()

		require.NoError(t, f.service.ForgotPassword(ctx, "user@example.com"))
		assert.Equal(t, "user@example.com", f.mailer.waitForSend(t))
		assert.Equal(t, "reset-token", f.mailer.lastCode)
	})

	t.Run("UnknownEmailIsSilentNoOp", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		f.users.On("GetByEmail", ctx, "ghost@example.com").Return(nil, nil).Once()

		require.NoError(t, f.service.ForgotPassword(ctx, "ghost@example.com"))
		f.tokens.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("UnverifiedUser", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		u := verifiedUser(7, "user@example.com", "password123")
		u.Status = api.UserStatusRegistered
		f.users.On("GetByEmail", ctx, "user@example.com").Return(u, nil).Once()

		err := f.service.ForgotPassword(ctx, "user@example.com")
		require.Error(t, err)
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
		assert.Contains(t, err.Error(), "User needs to verify their account")
	})
}

func TestAuthService_ResetPassword(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		token, err := f.codec.Encode(7, api.TokenTypeReset, time.Hour)
		require.NoError(t, err)

		u := verifiedUser(7, "user@example.com", "old-password")
		f.tokens.On("Get", ctx, token, api.TokenType("")).
			Return(&api.Token{Token: token, Type: api.TokenTypeReset, UserID: 7}, nil).Once()
		f.users.On("GetByID", ctx, int64(7)).Return(u, nil).Once()
		f.users.On("Update", ctx, int64(7), mock.MatchedBy(func(patch api.UserUpdate) bool {
			return patch.PasswordHash != nil && VerifySecret("new-password-1", *patch.PasswordHash)
		})).Return(u, nil).Once()
		f.tokens.On("Delete", ctx, token).Return(nil).Once()

		require.NoError(t, f.service.ResetPassword(ctx, token, "new-password-1"))
		f.users.AssertExpectations(t)
		f.tokens.AssertExpectations(t)
	})

	t.Run("ConsumedToken", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		token, err := f.codec.Encode(7, api.TokenTypeReset, time.Hour)
		require.NoError(t, err)

		f.tokens.On("Get", ctx, token, api.TokenType("")).Return(nil, nil).Once()

		err = f.service.ResetPassword(ctx, token, "new-password-1")
		require.Error(t, err)
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
	})

	t.Run("WrongTokenType", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		token, err := f.codec.Encode(7, api.TokenTypeVerification, time.Hour)
		require.NoError(t, err)

		err = f.service.ResetPassword(ctx, token, "new-password-1")
		require.Error(t, err)
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
	})

	t.Run("GarbageToken", func(t *testing.T) {
		f := newAuthServiceFixture(t)
		err := f.service.ResetPassword(ctx, "garbage", "new-password-1")
		require.Error(t, err)
		assert.ErrorIs(t, err, api.ErrUnauthenticated)
	})
}
