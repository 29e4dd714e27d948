package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mkravets/contacts-api/internal/api"
)

func newGuardFixture(t *testing.T) (*Guard, *MockUserRepo, *TokenCodec) {
	t.Helper()
	cfg := testCodecConfig()
	cfg.Auth.UserCacheTTL = time.Minute

	users := new(MockUserRepo)
	codec := NewTokenCodec(cfg)
	guard := NewGuard(codec, users, cfg, slog.New(slog.DiscardHandler))
	return guard, users, codec
}

func protectedEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current, ok := api.CurrentUserFromContext(r.Context())
		if !ok {
			http.Error(w, "no identity", http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(current)
	})
}

func TestGuard_Authenticate(t *testing.T) {
	t.Run("ValidToken", func(t *testing.T) {
		guard, users, codec := newGuardFixture(t)
		token, err := codec.Encode(7, api.TokenTypeAccess, time.Minute)
		require.NoError(t, err)

		u := verifiedUser(7, "user@example.com", "password123")
		users.On("GetByID", mock.Anything, int64(7)).Return(u, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()

		guard.Authenticate(protectedEcho()).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var current api.CurrentUser
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &current))
		assert.Equal(t, int64(7), current.ID)
		assert.Equal(t, "user@example.com", current.Email)
	})

	t.Run("SecondRequestServedFromCache", func(t *testing.T) {
		guard, users, codec := newGuardFixture(t)
		token, err := codec.Encode(7, api.TokenTypeAccess, time.Minute)
		require.NoError(t, err)

		u := verifiedUser(7, "user@example.com", "password123")
		users.On("GetByID", mock.Anything, int64(7)).Return(u, nil).Once()

		for i := 0; i < 2; i++ {
			req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
			req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			guard.Authenticate(protectedEcho()).ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code)
		}
		users.AssertExpectations(t)
	})

	t.Run("Rejections", func(t *testing.T) {
		guard, _, codec := newGuardFixture(t)

		refreshToken, err := codec.Encode(7, api.TokenTypeRefresh, time.Minute)
		require.NoError(t, err)
		expired, err := codec.Encode(7, api.TokenTypeAccess, -time.Minute)
		require.NoError(t, err)

		cases := []struct {
			name   string
			header string
		}{
			{"MissingHeader", ""},
			{"NotBearer", "Basic dXNlcjpwYXNz"},
			{"EmptyToken", "Bearer "},
			{"Garbage", "Bearer garbage"},
			{"RefreshTokenInsteadOfAccess", "Bearer " + refreshToken},
			{"ExpiredToken", "Bearer " + expired},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
				if tc.header != "" {
					req.Header.Set("Authorization", tc.header)
				}
				rec := httptest.NewRecorder()
				guard.Authenticate(protectedEcho()).ServeHTTP(rec, req)

				require.Equal(t, http.StatusUnauthorized, rec.Code)
				var detail api.ErrorDetail
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
				assert.Equal(t, "Could not validate credentials", detail.Detail)
				assert.Equal(t, http.StatusUnauthorized, detail.StatusCode)
			})
		}
	})

	t.Run("TokenForDeletedUser", func(t *testing.T) {
		guard, users, codec := newGuardFixture(t)
		token, err := codec.Encode(99, api.TokenTypeAccess, time.Minute)
		require.NoError(t, err)

		users.On("GetByID", mock.Anything, int64(99)).Return(nil, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		guard.Authenticate(protectedEcho()).ServeHTTP(rec, req)

		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRequireRole(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	serve := func(role api.UserRole, middleware func(http.Handler) http.Handler) *httptest.ResponseRecorder {
		current := &api.CurrentUser{ID: 7, Role: role}
		req := httptest.NewRequest(http.MethodPut, "/users/avatars", nil)
		req = req.WithContext(api.ContextWithCurrentUser(context.Background(), current))
		rec := httptest.NewRecorder()
		middleware(next).ServeHTTP(rec, req)
		return rec
	}

	t.Run("AllowedRole", func(t *testing.T) {
		rec := serve(api.UserRoleAdmin, RequireRole(logger, api.UserRoleAdmin))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("ForbiddenRole", func(t *testing.T) {
		rec := serve(api.UserRoleUser, RequireRole(logger, api.UserRoleAdmin))
		require.Equal(t, http.StatusForbidden, rec.Code)

		var detail api.ErrorDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
		assert.Equal(t, "Forbidden: insufficient permissions", detail.Detail)
	})

	t.Run("NoIdentityOnContext", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/users/avatars", nil)
		rec := httptest.NewRecorder()
		RequireRole(logger, api.UserRoleAdmin)(next).ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
