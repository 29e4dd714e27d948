package auth

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/mkravets/contacts-api/config"
	"github.com/mkravets/contacts-api/internal/api"
	"github.com/mkravets/contacts-api/internal/api/user"
)

// Guard validates bearer access tokens on protected routes and resolves the
// caller's identity, consulting a TTL-bounded cache before the user store.
// The cache is a convenience only; on a miss the store is authoritative.
type Guard struct {
	logger   *slog.Logger
	codec    *TokenCodec
	users    user.UserRepo
	cache    *gocache.Cache
	cacheTTL time.Duration
}

func NewGuard(codec *TokenCodec, users user.UserRepo, cfg *config.Config, logger *slog.Logger) *Guard {
	ttl := cfg.Auth.UserCacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Guard{
		logger:   logger,
		codec:    codec,
		users:    users,
		cache:    gocache.New(ttl, 10*time.Minute),
		cacheTTL: ttl,
	}
}

// Authenticate rejects the request with 401 unless it carries a valid,
// unexpired bearer ACCESS token for an existing user. On success the identity
// snapshot is placed on the request context.
func (g *Guard) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		l := g.logger.With(slog.String("middleware", "Authenticate"))

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			l.WarnContext(ctx, "Missing Authorization header")
			api.ErrorResponse(w, r, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		headerParts := strings.Split(authHeader, " ")
		if len(headerParts) != 2 || !strings.EqualFold(headerParts[0], "bearer") || headerParts[1] == "" {
			l.WarnContext(ctx, "Invalid Authorization header format")
			api.ErrorResponse(w, r, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		payload := g.codec.Decode(headerParts[1])
		if payload == nil || payload.TokenType != api.TokenTypeAccess {
			l.WarnContext(ctx, "Access token rejected")
			api.ErrorResponse(w, r, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		snapshot, err := g.resolveUser(r, payload.UserID)
		if err != nil {
			l.ErrorContext(ctx, "Failed to load user for access token", slog.Any("error", err))
			api.ErrorResponse(w, r, http.StatusInternalServerError, "Internal server error")
			return
		}
		if snapshot == nil {
			l.WarnContext(ctx, "Access token for unknown user", slog.Int64("user_id", payload.UserID))
			api.ErrorResponse(w, r, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		next.ServeHTTP(w, r.WithContext(api.ContextWithCurrentUser(ctx, snapshot)))
	})
}

func (g *Guard) resolveUser(r *http.Request, userID int64) (*api.CurrentUser, error) {
	cacheKey := strconv.FormatInt(userID, 10)
	if cached, found := g.cache.Get(cacheKey); found {
		return cached.(*api.CurrentUser), nil
	}

	u, err := g.users.GetByID(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, nil
	}

	snapshot := u.Snapshot()
	g.cache.Set(cacheKey, snapshot, g.cacheTTL)
	return snapshot, nil
}

// RequireRole runs after Authenticate and rejects identities whose role is not
// in the allow-list.
func RequireRole(logger *slog.Logger, allowedRoles ...api.UserRole) func(next http.Handler) http.Handler {
	roleSet := make(map[api.UserRole]struct{}, len(allowedRoles))
	for _, role := range allowedRoles {
		roleSet[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			current, ok := api.CurrentUserFromContext(r.Context())
			if !ok {
				logger.ErrorContext(r.Context(), "RequireRole ran without an authenticated identity")
				api.ErrorResponse(w, r, http.StatusUnauthorized, "Could not validate credentials")
				return
			}

			if _, allowed := roleSet[current.Role]; !allowed {
				logger.WarnContext(r.Context(), "Role check failed",
					slog.String("role", string(current.Role)),
					slog.Int64("user_id", current.ID))
				api.ErrorResponse(w, r, http.StatusForbidden, "Forbidden: insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
