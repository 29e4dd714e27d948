package user

import (
	"log/slog"
	"net/http"

	"github.com/mkravets/contacts-api/internal/api"
)

const maxAvatarBytes = 10 << 20 // 10 MiB

type UserHandler struct {
	service UserService
	logger  *slog.Logger
}

func NewUserHandler(service UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		service: service,
		logger:  logger,
	}
}

type avatarResponse struct {
	AvatarURL string `json:"avatar_url"`
}

// ChangeAvatar handles PUT /users/avatars (multipart, admin only).
func (h *UserHandler) ChangeAvatar(w http.ResponseWriter, r *http.Request) {
	current, ok := api.CurrentUserFromContext(r.Context())
	if !ok {
		api.ErrorResponse(w, r, http.StatusUnauthorized, "Could not validate credentials")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes)
	if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Invalid multipart body")
		return
	}

	file, header, err := r.FormFile("avatar")
	if err != nil {
		api.ErrorResponse(w, r, http.StatusBadRequest, "Avatar file is required")
		return
	}
	defer file.Close()

	avatarURL, err := h.service.ChangeAvatar(r.Context(), current.ID,
		header.Filename, header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		h.logger.WarnContext(r.Context(), "Avatar change failed",
			slog.Int64("user_id", current.ID), slog.Any("error", err))
		api.RespondError(w, r, err)
		return
	}

	api.WriteJSONResponse(w, r, http.StatusOK, avatarResponse{AvatarURL: avatarURL})
}
