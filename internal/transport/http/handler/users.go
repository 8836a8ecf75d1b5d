package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-shop-api/internal/application/media"
	"github.com/go-shop-api/internal/application/user"
	"github.com/go-shop-api/internal/domain"
	"github.com/go-shop-api/internal/transport/http/middleware"
)

const avatarField = "avatar"

// UserHandler serves the caller's own profile and the staff/admin account
// endpoints. Role gates are applied by the router.
type UserHandler struct {
	svc user.Service
}

func NewUserHandler(svc user.Service) *UserHandler { return &UserHandler{svc: svc} }

func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		return
	}
	acc, err := h.svc.GetProfile(r.Context(), ident.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserEnvelope{User: acc})
}

func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		return
	}
	var req domain.ProfileUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	acc, err := h.svc.UpdateProfile(r.Context(), ident.UserID, req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserEnvelope{Message: "Profile updated successfully", User: acc})
}

func (h *UserHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, media.MaxImageSize+maxBodyBytes)
	file, _, err := r.FormFile(avatarField)
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'avatar' is required")
		return
	}
	defer file.Close()

	acc, err := h.svc.UpdateAvatar(r.Context(), ident.UserID, file)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserEnvelope{Message: "Avatar updated successfully", User: acc})
}

func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	ident, ok := identity(w, r)
	if !ok {
		return
	}
	var req user.ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.ChangePassword(r.Context(), ident.UserID, req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "Password changed successfully"})
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.List(r.Context(), parsePage(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *UserHandler) Search(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Search(r.Context(), r.URL.Query().Get("search"), parsePage(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *UserHandler) ListByRole(w http.ResponseWriter, r *http.Request) {
	role, err := domain.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	res, err := h.svc.ListByRole(r.Context(), role, parsePage(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	acc, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UserEnvelope{User: acc})
}

func (h *UserHandler) SoftDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.SoftDelete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "user deactivated"})
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "user deleted"})
}

func identity(w http.ResponseWriter, r *http.Request) (domain.Identity, bool) {
	ident, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, domain.ErrUnauthenticated.Error())
	}
	return ident, ok
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return id, true
}

// parsePage ignores unparsable values; range checks happen in the service.
func parsePage(r *http.Request) user.Page {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return user.Page{Limit: limit, Offset: offset}
}
