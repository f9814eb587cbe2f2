package httptransport

import (
	"net/http"

	identityservice "verikey/internal/identity/service"
	"verikey/internal/platform/middleware"
	dErrors "verikey/pkg/domain-errors"
	"verikey/pkg/platform/httputil"
)

type ProfileHandler struct {
	identity IdentityService
}

type updateProfileRequest struct {
	Notes *string `json:"notes"`
}

type changeEmailRequest struct {
	Email string `json:"email"`
}

type changeScreenNameRequest struct {
	ScreenName string `json:"screen_name"`
}

type setPhotoRequest struct {
	ImageData string `json:"image_data"`
}

type deleteAccountRequest struct {
	Password string `json:"password"`
	Mode     string `json:"mode,omitempty"`
}

func (h *ProfileHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, err := h.identity.Get(ctx, middleware.GetUserID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *ProfileHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	ctx := r.Context()
	u, err := h.identity.UpdateProfile(ctx, middleware.GetUserID(ctx), identityservice.UpdateProfileParams{
		Notes: req.Notes,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *ProfileHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteAccountRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	ctx := r.Context()
	err := h.identity.DeleteAccount(ctx, middleware.GetUserID(ctx), req.Password, identityservice.DeletionMode(req.Mode))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

func (h *ProfileHandler) handleChangeEmail(w http.ResponseWriter, r *http.Request) {
	var req changeEmailRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	ctx := r.Context()
	u, err := h.identity.ChangeEmail(ctx, middleware.GetUserID(ctx), req.Email)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *ProfileHandler) handleChangeScreenName(w http.ResponseWriter, r *http.Request) {
	var req changeScreenNameRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	ctx := r.Context()
	u, err := h.identity.ChangeScreenName(ctx, middleware.GetUserID(ctx), req.ScreenName)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *ProfileHandler) handleSetPhoto(w http.ResponseWriter, r *http.Request) {
	var req setPhotoRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	ctx := r.Context()
	u, err := h.identity.SetProfilePhoto(ctx, middleware.GetUserID(ctx), req.ImageData)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, u)
}

func (h *ProfileHandler) handleCheckScreenName(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("screen_name")
	available, canonical, err := h.identity.CheckScreenName(r.Context(), name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"available":   available,
		"screen_name": canonical,
	})
}

func (h *ProfileHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "q is required"))
		return
	}

	profiles, err := h.identity.Search(r.Context(), query)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"users": profiles})
}

func (h *ProfileHandler) handleLookup(w http.ResponseWriter, r *http.Request) {
	identifier := r.URL.Query().Get("identifier")
	if identifier == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "identifier is required"))
		return
	}

	profile, err := h.identity.Lookup(r.Context(), identifier)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}
