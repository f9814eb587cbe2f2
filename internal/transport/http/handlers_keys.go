package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"verikey/internal/bundle"
	keymodels "verikey/internal/keys/models"
	keyservice "verikey/internal/keys/service"
	id "verikey/pkg/domain"
	"verikey/pkg/platform/httputil"
)

// KeyService is the shareable-key surface the key handlers need.
type KeyService interface {
	Create(ctx context.Context, creator keyservice.Actor, p keyservice.CreateParams) (*keymodels.ShareableKey, error)
	Get(ctx context.Context, actor keyservice.Actor, keyID id.KeyID) (*keymodels.ShareableKey, error)
	RecordView(ctx context.Context, actor keyservice.Actor, keyID id.KeyID) (*keymodels.ShareableKey, error)
	Revoke(ctx context.Context, actor keyservice.Actor, keyID id.KeyID, reason string) (*keymodels.ShareableKey, error)
	Remove(ctx context.Context, actor keyservice.Actor, keyID id.KeyID) (*keymodels.ShareableKey, error)
	Delete(ctx context.Context, actor keyservice.Actor, keyID id.KeyID) error
	ListCreated(ctx context.Context, actor keyservice.Actor, statusFilter string) ([]*keymodels.ShareableKey, error)
	ListReceived(ctx context.Context, actor keyservice.Actor, includeRemoved bool) ([]*keymodels.ShareableKey, error)
	NewCount(ctx context.Context, actor keyservice.Actor) (int, error)
}

type KeyHandler struct {
	keys   KeyService
	actors ActorResolver
}

type createKeyRequest struct {
	Recipient     string   `json:"recipient,omitempty"`
	ShareableLink bool     `json:"shareable_link,omitempty"`
	Label         string   `json:"label"`
	Notes         string   `json:"notes,omitempty"`
	Categories    []string `json:"categories"`
	ViewsAllowed  int      `json:"views_allowed,omitempty"`

	Submission submissionRequest `json:"submission"`
}

type revokeKeyRequest struct {
	Reason string `json:"reason,omitempty"`
}

// viewResponse pairs the key metadata with the bundle it unlocks. Only
// record_view ever serves a bundle.
type viewResponse struct {
	Key    *keymodels.ShareableKey `json:"key"`
	Bundle bundle.Bundle           `json:"bundle"`
}

func (h *KeyHandler) actor(ctx context.Context) (keyservice.Actor, error) {
	userID, email, err := resolveActor(ctx, h.actors)
	if err != nil {
		return keyservice.Actor{}, err
	}
	return keyservice.Actor{ID: userID, Email: email}, nil
}

func (h *KeyHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	ctx := r.Context()
	actor, err := h.actor(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	created, err := h.keys.Create(ctx, actor, keyservice.CreateParams{
		RecipientIdentifier: req.Recipient,
		ShareableLink:       req.ShareableLink,
		Label:               req.Label,
		Notes:               req.Notes,
		Categories:          req.Categories,
		ViewsAllowed:        req.ViewsAllowed,
		Submission:          req.Submission.toSubmission(),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

// handleList returns both directions at once; the box query parameter
// narrows to one. status filters the created listing; include_removed=true
// surfaces removed keys in the received listing.
func (h *KeyHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := h.actor(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	query := r.URL.Query()
	out := map[string]any{}
	box := query.Get("box")
	if box == "" || box == "created" {
		created, err := h.keys.ListCreated(ctx, actor, query.Get("status"))
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		out["created"] = created
	}
	if box == "" || box == "received" {
		received, err := h.keys.ListReceived(ctx, actor, query.Get("include_removed") == "true")
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		out["received"] = received
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *KeyHandler) handleNewCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := h.actor(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	count, err := h.keys.NewCount(ctx, actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *KeyHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	keyID, actor, ok := h.keyAndActor(w, r)
	if !ok {
		return
	}

	k, err := h.keys.Get(r.Context(), actor, keyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, k)
}

// handleView is the consuming read: it burns one view and returns the
// bundle. The exhausting view still gets the payload.
func (h *KeyHandler) handleView(w http.ResponseWriter, r *http.Request) {
	keyID, actor, ok := h.keyAndActor(w, r)
	if !ok {
		return
	}

	k, err := h.keys.RecordView(r.Context(), actor, keyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, viewResponse{Key: k, Bundle: k.Bundle})
}

func (h *KeyHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	keyID, actor, ok := h.keyAndActor(w, r)
	if !ok {
		return
	}

	var req revokeKeyRequest
	if r.ContentLength > 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}

	k, err := h.keys.Revoke(r.Context(), actor, keyID, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, k)
}

func (h *KeyHandler) handleRemove(w http.ResponseWriter, r *http.Request) {
	keyID, actor, ok := h.keyAndActor(w, r)
	if !ok {
		return
	}

	k, err := h.keys.Remove(r.Context(), actor, keyID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, k)
}

func (h *KeyHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	keyID, actor, ok := h.keyAndActor(w, r)
	if !ok {
		return
	}

	if err := h.keys.Delete(r.Context(), actor, keyID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// keyAndActor parses the path id and resolves the caller, writing the error
// response itself when either fails.
func (h *KeyHandler) keyAndActor(w http.ResponseWriter, r *http.Request) (id.KeyID, keyservice.Actor, bool) {
	keyID, err := id.ParseKeyID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.KeyID{}, keyservice.Actor{}, false
	}
	actor, err := h.actor(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return id.KeyID{}, keyservice.Actor{}, false
	}
	return keyID, actor, true
}
