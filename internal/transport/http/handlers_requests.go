package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"verikey/internal/bundle"
	keymodels "verikey/internal/keys/models"
	requestmodels "verikey/internal/request/models"
	requestservice "verikey/internal/request/service"
	id "verikey/pkg/domain"
	"verikey/pkg/platform/httputil"
)

// RequestService is the solicitation surface the request handlers need.
type RequestService interface {
	Create(ctx context.Context, requester requestservice.Actor, p requestservice.CreateParams) (*requestmodels.Request, error)
	Get(ctx context.Context, actor requestservice.Actor, requestID id.RequestID) (*requestmodels.Request, error)
	Update(ctx context.Context, actor requestservice.Actor, requestID id.RequestID, p requestservice.UpdateParams) (*requestmodels.Request, error)
	Deny(ctx context.Context, actor requestservice.Actor, requestID id.RequestID) (*requestmodels.Request, error)
	Cancel(ctx context.Context, actor requestservice.Actor, requestID id.RequestID) (*requestmodels.Request, error)
	Fulfill(ctx context.Context, responder requestservice.Actor, requestID id.RequestID, p requestservice.FulfillParams) (*requestservice.FulfillResult, error)
	ListInbox(ctx context.Context, actor requestservice.Actor) ([]*requestmodels.Request, error)
	ListOutbox(ctx context.Context, actor requestservice.Actor) ([]*requestmodels.Request, error)
}

type RequestHandler struct {
	requests RequestService
	actors   ActorResolver
}

type createRequestRequest struct {
	Target     string   `json:"target"`
	Label      string   `json:"label"`
	Notes      string   `json:"notes,omitempty"`
	Categories []string `json:"categories"`
}

type updateRequestRequest struct {
	Label      *string  `json:"label"`
	Notes      *string  `json:"notes"`
	Categories []string `json:"categories"`
}

// submissionRequest is the shared payload for fulfillment and proactive
// shares: the values the caller supplies where the profile alone is not
// enough.
type submissionRequest struct {
	Age        string           `json:"age,omitempty"`
	Location   *locationRequest `json:"location,omitempty"`
	SelfieData string           `json:"selfie_data,omitempty"`
	PhotoData  string           `json:"photo_data,omitempty"`
}

type locationRequest struct {
	CityDisplay string   `json:"city_display"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
}

func (r submissionRequest) toSubmission() bundle.Submission {
	sub := bundle.Submission{
		Age:        r.Age,
		SelfieData: r.SelfieData,
		PhotoData:  r.PhotoData,
	}
	if r.Location != nil {
		sub.Location = &bundle.LocationInput{
			CityDisplay: r.Location.CityDisplay,
			Latitude:    r.Location.Latitude,
			Longitude:   r.Location.Longitude,
		}
	}
	return sub
}

type fulfillResponse struct {
	Request *requestmodels.Request  `json:"request"`
	Key     *keymodels.ShareableKey `json:"key"`
}

func (h *RequestHandler) actor(ctx context.Context) (requestservice.Actor, error) {
	userID, email, err := resolveActor(ctx, h.actors)
	if err != nil {
		return requestservice.Actor{}, err
	}
	return requestservice.Actor{ID: userID, Email: email}, nil
}

func (h *RequestHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequestRequest
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

	created, err := h.requests.Create(ctx, actor, requestservice.CreateParams{
		TargetIdentifier: req.Target,
		Label:            req.Label,
		Notes:            req.Notes,
		Categories:       req.Categories,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

// handleList returns both directions at once; the box query parameter
// narrows to one.
func (h *RequestHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, err := h.actor(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	out := map[string]any{}
	box := r.URL.Query().Get("box")
	if box == "" || box == "inbox" {
		inbox, err := h.requests.ListInbox(ctx, actor)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		out["inbox"] = inbox
	}
	if box == "" || box == "outbox" {
		outbox, err := h.requests.ListOutbox(ctx, actor)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		out["outbox"] = outbox
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *RequestHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	h.respondWith(w, r, h.requests.Get)
}

func (h *RequestHandler) handleDeny(w http.ResponseWriter, r *http.Request) {
	h.respondWith(w, r, h.requests.Deny)
}

func (h *RequestHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	h.respondWith(w, r, h.requests.Cancel)
}

// respondWith factors the shared id-parse/actor/delegate shape of the
// single-request endpoints.
func (h *RequestHandler) respondWith(w http.ResponseWriter, r *http.Request,
	op func(context.Context, requestservice.Actor, id.RequestID) (*requestmodels.Request, error)) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	ctx := r.Context()
	actor, err := h.actor(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := op(ctx, actor, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *RequestHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req updateRequestRequest
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

	updated, err := h.requests.Update(ctx, actor, requestID, requestservice.UpdateParams{
		Label:      req.Label,
		Notes:      req.Notes,
		Categories: req.Categories,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (h *RequestHandler) handleFulfill(w http.ResponseWriter, r *http.Request) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req submissionRequest
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

	result, err := h.requests.Fulfill(ctx, actor, requestID, requestservice.FulfillParams{
		Submission: req.toSubmission(),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fulfillResponse{Request: result.Request, Key: result.Key})
}
