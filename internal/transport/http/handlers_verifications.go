package httptransport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"verikey/internal/platform/middleware"
	verificationmodels "verikey/internal/verification/models"
	verificationservice "verikey/internal/verification/service"
	id "verikey/pkg/domain"
	dErrors "verikey/pkg/domain-errors"
	"verikey/pkg/platform/httputil"
	"verikey/pkg/requestcontext"
)

// VerificationService is the KYC surface the verification handlers need.
type VerificationService interface {
	Submit(ctx context.Context, userID id.UserID, p verificationservice.SubmitParams) (*verificationmodels.Verification, error)
	Status(ctx context.Context, userID id.UserID) (*verificationservice.StatusResult, error)
	Retry(ctx context.Context, userID id.UserID, p verificationservice.SubmitParams) (*verificationmodels.Verification, error)
	Review(ctx context.Context, reviewer string, verificationID id.VerificationID, decision verificationservice.ReviewDecision, notes string) (*verificationmodels.Verification, error)
}

type VerificationHandler struct {
	verifications VerificationService
	actors        ActorResolver
	reviewers     map[string]bool
}

type submitVerificationRequest struct {
	DocumentType    string `json:"document_type"`
	FrontImageData  string `json:"front_image_data"`
	BackImageData   string `json:"back_image_data,omitempty"`
	SelfieImageData string `json:"selfie_image_data,omitempty"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	DateOfBirth     string `json:"date_of_birth,omitempty"`
}

type reviewVerificationRequest struct {
	Decision string `json:"decision"`
	Notes    string `json:"notes,omitempty"`
}

type statusResponse struct {
	Verification *verificationmodels.Verification `json:"verification,omitempty"`
	CanRetry     bool                             `json:"can_retry"`
	NextStep     string                           `json:"next_step"`
}

func (r submitVerificationRequest) toParams() (verificationservice.SubmitParams, error) {
	dob, err := parseDate(r.DateOfBirth)
	if err != nil {
		return verificationservice.SubmitParams{}, err
	}
	return verificationservice.SubmitParams{
		DocumentType:    r.DocumentType,
		FrontImageData:  r.FrontImageData,
		BackImageData:   r.BackImageData,
		SelfieImageData: r.SelfieImageData,
		Manual: verificationmodels.ManualData{
			FirstName:   r.FirstName,
			LastName:    r.LastName,
			DateOfBirth: dob,
		},
	}, nil
}

func (h *VerificationHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.submitWith(w, r, h.verifications.Submit, http.StatusCreated)
}

func (h *VerificationHandler) handleRetry(w http.ResponseWriter, r *http.Request) {
	h.submitWith(w, r, h.verifications.Retry, http.StatusOK)
}

func (h *VerificationHandler) submitWith(w http.ResponseWriter, r *http.Request,
	op func(context.Context, id.UserID, verificationservice.SubmitParams) (*verificationmodels.Verification, error),
	status int) {
	var req submitVerificationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	params, err := req.toParams()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	ctx := r.Context()
	v, err := op(ctx, middleware.GetUserID(ctx), params)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, status, v)
}

func (h *VerificationHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.verifications.Status(ctx, middleware.GetUserID(ctx))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusResponse{
		Verification: result.Verification,
		CanRetry:     result.CanRetry,
		NextStep:     result.NextStep,
	})
}

// handleReview is reviewer-gated: only accounts on the configured reviewer
// list may decide submissions.
func (h *VerificationHandler) handleReview(w http.ResponseWriter, r *http.Request) {
	verificationID, err := id.ParseVerificationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	ctx := r.Context()
	reviewer, err := h.reviewerEmail(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req reviewVerificationRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}

	v, err := h.verifications.Review(ctx, reviewer, verificationID,
		verificationservice.ReviewDecision(req.Decision), req.Notes)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, v)
}

func (h *VerificationHandler) reviewerEmail(ctx context.Context) (string, error) {
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		return "", dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	u, err := h.actors.Get(ctx, userID)
	if err != nil {
		return "", dErrors.New(dErrors.CodeUnauthorized, "account no longer active")
	}
	if !h.reviewers[u.Email] {
		return "", dErrors.New(dErrors.CodeForbidden, "reviewer access required")
	}
	return u.Email, nil
}
