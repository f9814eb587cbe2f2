package service

import (
	"context"

	"verikey/internal/audit"
	"verikey/internal/bundle"
	keymodels "verikey/internal/keys/models"
	keyservice "verikey/internal/keys/service"
	"verikey/internal/request/models"
	id "verikey/pkg/domain"
	dErrors "verikey/pkg/domain-errors"
	"verikey/pkg/requestcontext"
	"verikey/pkg/validate"
)

const responseLabelPrefix = "Response to: "

// FulfillParams carries the responder's answer: the values to fill the
// requested categories with, where the profile alone is not enough.
type FulfillParams struct {
	Submission bundle.Submission
}

// FulfillResult is the pair created by a fulfillment.
type FulfillResult struct {
	Request *models.Request
	Key     *keymodels.ShareableKey
}

// Fulfill answers a pending request: it snapshots a bundle from the
// responder's profile and submission, mints a key addressed back to the
// requester, and completes the request. The status transition and the key
// insert run in one transaction; a failure on either side rolls back both.
func (s *Service) Fulfill(ctx context.Context, responder Actor, requestID id.RequestID, p FulfillParams) (*FulfillResult, error) {
	if err := validateSubmissionLocation(p.Submission.Location); err != nil {
		return nil, err
	}
	if _, err := s.loadForActor(ctx, responder, requestID); err != nil {
		return nil, err
	}

	subject, err := s.users.Get(ctx, responder.ID)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	var result FulfillResult
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		fulfilled, err := s.store.Execute(txCtx, requestID,
			func(r *models.Request) error { return r.CanFulfill(responder.ID, responder.Email) },
			func(r *models.Request) { r.ApplyFulfill(now) },
		)
		if err != nil {
			return wrapRequestErr(err)
		}

		b := bundle.Build(subject, fulfilled.Categories, p.Submission, now)
		key, err := s.keys.Mint(txCtx, keyservice.MintParams{
			CreatorID:    responder.ID,
			Recipient:    keymodels.Recipient{UserID: fulfilled.RequesterID},
			RequestID:    fulfilled.ID,
			Label:        responseLabelPrefix + fulfilled.Label,
			ViewsAllowed: keymodels.DefaultViews,
			Bundle:       b,
		})
		if err != nil {
			return err
		}

		result.Request = fulfilled
		result.Key = key
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logAudit(ctx, audit.EventRequestFulfilled, requestID, map[string]any{"key_id": result.Key.ID.String()})
	s.metrics.IncrementRequestsSettled("completed")
	return &result, nil
}

func validateSubmissionLocation(loc *bundle.LocationInput) error {
	if loc == nil {
		return nil
	}
	if (loc.Latitude == nil) != (loc.Longitude == nil) {
		return dErrors.New(dErrors.CodeValidation, "latitude and longitude must be supplied together")
	}
	if loc.Latitude != nil {
		return validate.Coordinates(*loc.Latitude, *loc.Longitude)
	}
	return nil
}
