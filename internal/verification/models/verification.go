// Package models defines the government-ID verification record: one
// submission of identity documents and its path through manual review.
package models

import (
	"time"

	id "verikey/pkg/domain"
	dErrors "verikey/pkg/domain-errors"
)

// DocumentType names the kind of government document submitted.
type DocumentType string

const (
	DocumentPassport       DocumentType = "passport"
	DocumentDriversLicense DocumentType = "drivers_license"
	DocumentNationalID     DocumentType = "national_id"
)

var validDocumentTypes = map[DocumentType]bool{
	DocumentPassport:       true,
	DocumentDriversLicense: true,
	DocumentNationalID:     true,
}

// IsValid checks if the document type is one of the supported enum values.
func (d DocumentType) IsValid() bool {
	return validDocumentTypes[d]
}

// String returns the string representation of the document type.
func (d DocumentType) String() string {
	return string(d)
}

// RequiresBack reports whether the document has a back side to capture.
// Passports are single-sided.
func (d DocumentType) RequiresBack() bool {
	return d != DocumentPassport
}

// ParseDocumentType constructs a DocumentType from external input.
func ParseDocumentType(raw string) (DocumentType, error) {
	d := DocumentType(raw)
	if !d.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid document type %q", raw)
	}
	return d, nil
}

// VerificationStatus is the lifecycle state of a verification record.
//
// Transitions: needs_review -> approved | rejected (reviewer decision),
// rejected -> superseded (a retry replaces the record). pending and
// processing are reserved for future automated pipelines; records submitted
// through this service start at needs_review.
type VerificationStatus string

const (
	StatusPending     VerificationStatus = "pending"
	StatusProcessing  VerificationStatus = "processing"
	StatusNeedsReview VerificationStatus = "needs_review"
	StatusApproved    VerificationStatus = "approved"
	StatusRejected    VerificationStatus = "rejected"
	StatusSuperseded  VerificationStatus = "superseded"
)

var validStatuses = map[VerificationStatus]bool{
	StatusPending:     true,
	StatusProcessing:  true,
	StatusNeedsReview: true,
	StatusApproved:    true,
	StatusRejected:    true,
	StatusSuperseded:  true,
}

// IsValid checks if the status is one of the supported enum values.
func (s VerificationStatus) IsValid() bool {
	return validStatuses[s]
}

// IsOpen reports whether the record is still waiting on a decision.
func (s VerificationStatus) IsOpen() bool {
	return s == StatusPending || s == StatusProcessing || s == StatusNeedsReview
}

// String returns the string representation of the status.
func (s VerificationStatus) String() string {
	return string(s)
}

// ParseVerificationStatus constructs a VerificationStatus from external input.
func ParseVerificationStatus(raw string) (VerificationStatus, error) {
	s := VerificationStatus(raw)
	if !s.IsValid() {
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "invalid verification status %q", raw)
	}
	return s, nil
}

// approvalValidity is how long an approved verification stays current.
const approvalValidity = 365 * 24 * time.Hour

// ManualData is the identity the user typed in alongside the document
// images. The reviewer checks it against the document before approving.
type ManualData struct {
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
}

// Verification is one document submission under review.
type Verification struct {
	ID             id.VerificationID  `json:"id"`
	UserID         id.UserID          `json:"user_id"`
	DocumentType   DocumentType       `json:"document_type"`
	FrontImageKey  string             `json:"-"`
	BackImageKey   string             `json:"-"`
	SelfieImageKey string             `json:"-"`
	Manual         ManualData         `json:"manual_data"`
	Status         VerificationStatus `json:"status"`
	Reviewer       string             `json:"-"`
	ReviewNotes    string             `json:"review_notes,omitempty"`
	SubmittedAt    time.Time          `json:"submitted_at"`
	ReviewedAt     *time.Time         `json:"reviewed_at,omitempty"`
	ExpiresAt      *time.Time         `json:"expires_at,omitempty"`
}

// NewVerification constructs a submission awaiting manual review.
func NewVerification(verificationID id.VerificationID, userID id.UserID, docType DocumentType, manual ManualData, now time.Time) (*Verification, error) {
	if verificationID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "verification id cannot be nil")
	}
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "verification user cannot be nil")
	}
	if !docType.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "verification document type is invalid")
	}

	return &Verification{
		ID:           verificationID,
		UserID:       userID,
		DocumentType: docType,
		Manual:       manual,
		Status:       StatusNeedsReview,
		SubmittedAt:  now,
	}, nil
}

// CanReview checks that the record is still open. Use with ApplyApprove or
// ApplyReject in Execute callbacks.
func (v *Verification) CanReview() error {
	if !v.Status.IsOpen() {
		return dErrors.Newf(dErrors.CodeConflict, "cannot review a %s verification", v.Status)
	}
	return nil
}

// ApplyApprove accepts the submission. Approval is valid for one year.
func (v *Verification) ApplyApprove(reviewer, notes string, now time.Time) {
	v.Status = StatusApproved
	v.Reviewer = reviewer
	v.ReviewNotes = notes
	v.ReviewedAt = &now
	expires := now.Add(approvalValidity)
	v.ExpiresAt = &expires
}

// ApplyReject refuses the submission. The user may retry with a fresh one.
func (v *Verification) ApplyReject(reviewer, notes string, now time.Time) {
	v.Status = StatusRejected
	v.Reviewer = reviewer
	v.ReviewNotes = notes
	v.ReviewedAt = &now
}

// CanSupersede checks that the record is a rejected one being replaced by a
// retry.
func (v *Verification) CanSupersede() error {
	if v.Status != StatusRejected {
		return dErrors.Newf(dErrors.CodeConflict, "cannot supersede a %s verification", v.Status)
	}
	return nil
}

// ApplySupersede retires the record in favor of a newer submission.
func (v *Verification) ApplySupersede() {
	v.Status = StatusSuperseded
}
