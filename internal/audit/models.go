package audit

import "time"

// AuditEvent names a recorded action. Values are stable; dashboards and
// retention rules key on them.
type AuditEvent string

const (
	// Account events
	EventUserRegistered          AuditEvent = "user_registered"
	EventUserLogin               AuditEvent = "user_login"
	EventUserLoginFailed         AuditEvent = "user_login_failed"
	EventUserLoggedOut           AuditEvent = "user_logged_out"
	EventTokenRefreshed          AuditEvent = "token_refreshed"
	EventProfileUpdated          AuditEvent = "profile_updated"
	EventEmailChanged            AuditEvent = "email_changed"
	EventScreenNameChanged       AuditEvent = "screen_name_changed"
	EventProfilePhotoUpdated     AuditEvent = "profile_photo_updated"
	EventUserDeleted             AuditEvent = "user_deleted"
	EventVerifiedIdentityApplied AuditEvent = "verified_identity_applied"

	// Request events
	EventRequestCreated   AuditEvent = "request_created"
	EventRequestDenied    AuditEvent = "request_denied"
	EventRequestCancelled AuditEvent = "request_cancelled"
	EventRequestUpdated   AuditEvent = "request_updated"
	EventRequestFulfilled AuditEvent = "request_fulfilled"

	// Key events
	EventKeyCreated   AuditEvent = "key_created"
	EventKeyViewed    AuditEvent = "key_viewed"
	EventKeyExhausted AuditEvent = "key_exhausted"
	EventKeyRevoked   AuditEvent = "key_revoked"
	EventKeyRemoved   AuditEvent = "key_removed"
	EventKeyDeleted   AuditEvent = "key_deleted"

	// Verification events
	EventVerificationSubmitted AuditEvent = "verification_submitted"
	EventVerificationRetried   AuditEvent = "verification_retried"
	EventVerificationReviewed  AuditEvent = "verification_reviewed"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
//
// ActorID is the acting user; empty for unauthenticated actions (failed
// logins) and system actions (expiry sweeps). ResourceType and ResourceID
// name what was acted on. RequestID, ClientIP and UserAgent are filled from
// the request context by the publisher when left empty.
type Event struct {
	Timestamp    time.Time
	ActorID      string
	Action       AuditEvent
	ResourceType string
	ResourceID   string
	RequestID    string
	ClientIP     string
	UserAgent    string
	Metadata     map[string]any
}
