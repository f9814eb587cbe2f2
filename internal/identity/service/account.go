package service

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"verikey/internal/audit"
	"verikey/internal/identity/models"
	id "verikey/pkg/domain"
	dErrors "verikey/pkg/domain-errors"
	"verikey/pkg/requestcontext"
)

// DeletionMode selects how much of an account DeleteAccount removes.
type DeletionMode string

const (
	// DeletionSoft anonymizes the profile in place and keeps the row so
	// keys and requests referencing the user stay resolvable.
	DeletionSoft DeletionMode = "soft"
	// DeletionHard removes the row and everything referencing it.
	DeletionHard DeletionMode = "hard"
)

// cascadeReason is recorded on keys revoked and requests cancelled because
// their owner deleted the account.
const cascadeReason = "Account deleted"

// DeleteAccount removes an account after re-checking the password. Soft
// deletion anonymizes the profile, revokes the user's active keys, cancels
// their pending requests and invalidates their sessions; hard deletion
// purges every trace. All storage effects commit in one transaction.
func (s *Service) DeleteAccount(ctx context.Context, userID id.UserID, password string, mode DeletionMode) error {
	if mode == "" {
		mode = DeletionSoft
	}
	if mode != DeletionSoft && mode != DeletionHard {
		return dErrors.New(dErrors.CodeValidation, "deletion mode must be soft or hard")
	}

	u, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return dErrors.New(dErrors.CodeUnauthorized, "password is incorrect")
	}

	now := requestcontext.Now(ctx)
	var revokedKeys, cancelledRequests, revokedSessions int

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		switch mode {
		case DeletionSoft:
			if _, err := s.users.Execute(txCtx, userID,
				func(u *models.User) error { return u.CanAnonymize() },
				func(u *models.User) { u.Anonymize("User requested account deletion", now) },
			); err != nil {
				return wrapUserErr(err)
			}
			if s.keys != nil {
				n, err := s.keys.RevokeAllByCreator(txCtx, userID, cascadeReason, now)
				if err != nil {
					return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke keys")
				}
				revokedKeys = n
			}
			if s.requests != nil {
				n, err := s.requests.CancelAllForUser(txCtx, userID, now)
				if err != nil {
					return dErrors.Wrap(err, dErrors.CodeInternal, "failed to cancel requests")
				}
				cancelledRequests = n
			}
			if s.sessions != nil {
				n, err := s.sessions.RevokeAllForUser(txCtx, userID)
				if err != nil {
					return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke sessions")
				}
				revokedSessions = n
			}

		case DeletionHard:
			// Referencing rows go first; the users row has RESTRICT
			// foreign keys pointing at it.
			if s.keys != nil {
				n, err := s.keys.PurgeUser(txCtx, userID)
				if err != nil {
					return dErrors.Wrap(err, dErrors.CodeInternal, "failed to purge keys")
				}
				revokedKeys = n
			}
			if s.requests != nil {
				n, err := s.requests.PurgeUser(txCtx, userID)
				if err != nil {
					return dErrors.Wrap(err, dErrors.CodeInternal, "failed to purge requests")
				}
				cancelledRequests = n
			}
			if s.sessions != nil {
				n, err := s.sessions.PurgeUser(txCtx, userID)
				if err != nil {
					return dErrors.Wrap(err, dErrors.CodeInternal, "failed to purge sessions")
				}
				revokedSessions = n
			}
			if s.verifications != nil {
				if _, err := s.verifications.PurgeUser(txCtx, userID); err != nil {
					return dErrors.Wrap(err, dErrors.CodeInternal, "failed to purge verifications")
				}
			}
			if err := s.users.Delete(txCtx, userID); err != nil {
				return wrapUserErr(err)
			}
		}

		s.logAudit(txCtx, audit.EventUserDeleted, "user", userID.String(), map[string]any{
			"mode":               string(mode),
			"revoked_keys":       revokedKeys,
			"cancelled_requests": cancelledRequests,
			"revoked_sessions":   revokedSessions,
		})
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.IncrementAccountDeletion(string(mode))
	return nil
}
