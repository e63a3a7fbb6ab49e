// Package session holds the revocation ledger that lets an admin invalidate
// every active student session at once. The ledger is consulted at
// credential validation, outside the ordering engine's transactions.
package session

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"mealorder-service/internal/authz"
	"mealorder-service/internal/model"
	"mealorder-service/pkg/cache"
)

const (
	cutoffCacheKey = "session:student_revocation_cut"
	cutoffCacheTTL = 30 * time.Second
)

// Ledger records and answers student-session revocations.
type Ledger struct {
	db   *gorm.DB
	auth *authz.Authority
	log  *zap.Logger
}

// NewLedger creates a revocation ledger.
func NewLedger(db *gorm.DB, auth *authz.Authority, log *zap.Logger) *Ledger {
	return &Ledger{db: db, auth: auth, log: log}
}

// ForceLogoutAllStudents appends a revocation entry invalidating every
// student credential issued before now. The revocation is deliberately
// coarse: it cannot be scoped to fewer than all students.
func (l *Ledger) ForceLogoutAllStudents(p authz.Principal, reason string) (*model.RevocationEvent, error) {
	if err := l.auth.Can(p, authz.OpForceLogout, authz.Resource{Type: "session"}); err != nil {
		return nil, err
	}

	now := time.Now()
	event := model.RevocationEvent{
		ActorID:      p.UserID,
		Reason:       reason,
		IssuedBefore: now,
	}

	err := l.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&model.User{}).
			Where("role = ?", model.RoleStudent).
			Update("forced_logout_at", now)
		if result.Error != nil {
			return fmt.Errorf("session: stamp forced logout: %w", result.Error)
		}
		event.AffectedCount = result.RowsAffected

		if err := tx.Create(&event).Error; err != nil {
			return fmt.Errorf("session: record revocation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := cache.Del(cutoffCacheKey); err != nil {
		l.log.Warn("Failed to drop cached revocation cut", zap.Error(err))
	}

	l.log.Info("All student sessions revoked",
		zap.Uint("actor_id", p.UserID),
		zap.String("reason", reason),
		zap.Int64("affected_count", event.AffectedCount),
		zap.Time("issued_before", event.IssuedBefore))

	return &event, nil
}

// StudentCutoff returns the latest revocation cut for student credentials.
// A credential whose issue time predates the cut is invalid regardless of
// its own expiry. The cut is cached briefly to keep the validation path off
// the database.
func (l *Ledger) StudentCutoff() (time.Time, bool) {
	var cached time.Time
	if cache.Get(cutoffCacheKey, &cached) {
		return cached, !cached.IsZero()
	}

	var event model.RevocationEvent
	err := l.db.Order("issued_before DESC").First(&event).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			l.log.Error("Failed to read revocation ledger", zap.Error(err))
		}
		_ = cache.Set(cutoffCacheKey, time.Time{}, cutoffCacheTTL)
		return time.Time{}, false
	}

	_ = cache.Set(cutoffCacheKey, event.IssuedBefore, cutoffCacheTTL)
	return event.IssuedBefore, true
}

// Revoked reports whether a student credential issued at issuedAt has been
// invalidated by the ledger.
func (l *Ledger) Revoked(role string, issuedAt time.Time) bool {
	if role != model.RoleStudent {
		return false
	}
	cut, ok := l.StudentCutoff()
	if !ok {
		return false
	}
	return issuedAt.Before(cut)
}
