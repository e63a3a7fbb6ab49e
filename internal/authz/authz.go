// Package authz is the single place the role/tenant permission matrix is
// defined. Handlers and the order lifecycle consult it instead of checking
// roles inline, and every decision is recorded for audit queries.
package authz

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mealorder-service/internal/apperr"
	"mealorder-service/internal/model"
)

// Principal is the trusted tuple handed over by the auth layer.
type Principal struct {
	UserID       uint
	UniversityID *uint
	Role         string
	Status       string
}

// Resource describes the target of an operation.
type Resource struct {
	Type         string
	ID           uint
	UniversityID uint
	OwnerUserID  uint
}

// Operation names used for audit records.
const (
	OpManageMenu      = "menu.manage"
	OpListMenu        = "menu.list"
	OpCreateOrder     = "order.create"
	OpReadOrder       = "order.read"
	OpTransitionOrder = "order.transition"
	OpCancelOrder     = "order.cancel"
	OpServeOrder      = "order.serve"
	OpManageUsers     = "user.manage"
	OpForceLogout     = "session.force_logout"
)

// Authority answers "may this principal perform op on this resource?".
type Authority struct {
	db  *gorm.DB
	log *zap.Logger
}

// New creates an Authority backed by the given database for audit records.
func New(db *gorm.DB, log *zap.Logger) *Authority {
	return &Authority{db: db, log: log}
}

// Can returns nil when the principal may perform op on res, or an
// AccessDenied error otherwise. The decision is logged either way.
func (a *Authority) Can(p Principal, op string, res Resource) error {
	allowed := a.decide(p, op, res)
	a.audit(p, op, res, allowed)
	if !allowed {
		return apperr.New(apperr.KindAccessDenied, "access denied").
			WithField("operation", op).
			WithField("resource_type", res.Type)
	}
	return nil
}

func (a *Authority) decide(p Principal, op string, res Resource) bool {
	// Only approved accounts act at all.
	if p.Status != model.StatusApproved {
		return false
	}

	switch p.Role {
	case model.RoleAdmin:
		// Admins operate across universities.
		return true
	case model.RoleManager:
		return a.sameUniversity(p, res)
	case model.RoleCaterer:
		// Caterers are tenant-scoped and only drive the serve workflow
		// plus reads of their university's orders and menu.
		switch op {
		case OpServeOrder, OpReadOrder, OpListMenu:
			return a.sameUniversity(p, res)
		}
		return false
	case model.RoleStudent:
		// Students act only on what they own; listing the menu is scoped
		// to their own university.
		switch op {
		case OpListMenu, OpCreateOrder:
			return a.sameUniversity(p, res)
		case OpReadOrder, OpCancelOrder:
			return res.OwnerUserID == p.UserID
		}
		return false
	}
	return false
}

func (a *Authority) sameUniversity(p Principal, res Resource) bool {
	return p.UniversityID != nil && *p.UniversityID == res.UniversityID
}

func (a *Authority) audit(p Principal, op string, res Resource, allowed bool) {
	entry := model.AuthzAuditLog{
		ActorID:      p.UserID,
		ActorRole:    p.Role,
		UniversityID: p.UniversityID,
		Operation:    op,
		ResourceType: res.Type,
		ResourceID:   res.ID,
		Allowed:      allowed,
	}
	if a.db != nil {
		if err := a.db.Create(&entry).Error; err != nil {
			a.log.Error("Failed to write authz audit record", zap.Error(err))
		}
	}
	a.log.Debug("Authorization decision",
		zap.Uint("actor_id", p.UserID),
		zap.String("role", p.Role),
		zap.String("operation", op),
		zap.String("resource_type", res.Type),
		zap.Uint("resource_id", res.ID),
		zap.Bool("allowed", allowed),
	)
}
