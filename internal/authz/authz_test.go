package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"mealorder-service/internal/apperr"
	"mealorder-service/internal/model"
)

func uniPtr(id uint) *uint { return &id }

func TestPermissionMatrix(t *testing.T) {
	auth := New(nil, zap.NewNop())

	student := Principal{UserID: 10, UniversityID: uniPtr(1), Role: model.RoleStudent, Status: model.StatusApproved}
	caterer := Principal{UserID: 20, UniversityID: uniPtr(1), Role: model.RoleCaterer, Status: model.StatusApproved}
	manager := Principal{UserID: 30, UniversityID: uniPtr(1), Role: model.RoleManager, Status: model.StatusApproved}
	admin := Principal{UserID: 40, Role: model.RoleAdmin, Status: model.StatusApproved}

	ownOrder := Resource{Type: "order", ID: 5, UniversityID: 1, OwnerUserID: 10}
	peerOrder := Resource{Type: "order", ID: 6, UniversityID: 1, OwnerUserID: 11}
	foreignOrder := Resource{Type: "order", ID: 7, UniversityID: 2, OwnerUserID: 99}
	ownMenu := Resource{Type: "menu", UniversityID: 1}
	foreignMenu := Resource{Type: "menu", UniversityID: 2}
	session := Resource{Type: "session"}

	cases := []struct {
		name    string
		p       Principal
		op      string
		res     Resource
		allowed bool
	}{
		{"student lists own menu", student, OpListMenu, ownMenu, true},
		{"student cannot list foreign menu", student, OpListMenu, foreignMenu, false},
		{"student creates order at own university", student, OpCreateOrder, ownMenu, true},
		{"student reads own order", student, OpReadOrder, ownOrder, true},
		{"student cannot read peer order", student, OpReadOrder, peerOrder, false},
		{"student cancels own order", student, OpCancelOrder, ownOrder, true},
		{"student cannot transition orders", student, OpTransitionOrder, ownOrder, false},
		{"student cannot manage menu", student, OpManageMenu, ownMenu, false},

		{"caterer serves tenant order", caterer, OpServeOrder, peerOrder, true},
		{"caterer cannot serve foreign order", caterer, OpServeOrder, foreignOrder, false},
		{"caterer reads tenant order", caterer, OpReadOrder, peerOrder, true},
		{"caterer cannot transition orders", caterer, OpTransitionOrder, peerOrder, false},
		{"caterer cannot manage menu", caterer, OpManageMenu, ownMenu, false},

		{"manager manages tenant menu", manager, OpManageMenu, ownMenu, true},
		{"manager transitions tenant order", manager, OpTransitionOrder, peerOrder, true},
		{"manager cannot touch foreign tenant", manager, OpTransitionOrder, foreignOrder, false},
		{"manager manages tenant users", manager, OpManageUsers, Resource{Type: "user", UniversityID: 1}, true},
		{"manager cannot force logout", manager, OpForceLogout, session, false},

		{"admin crosses tenants", admin, OpTransitionOrder, foreignOrder, true},
		{"admin manages any menu", admin, OpManageMenu, foreignMenu, true},
		{"admin forces logout", admin, OpForceLogout, session, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := auth.Can(tc.p, tc.op, tc.res)
			if tc.allowed {
				assert.NoError(t, err)
			} else {
				assert.True(t, apperr.IsKind(err, apperr.KindAccessDenied), "got %v", err)
			}
		})
	}
}

func TestUnapprovedAccountsDenied(t *testing.T) {
	auth := New(nil, zap.NewNop())
	res := Resource{Type: "menu", UniversityID: 1}

	for _, status := range []string{model.StatusPending, model.StatusRejected, model.StatusSuspended} {
		p := Principal{UserID: 1, UniversityID: uniPtr(1), Role: model.RoleManager, Status: status}
		err := auth.Can(p, OpListMenu, res)
		assert.True(t, apperr.IsKind(err, apperr.KindAccessDenied), "status %s should be denied", status)
	}
}

func TestDeniedErrorCarriesOperation(t *testing.T) {
	auth := New(nil, zap.NewNop())
	p := Principal{UserID: 1, UniversityID: uniPtr(1), Role: model.RoleStudent, Status: model.StatusApproved}

	err := auth.Can(p, OpManageMenu, Resource{Type: "menu", UniversityID: 1})
	ae := err.(*apperr.Error)
	assert.Equal(t, OpManageMenu, ae.Fields["operation"])
	assert.Equal(t, "menu", ae.Fields["resource_type"])
}
