package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"mealorder-service/internal/apperr"
	"mealorder-service/internal/authz"
	"mealorder-service/internal/model"
)

func newTestLedger(t *testing.T) (*Ledger, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{},
		&model.RevocationEvent{},
		&model.AuthzAuditLog{},
	))
	log := zap.NewNop()
	return NewLedger(db, authz.New(db, log), log), db
}

func seedUsers(t *testing.T, db *gorm.DB) {
	t.Helper()
	uni := uint(1)
	users := []model.User{
		{UniversityID: &uni, Email: "s1@example.com", Password: "x", Role: model.RoleStudent, Status: model.StatusApproved},
		{UniversityID: &uni, Email: "s2@example.com", Password: "x", Role: model.RoleStudent, Status: model.StatusApproved},
		{UniversityID: &uni, Email: "chef@example.com", Password: "x", Role: model.RoleCaterer, Status: model.StatusApproved},
	}
	for i := range users {
		require.NoError(t, db.Create(&users[i]).Error)
	}
}

func adminPrincipal() authz.Principal {
	return authz.Principal{UserID: 99, Role: model.RoleAdmin, Status: model.StatusApproved}
}

func TestForceLogoutAllStudents(t *testing.T) {
	ledger, db := newTestLedger(t)
	seedUsers(t, db)

	event, err := ledger.ForceLogoutAllStudents(adminPrincipal(), "exam week lockdown")
	require.NoError(t, err)
	assert.Equal(t, int64(2), event.AffectedCount)
	assert.Equal(t, "exam week lockdown", event.Reason)
	assert.False(t, event.IssuedBefore.IsZero())

	// Only students were stamped; the caterer keeps their session.
	var stamped int64
	db.Model(&model.User{}).Where("forced_logout_at IS NOT NULL").Count(&stamped)
	assert.Equal(t, int64(2), stamped)

	var caterer model.User
	require.NoError(t, db.Where("email = ?", "chef@example.com").First(&caterer).Error)
	assert.Nil(t, caterer.ForcedLogoutAt)
}

func TestForceLogoutDeniedForNonAdmins(t *testing.T) {
	ledger, db := newTestLedger(t)
	seedUsers(t, db)

	uni := uint(1)
	manager := authz.Principal{UserID: 5, UniversityID: &uni,
		Role: model.RoleManager, Status: model.StatusApproved}

	_, err := ledger.ForceLogoutAllStudents(manager, "trying anyway")
	require.True(t, apperr.IsKind(err, apperr.KindAccessDenied))

	var events int64
	db.Model(&model.RevocationEvent{}).Count(&events)
	assert.Equal(t, int64(0), events)
}

func TestRevokedAppliesOnlyToStudentCredentials(t *testing.T) {
	ledger, db := newTestLedger(t)
	seedUsers(t, db)

	// No revocation yet: nothing is revoked.
	assert.False(t, ledger.Revoked(model.RoleStudent, time.Now().Add(-time.Hour)))

	event, err := ledger.ForceLogoutAllStudents(adminPrincipal(), "lockdown")
	require.NoError(t, err)

	before := event.IssuedBefore.Add(-time.Minute)
	after := event.IssuedBefore.Add(time.Minute)

	assert.True(t, ledger.Revoked(model.RoleStudent, before))
	assert.False(t, ledger.Revoked(model.RoleStudent, after))

	// Staff credentials are never touched by the student ledger.
	assert.False(t, ledger.Revoked(model.RoleCaterer, before))
	assert.False(t, ledger.Revoked(model.RoleManager, before))
	assert.False(t, ledger.Revoked(model.RoleAdmin, before))
}

func TestStudentCutoffTakesLatestEvent(t *testing.T) {
	ledger, db := newTestLedger(t)
	seedUsers(t, db)

	first, err := ledger.ForceLogoutAllStudents(adminPrincipal(), "first")
	require.NoError(t, err)
	second, err := ledger.ForceLogoutAllStudents(adminPrincipal(), "second")
	require.NoError(t, err)
	require.True(t, second.IssuedBefore.After(first.IssuedBefore) ||
		second.IssuedBefore.Equal(first.IssuedBefore))

	cut, ok := ledger.StudentCutoff()
	require.True(t, ok)
	assert.WithinDuration(t, second.IssuedBefore, cut, time.Second)

	var events int64
	db.Model(&model.RevocationEvent{}).Count(&events)
	assert.Equal(t, int64(2), events)
}
