package model

import (
	"time"

	"gorm.io/gorm"
)

// User roles. A principal's capability set is entirely determined by
// (role, status, university) — there are no per-user overrides.
const (
	RoleStudent = "STUDENT"
	RoleCaterer = "CATERER"
	RoleManager = "MANAGER"
	RoleAdmin   = "ADMIN"
)

// User account statuses. Accounts are never hard-deleted; rejection is the
// terminal form of removal.
const (
	StatusPending   = "PENDING"
	StatusApproved  = "APPROVED"
	StatusRejected  = "REJECTED"
	StatusSuspended = "SUSPENDED"
)

// User represents a principal stored in the database. UniversityID is
// nullable only for the super-admin concept; every student, caterer and
// manager belongs to exactly one university.
type User struct {
	ID             uint           `json:"id" gorm:"primaryKey"`
	UniversityID   *uint          `json:"university_id,omitempty" gorm:"index"`
	Email          string         `json:"email" gorm:"type:varchar(100);uniqueIndex;not null"`
	Password       string         `json:"-" gorm:"type:varchar(255);not null"`
	Name           string         `json:"name" gorm:"type:varchar(100)"`
	Role           string         `json:"role" gorm:"type:varchar(20);not null;default:'STUDENT'"`
	Status         string         `json:"status" gorm:"type:varchar(20);not null;default:'PENDING'"`
	ForcedLogoutAt *time.Time     `json:"forced_logout_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-" gorm:"index"`
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleStudent, RoleCaterer, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// ValidStatus reports whether status is one of the known account statuses.
func ValidStatus(status string) bool {
	switch status {
	case StatusPending, StatusApproved, StatusRejected, StatusSuspended:
		return true
	}
	return false
}
