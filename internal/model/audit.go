package model

import "time"

// AuthzAuditLog records every authorization decision with enough context to
// support audit queries. Rows are append-only.
type AuthzAuditLog struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	ActorID      uint      `json:"actor_id" gorm:"index;not null"`
	ActorRole    string    `json:"actor_role" gorm:"type:varchar(20);not null"`
	UniversityID *uint     `json:"university_id,omitempty" gorm:"index"`
	Operation    string    `json:"operation" gorm:"type:varchar(64);not null"`
	ResourceType string    `json:"resource_type" gorm:"type:varchar(32)"`
	ResourceID   uint      `json:"resource_id"`
	Allowed      bool      `json:"allowed"`
	CreatedAt    time.Time `json:"created_at" gorm:"index"`
}

// RevocationEvent is one entry in the session revocation ledger. Any student
// credential issued before IssuedBefore is invalid regardless of its own
// expiry. The ledger is append-only and consulted at credential validation,
// outside the ordering engine's transactional boundary.
type RevocationEvent struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	ActorID       uint      `json:"actor_id" gorm:"not null"`
	Reason        string    `json:"reason" gorm:"type:text"`
	AffectedCount int64     `json:"affected_count"`
	IssuedBefore  time.Time `json:"issued_before" gorm:"index;not null"`
	CreatedAt     time.Time `json:"created_at"`
}
