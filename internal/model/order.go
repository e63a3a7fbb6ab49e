package model

import (
	"time"

	"gorm.io/gorm"
)

// Order statuses. SERVED, REJECTED and CANCELLED are terminal.
const (
	OrderPending   = "PENDING"
	OrderApproved  = "APPROVED"
	OrderPreparing = "PREPARING"
	OrderReady     = "READY"
	OrderServed    = "SERVED"
	OrderRejected  = "REJECTED"
	OrderCancelled = "CANCELLED"
)

// Payment statuses. Gateway integration is out of scope; the field records
// state handed over by whatever settles payment.
const (
	PaymentPending = "PENDING"
	PaymentPaid    = "PAID"
)

// TerminalStatus reports whether no further transition is permitted.
func TerminalStatus(status string) bool {
	switch status {
	case OrderServed, OrderRejected, OrderCancelled:
		return true
	}
	return false
}

// Order is a student's meal pre-order for a specific date. Amounts are
// captured at creation and never recomputed. RejectionReason is its own
// column rather than an annotation inside the instructions text.
type Order struct {
	ID                  uint           `json:"id" gorm:"primaryKey"`
	OrderNumber         string         `json:"order_number" gorm:"type:varchar(32);uniqueIndex;not null"`
	UniversityID        uint           `json:"university_id" gorm:"index;not null"`
	UserID              uint           `json:"user_id" gorm:"index;not null"`
	OrderDate           string         `json:"order_date" gorm:"type:varchar(10);index;not null"`
	Status              string         `json:"status" gorm:"type:varchar(20);not null;default:'PENDING'"`
	PaymentStatus       string         `json:"payment_status" gorm:"type:varchar(20);not null;default:'PENDING'"`
	Subtotal            float64        `json:"subtotal" gorm:"not null;default:0"`
	TaxAmount           float64        `json:"tax_amount" gorm:"not null;default:0"`
	TotalAmount         float64        `json:"total_amount" gorm:"not null;default:0"`
	SpecialInstructions string         `json:"special_instructions" gorm:"type:text"`
	RejectionReason     string         `json:"rejection_reason,omitempty" gorm:"type:text"`
	CompletedAt         *time.Time     `json:"completed_at,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
	DeletedAt           gorm.DeletedAt `json:"-" gorm:"index"`

	Items []OrderItem `json:"items,omitempty" gorm:"foreignKey:OrderID"`
}

// OrderItem is one line of an order. UnitPrice is the historical price at
// order time; MenuVariantID may reference a variant that has since been
// replaced.
type OrderItem struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	OrderID       uint      `json:"order_id" gorm:"index;not null"`
	MenuItemID    uint      `json:"menu_item_id" gorm:"index;not null"`
	MenuVariantID *uint     `json:"menu_variant_id,omitempty"`
	Quantity      int       `json:"quantity" gorm:"not null"`
	UnitPrice     float64   `json:"unit_price" gorm:"not null"`
	CreatedAt     time.Time `json:"created_at"`
}
