package model

import (
	"time"

	"gorm.io/gorm"
)

// OrderingSettings holds the per-university ordering rules. They are read on
// every order creation, so they live as typed columns on the university row
// rather than an opaque settings blob.
type OrderingSettings struct {
	CutoffHour         int     `json:"cutoff_hour" gorm:"default:22"`
	MinAdvanceHours    int     `json:"min_advance_hours" gorm:"default:8"`
	MaxAdvanceDays     int     `json:"max_advance_days" gorm:"default:7"`
	AllowWeekendOrders bool    `json:"allow_weekend_orders" gorm:"default:true"`
	TaxRate            float64 `json:"tax_rate" gorm:"default:0"`
	Timezone           string  `json:"timezone" gorm:"type:varchar(64);default:'Asia/Kolkata'"`
}

// University represents a partner university. It is the tenant boundary:
// users, menu items and orders are all scoped to exactly one university.
type University struct {
	ID        uint             `json:"id" gorm:"primaryKey"`
	Code      string           `json:"code" gorm:"type:varchar(32);uniqueIndex;not null"`
	Name      string           `json:"name" gorm:"type:varchar(150);not null"`
	Active    bool             `json:"active" gorm:"default:true"`
	Ordering  OrderingSettings `json:"ordering_settings" gorm:"embedded;embeddedPrefix:ordering_"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	DeletedAt gorm.DeletedAt   `json:"-" gorm:"index"`
}
