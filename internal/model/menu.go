package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Menu categories. A menu item may belong to several at once.
const (
	CategoryBreakfast = "BREAKFAST"
	CategoryLunch     = "LUNCH"
	CategoryDinner    = "DINNER"
	CategorySnacks    = "SNACKS"
	CategoryBeverages = "BEVERAGES"
)

// MenuCategories lists every valid category value.
var MenuCategories = []string{
	CategoryBreakfast, CategoryLunch, CategoryDinner, CategorySnacks, CategoryBeverages,
}

// ValidCategory reports whether category is one of the known values.
func ValidCategory(category string) bool {
	for _, c := range MenuCategories {
		if c == category {
			return true
		}
	}
	return false
}

// MenuItem represents a dish on a university's menu. Categories and dietary
// flags are multi-valued and stored as JSON columns. Deactivation is a soft
// delete surface: the row and its order history are never removed.
type MenuItem struct {
	ID           uint           `json:"id" gorm:"primaryKey"`
	UniversityID uint           `json:"university_id" gorm:"index;not null"`
	Name         string         `json:"name" gorm:"type:varchar(150);not null"`
	Description  string         `json:"description" gorm:"type:text"`
	BasePrice    float64        `json:"base_price" gorm:"not null;default:0"`
	Categories   datatypes.JSON `json:"categories" gorm:"type:jsonb"`
	DietaryFlags datatypes.JSON `json:"dietary_flags" gorm:"type:jsonb"`
	Active       bool           `json:"active" gorm:"default:true"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`

	Variants     []MenuVariant        `json:"variants,omitempty" gorm:"foreignKey:MenuItemID"`
	Availability []AvailabilityRecord `json:"availability,omitempty" gorm:"foreignKey:MenuItemID"`
}

// MenuVariant is a priced sub-option of a menu item (half/full portion,
// size). Exactly one active variant per item carries IsDefault. Replacing a
// variant set recreates the rows; order lines keep the old variant IDs.
type MenuVariant struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	MenuItemID uint           `json:"menu_item_id" gorm:"index;not null"`
	Name       string         `json:"name" gorm:"type:varchar(100);not null"`
	Price      float64        `json:"price" gorm:"not null;default:0"`
	IsDefault  bool           `json:"is_default" gorm:"default:false"`
	Active     bool           `json:"active" gorm:"default:true"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`
}

// DateLayout is the wire and storage format for order dates.
const DateLayout = "2006-01-02"

// AvailabilityRecord overrides sellability and quantity cap for one item on
// one date. Absence of a record means available and uncapped. MaxQuantity 0
// also means uncapped. CurrentQuantity counts reserved portions and is only
// mutated with a conditional update inside the order-creation transaction.
type AvailabilityRecord struct {
	ID              uint      `json:"id" gorm:"primaryKey"`
	MenuItemID      uint      `json:"menu_item_id" gorm:"uniqueIndex:idx_item_date;not null"`
	Date            string    `json:"date" gorm:"type:varchar(10);uniqueIndex:idx_item_date;not null"`
	IsAvailable     bool      `json:"is_available" gorm:"default:true"`
	MaxQuantity     int       `json:"max_quantity" gorm:"default:0"`
	CurrentQuantity int       `json:"current_quantity" gorm:"default:0"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
