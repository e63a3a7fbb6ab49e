// Package catalog is the menu item, variant and per-date availability store.
package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"mealorder-service/internal/apperr"
	"mealorder-service/internal/model"
	"mealorder-service/pkg/cache"
)

// invalidationWindowDays bounds how many per-date listing cache keys a
// mutation drops. Dates further out simply expire by TTL.
const invalidationWindowDays = 14

// VariantDraft describes one variant in an item draft.
type VariantDraft struct {
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	IsDefault bool    `json:"is_default"`
}

// ItemDraft carries the fields for creating or updating a menu item.
// Saving a draft replaces the item's whole variant set.
type ItemDraft struct {
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	BasePrice    float64        `json:"base_price"`
	Categories   []string       `json:"categories"`
	DietaryFlags []string       `json:"dietary_flags"`
	Variants     []VariantDraft `json:"variants"`
}

// Filters narrows a listing.
type Filters struct {
	Category string
	Dietary  string
}

// ListedItem is one row of an availability listing, carrying the unit price
// already resolved from the default variant.
type ListedItem struct {
	ID           uint                `json:"id"`
	Name         string              `json:"name"`
	Description  string              `json:"description"`
	Categories   []string            `json:"categories"`
	DietaryFlags []string            `json:"dietary_flags"`
	UnitPrice    float64             `json:"unit_price"`
	Variants     []model.MenuVariant `json:"variants"`
	RemainingQty int                 `json:"remaining_quantity"` // -1 means uncapped
}

// Resolved is the outcome of resolving an item+variant to a price.
type Resolved struct {
	MenuItemID    uint
	MenuVariantID *uint
	UnitPrice     float64
}

// Service implements the catalog and availability operations.
type Service struct {
	db              *gorm.DB
	log             *zap.Logger
	listingCacheTTL time.Duration
	provisionDays   int
	defaultDailyCap int
	now             func() time.Time
}

// New creates a catalog service.
func New(db *gorm.DB, log *zap.Logger, cacheTTL time.Duration, provisionDays, defaultDailyCap int) *Service {
	return &Service{
		db:              db,
		log:             log,
		listingCacheTTL: cacheTTL,
		provisionDays:   provisionDays,
		defaultDailyCap: defaultDailyCap,
		now:             time.Now,
	}
}

// WithClock overrides the service clock; used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ListAvailableItems returns the active items of a university that are
// sellable on the given date. An item with no availability record for the
// date is available and uncapped. Listings are served from a short-TTL
// cache; staleness within the TTL is acceptable here, never for writes.
func (s *Service) ListAvailableItems(universityID uint, date string, filters Filters) ([]ListedItem, error) {
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return nil, apperr.Newf(apperr.KindValidation, "invalid date %q, expected YYYY-MM-DD", date)
	}

	key := listingKey(universityID, date)
	var listing []ListedItem
	if cache.Get(key, &listing) {
		return applyFilters(listing, filters), nil
	}

	var items []model.MenuItem
	err := s.db.
		Where("university_id = ? AND active = ?", universityID, true).
		Preload("Variants", "active = ?", true).
		Preload("Availability", "date = ?", date).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("catalog: list items: %w", err)
	}

	listing = make([]ListedItem, 0, len(items))
	for _, item := range items {
		remaining := -1
		if len(item.Availability) > 0 {
			rec := item.Availability[0]
			if !rec.IsAvailable {
				continue
			}
			if rec.MaxQuantity > 0 {
				remaining = rec.MaxQuantity - rec.CurrentQuantity
				if remaining < 0 {
					remaining = 0
				}
			}
		}

		listing = append(listing, ListedItem{
			ID:           item.ID,
			Name:         item.Name,
			Description:  item.Description,
			Categories:   decodeJSONList(item.Categories),
			DietaryFlags: decodeJSONList(item.DietaryFlags),
			UnitPrice:    resolvedPrice(item),
			Variants:     item.Variants,
			RemainingQty: remaining,
		})
	}

	if err := cache.Set(key, listing, s.listingCacheTTL); err != nil {
		s.log.Warn("Failed to cache menu listing", zap.Error(err))
	}

	return applyFilters(listing, filters), nil
}

// CreateItem validates and persists a new menu item with its variants, and
// provisions availability records for the coming days with the default cap.
func (s *Service) CreateItem(universityID uint, draft ItemDraft) (*model.MenuItem, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	item := model.MenuItem{
		UniversityID: universityID,
		Name:         draft.Name,
		Description:  draft.Description,
		BasePrice:    draft.BasePrice,
		Categories:   encodeJSONList(draft.Categories),
		DietaryFlags: encodeJSONList(draft.DietaryFlags),
		Active:       true,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&item).Error; err != nil {
			return fmt.Errorf("catalog: create item: %w", err)
		}
		if err := createVariants(tx, item.ID, draft.Variants); err != nil {
			return err
		}

		// Convenience default so newly created items are orderable right
		// away; managers adjust caps per date afterwards.
		today := s.now()
		for d := 0; d < s.provisionDays; d++ {
			rec := model.AvailabilityRecord{
				MenuItemID:  item.ID,
				Date:        today.AddDate(0, 0, d).Format(model.DateLayout),
				IsAvailable: true,
				MaxQuantity: s.defaultDailyCap,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return fmt.Errorf("catalog: provision availability: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateListing(universityID)
	s.log.Info("Menu item created",
		zap.Uint("item_id", item.ID),
		zap.Uint("university_id", universityID),
		zap.String("name", item.Name))

	if err := s.db.Preload("Variants").First(&item, item.ID).Error; err != nil {
		return nil, fmt.Errorf("catalog: reload item: %w", err)
	}
	return &item, nil
}

// UpdateItem validates and applies a draft to an existing item. The variant
// set is replaced wholesale; old variant rows are soft-deleted so order
// lines referencing them stay resolvable in history.
func (s *Service) UpdateItem(id uint, draft ItemDraft) (*model.MenuItem, error) {
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	var item model.MenuItem
	if err := s.db.First(&item, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.Newf(apperr.KindNotFound, "menu item %d not found", id)
		}
		return nil, fmt.Errorf("catalog: load item: %w", err)
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		item.Name = draft.Name
		item.Description = draft.Description
		item.BasePrice = draft.BasePrice
		item.Categories = encodeJSONList(draft.Categories)
		item.DietaryFlags = encodeJSONList(draft.DietaryFlags)
		if err := tx.Save(&item).Error; err != nil {
			return fmt.Errorf("catalog: update item: %w", err)
		}

		if err := tx.Where("menu_item_id = ?", item.ID).Delete(&model.MenuVariant{}).Error; err != nil {
			return fmt.Errorf("catalog: delete variants: %w", err)
		}
		return createVariants(tx, item.ID, draft.Variants)
	})
	if err != nil {
		return nil, err
	}

	s.invalidateListing(item.UniversityID)
	s.log.Info("Menu item updated", zap.Uint("item_id", item.ID), zap.String("name", item.Name))

	if err := s.db.Preload("Variants", "active = ?", true).First(&item, item.ID).Error; err != nil {
		return nil, fmt.Errorf("catalog: reload item: %w", err)
	}
	return &item, nil
}

// SetActive toggles an item's active flag. History is never removed.
func (s *Service) SetActive(id uint, active bool) error {
	var item model.MenuItem
	if err := s.db.First(&item, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperr.Newf(apperr.KindNotFound, "menu item %d not found", id)
		}
		return fmt.Errorf("catalog: load item: %w", err)
	}

	if err := s.db.Model(&item).Update("active", active).Error; err != nil {
		return fmt.Errorf("catalog: set active: %w", err)
	}

	s.invalidateListing(item.UniversityID)
	s.log.Info("Menu item active flag changed",
		zap.Uint("item_id", id), zap.Bool("active", active))
	return nil
}

// SetAvailability upserts the availability record for an item on a date.
func (s *Service) SetAvailability(itemID uint, date string, isAvailable bool, maxQuantity int) (*model.AvailabilityRecord, error) {
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return nil, apperr.Newf(apperr.KindValidation, "invalid date %q, expected YYYY-MM-DD", date)
	}
	if maxQuantity < 0 {
		return nil, apperr.New(apperr.KindValidation, "max_quantity must not be negative")
	}

	var item model.MenuItem
	if err := s.db.First(&item, itemID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.Newf(apperr.KindNotFound, "menu item %d not found", itemID)
		}
		return nil, fmt.Errorf("catalog: load item: %w", err)
	}

	var rec model.AvailabilityRecord
	err := s.db.Where("menu_item_id = ? AND date = ?", itemID, date).First(&rec).Error
	switch err {
	case nil:
		rec.IsAvailable = isAvailable
		rec.MaxQuantity = maxQuantity
		if err := s.db.Save(&rec).Error; err != nil {
			return nil, fmt.Errorf("catalog: update availability: %w", err)
		}
	case gorm.ErrRecordNotFound:
		rec = model.AvailabilityRecord{
			MenuItemID:  itemID,
			Date:        date,
			IsAvailable: isAvailable,
			MaxQuantity: maxQuantity,
		}
		if err := s.db.Create(&rec).Error; err != nil {
			return nil, fmt.Errorf("catalog: create availability: %w", err)
		}
	default:
		return nil, fmt.Errorf("catalog: load availability: %w", err)
	}

	s.invalidateListing(item.UniversityID)
	return &rec, nil
}

// ResolveVariant resolves an item and optional variant to the unit price an
// order line should capture. A nil variantID selects the item's default
// variant, falling back to the base price when no default exists.
func (s *Service) ResolveVariant(itemID uint, variantID *uint) (*Resolved, error) {
	var item model.MenuItem
	err := s.db.Preload("Variants", "active = ?", true).First(&item, itemID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.Newf(apperr.KindNotFound, "menu item %d not found", itemID)
		}
		return nil, fmt.Errorf("catalog: load item: %w", err)
	}
	if !item.Active {
		return nil, apperr.Newf(apperr.KindNotFound, "menu item %d is not active", itemID)
	}

	if variantID != nil {
		for _, v := range item.Variants {
			if v.ID == *variantID {
				id := v.ID
				return &Resolved{MenuItemID: item.ID, MenuVariantID: &id, UnitPrice: v.Price}, nil
			}
		}
		return nil, apperr.Newf(apperr.KindNotFound, "variant %d not found on menu item %d", *variantID, itemID)
	}

	for _, v := range item.Variants {
		if v.IsDefault {
			id := v.ID
			return &Resolved{MenuItemID: item.ID, MenuVariantID: &id, UnitPrice: v.Price}, nil
		}
	}

	// No default variant; the create/update invariant should prevent this,
	// but historical rows fall back to the base price.
	return &Resolved{MenuItemID: item.ID, UnitPrice: item.BasePrice}, nil
}

// ItemUniversity returns the owning university of an item.
func (s *Service) ItemUniversity(itemID uint) (uint, error) {
	var item model.MenuItem
	if err := s.db.Select("id", "university_id").First(&item, itemID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, apperr.Newf(apperr.KindNotFound, "menu item %d not found", itemID)
		}
		return 0, fmt.Errorf("catalog: load item: %w", err)
	}
	return item.UniversityID, nil
}

func createVariants(tx *gorm.DB, itemID uint, drafts []VariantDraft) error {
	for _, d := range drafts {
		variant := model.MenuVariant{
			MenuItemID: itemID,
			Name:       d.Name,
			Price:      d.Price,
			IsDefault:  d.IsDefault,
			Active:     true,
		}
		if err := tx.Create(&variant).Error; err != nil {
			return fmt.Errorf("catalog: create variant: %w", err)
		}
	}
	return nil
}

// validateDraft checks a draft and reports every problem at once rather
// than stopping at the first.
func validateDraft(draft ItemDraft) error {
	errs := make(map[string]interface{})

	if strings.TrimSpace(draft.Name) == "" {
		errs["name"] = "name is required"
	}
	if draft.BasePrice < 0 {
		errs["base_price"] = "base price must not be negative"
	}

	var invalid []string
	for _, c := range draft.Categories {
		if !model.ValidCategory(c) {
			invalid = append(invalid, c)
		}
	}
	if len(invalid) > 0 {
		errs["categories"] = invalid
	}

	if len(draft.Variants) == 0 {
		errs["variants"] = "at least one variant is required"
	} else {
		defaults := 0
		for i, v := range draft.Variants {
			if strings.TrimSpace(v.Name) == "" {
				errs[fmt.Sprintf("variants[%d].name", i)] = "variant name is required"
			}
			if v.Price < 0 {
				errs[fmt.Sprintf("variants[%d].price", i)] = "variant price must not be negative"
			}
			if v.IsDefault {
				defaults++
			}
		}
		if defaults != 1 {
			errs["variants"] = fmt.Sprintf("exactly one variant must be flagged default, got %d", defaults)
		}
	}

	if len(errs) > 0 {
		e := apperr.New(apperr.KindValidation, "menu item draft is invalid")
		e.Fields = errs
		return e
	}
	return nil
}

func resolvedPrice(item model.MenuItem) float64 {
	for _, v := range item.Variants {
		if v.IsDefault {
			return v.Price
		}
	}
	return item.BasePrice
}

func applyFilters(listing []ListedItem, filters Filters) []ListedItem {
	if filters.Category == "" && filters.Dietary == "" {
		return listing
	}
	out := make([]ListedItem, 0, len(listing))
	for _, li := range listing {
		if filters.Category != "" && !contains(li.Categories, filters.Category) {
			continue
		}
		if filters.Dietary != "" && !contains(li.DietaryFlags, filters.Dietary) {
			continue
		}
		out = append(out, li)
	}
	return out
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func encodeJSONList(values []string) datatypes.JSON {
	if values == nil {
		values = []string{}
	}
	raw, _ := json.Marshal(values)
	return datatypes.JSON(raw)
}

func decodeJSONList(raw datatypes.JSON) []string {
	var values []string
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &values)
	}
	if values == nil {
		values = []string{}
	}
	return values
}

func listingKey(universityID uint, date string) string {
	return fmt.Sprintf("catalog:%d:%s", universityID, date)
}

func (s *Service) invalidateListing(universityID uint) {
	keys := make([]string, 0, invalidationWindowDays)
	today := s.now()
	for d := 0; d < invalidationWindowDays; d++ {
		keys = append(keys, listingKey(universityID, today.AddDate(0, 0, d).Format(model.DateLayout)))
	}
	if err := cache.Del(keys...); err != nil {
		s.log.Warn("Failed to invalidate menu listing cache", zap.Error(err))
	}
}
