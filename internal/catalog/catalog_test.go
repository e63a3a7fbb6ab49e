package catalog

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
	"mealorder-service/internal/model"
)

var testNow = time.Date(2026, 9, 3, 10, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.MenuItem{},
		&model.MenuVariant{},
		&model.AvailabilityRecord{},
	))
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := New(openTestDB(t), zap.NewNop(), time.Minute, 3, 10)
	return svc.WithClock(func() time.Time { return testNow })
}

func validItemDraft() ItemDraft {
	return ItemDraft{
		Name:       "Masala Dosa",
		BasePrice:  40,
		Categories: []string{model.CategoryBreakfast},
		Variants: []VariantDraft{
			{Name: "Regular", Price: 45, IsDefault: true},
			{Name: "Large", Price: 60},
		},
	}
}

func TestCreateItemProvisionsAvailability(t *testing.T) {
	svc := newTestService(t)

	item, err := svc.CreateItem(1, validItemDraft())
	require.NoError(t, err)
	assert.True(t, item.Active)
	assert.Len(t, item.Variants, 2)

	var recs []model.AvailabilityRecord
	require.NoError(t, svc.db.Where("menu_item_id = ?", item.ID).Order("date").Find(&recs).Error)
	require.Len(t, recs, 3)
	assert.Equal(t, "2026-09-03", recs[0].Date)
	for _, rec := range recs {
		assert.True(t, rec.IsAvailable)
		assert.Equal(t, 10, rec.MaxQuantity)
		assert.Equal(t, 0, rec.CurrentQuantity)
	}
}

func TestCreateItemReportsEveryDraftProblem(t *testing.T) {
	svc := newTestService(t)

	draft := ItemDraft{
		Name:       "",
		BasePrice:  -1,
		Categories: []string{"BRUNCH", model.CategoryLunch, "TEATIME"},
		Variants: []VariantDraft{
			{Name: "A", Price: 10, IsDefault: true},
			{Name: "B", Price: 12, IsDefault: true},
		},
	}

	_, err := svc.CreateItem(1, draft)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))

	ae := err.(*apperr.Error)
	assert.Contains(t, ae.Fields, "name")
	assert.Contains(t, ae.Fields, "base_price")
	// Every invalid category is named, not just the first.
	assert.Equal(t, []string{"BRUNCH", "TEATIME"}, ae.Fields["categories"])
	assert.Equal(t, "exactly one variant must be flagged default, got 2", ae.Fields["variants"])
}

func TestCreateItemRequiresVariants(t *testing.T) {
	svc := newTestService(t)

	draft := validItemDraft()
	draft.Variants = nil

	_, err := svc.CreateItem(1, draft)
	require.True(t, apperr.IsKind(err, apperr.KindValidation))
	assert.Contains(t, err.(*apperr.Error).Fields, "variants")
}

func TestListAvailableItemsPermissiveDefault(t *testing.T) {
	svc := newTestService(t)

	item := model.MenuItem{UniversityID: 1, Name: "Idli", BasePrice: 30, Active: true}
	require.NoError(t, svc.db.Create(&item).Error)

	// No availability record for the date: available and uncapped.
	listing, err := svc.ListAvailableItems(1, "2026-09-05", Filters{})
	require.NoError(t, err)
	require.Len(t, listing, 1)
	assert.Equal(t, -1, listing[0].RemainingQty)
	assert.Equal(t, 30.0, listing[0].UnitPrice)
}

func TestListAvailableItemsExcludesUnavailable(t *testing.T) {
	svc := newTestService(t)

	item, err := svc.CreateItem(1, validItemDraft())
	require.NoError(t, err)

	_, err = svc.SetAvailability(item.ID, "2026-09-05", false, 0)
	require.NoError(t, err)

	listing, err := svc.ListAvailableItems(1, "2026-09-05", Filters{})
	require.NoError(t, err)
	assert.Empty(t, listing)

	// Other dates are unaffected.
	listing, err = svc.ListAvailableItems(1, "2026-09-04", Filters{})
	require.NoError(t, err)
	assert.Len(t, listing, 1)
}

func TestListAvailableItemsRemainingQuantity(t *testing.T) {
	svc := newTestService(t)

	item, err := svc.CreateItem(1, validItemDraft())
	require.NoError(t, err)

	_, err = svc.SetAvailability(item.ID, "2026-09-05", true, 20)
	require.NoError(t, err)
	require.NoError(t, svc.db.Model(&model.AvailabilityRecord{}).
		Where("menu_item_id = ? AND date = ?", item.ID, "2026-09-05").
		Update("current_quantity", 6).Error)

	listing, err := svc.ListAvailableItems(1, "2026-09-05", Filters{})
	require.NoError(t, err)
	require.Len(t, listing, 1)
	assert.Equal(t, 14, listing[0].RemainingQty)
	// Default variant price wins over the base price.
	assert.Equal(t, 45.0, listing[0].UnitPrice)
}

func TestListAvailableItemsFilters(t *testing.T) {
	svc := newTestService(t)

	dosa := validItemDraft()
	_, err := svc.CreateItem(1, dosa)
	require.NoError(t, err)

	salad := validItemDraft()
	salad.Name = "Green Salad"
	salad.Categories = []string{model.CategoryLunch}
	salad.DietaryFlags = []string{"VEGAN"}
	_, err = svc.CreateItem(1, salad)
	require.NoError(t, err)

	listing, err := svc.ListAvailableItems(1, "2026-09-04", Filters{Category: model.CategoryLunch})
	require.NoError(t, err)
	require.Len(t, listing, 1)
	assert.Equal(t, "Green Salad", listing[0].Name)

	listing, err = svc.ListAvailableItems(1, "2026-09-04", Filters{Dietary: "VEGAN"})
	require.NoError(t, err)
	require.Len(t, listing, 1)

	listing, err = svc.ListAvailableItems(1, "2026-09-04", Filters{Category: model.CategoryDinner})
	require.NoError(t, err)
	assert.Empty(t, listing)
}

func TestListAvailableItemsRejectsBadDate(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.ListAvailableItems(1, "next tuesday", Filters{})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestResolveVariant(t *testing.T) {
	svc := newTestService(t)

	item, err := svc.CreateItem(1, validItemDraft())
	require.NoError(t, err)
	require.Len(t, item.Variants, 2)

	var defaultVariant, largeVariant model.MenuVariant
	for _, v := range item.Variants {
		if v.IsDefault {
			defaultVariant = v
		} else {
			largeVariant = v
		}
	}

	// Nil variant selects the default.
	resolved, err := svc.ResolveVariant(item.ID, nil)
	require.NoError(t, err)
	require.NotNil(t, resolved.MenuVariantID)
	assert.Equal(t, defaultVariant.ID, *resolved.MenuVariantID)
	assert.Equal(t, 45.0, resolved.UnitPrice)

	// Explicit variant is honored.
	resolved, err = svc.ResolveVariant(item.ID, &largeVariant.ID)
	require.NoError(t, err)
	assert.Equal(t, 60.0, resolved.UnitPrice)

	// Unknown variant on a known item.
	ghost := uint(9999)
	_, err = svc.ResolveVariant(item.ID, &ghost)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))

	// Unknown item.
	_, err = svc.ResolveVariant(9999, nil)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestResolveVariantFallsBackToBasePrice(t *testing.T) {
	svc := newTestService(t)

	item := model.MenuItem{UniversityID: 1, Name: "Plain Rice", BasePrice: 25, Active: true}
	require.NoError(t, svc.db.Create(&item).Error)

	resolved, err := svc.ResolveVariant(item.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, resolved.MenuVariantID)
	assert.Equal(t, 25.0, resolved.UnitPrice)
}

func TestResolveVariantInactiveItem(t *testing.T) {
	svc := newTestService(t)

	item, err := svc.CreateItem(1, validItemDraft())
	require.NoError(t, err)
	require.NoError(t, svc.SetActive(item.ID, false))

	_, err = svc.ResolveVariant(item.ID, nil)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestSetAvailabilityUpserts(t *testing.T) {
	svc := newTestService(t)

	item, err := svc.CreateItem(1, validItemDraft())
	require.NoError(t, err)

	rec, err := svc.SetAvailability(item.ID, "2026-09-20", true, 15)
	require.NoError(t, err)
	assert.Equal(t, 15, rec.MaxQuantity)

	// A second call for the same date updates in place.
	rec, err = svc.SetAvailability(item.ID, "2026-09-20", false, 0)
	require.NoError(t, err)
	assert.False(t, rec.IsAvailable)

	var count int64
	svc.db.Model(&model.AvailabilityRecord{}).
		Where("menu_item_id = ? AND date = ?", item.ID, "2026-09-20").Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestSetAvailabilityValidation(t *testing.T) {
	svc := newTestService(t)

	item, err := svc.CreateItem(1, validItemDraft())
	require.NoError(t, err)

	_, err = svc.SetAvailability(item.ID, "20-09-2026", true, 5)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.SetAvailability(item.ID, "2026-09-20", true, -5)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.SetAvailability(9999, "2026-09-20", true, 5)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestUpdateItemReplacesVariantSet(t *testing.T) {
	svc := newTestService(t)

	item, err := svc.CreateItem(1, validItemDraft())
	require.NoError(t, err)
	oldVariantID := item.Variants[0].ID

	draft := validItemDraft()
	draft.Name = "Masala Dosa Special"
	draft.Variants = []VariantDraft{{Name: "Single", Price: 55, IsDefault: true}}

	updated, err := svc.UpdateItem(item.ID, draft)
	require.NoError(t, err)
	assert.Equal(t, "Masala Dosa Special", updated.Name)
	require.Len(t, updated.Variants, 1)
	assert.Equal(t, 55.0, updated.Variants[0].Price)

	// Replaced variants are soft-deleted, not destroyed: order history can
	// still reach them.
	var old model.MenuVariant
	err = svc.db.Unscoped().First(&old, oldVariantID).Error
	require.NoError(t, err)
	assert.True(t, old.DeletedAt.Valid)
}
