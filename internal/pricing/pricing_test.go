package pricing

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
	"mealorder-service/internal/catalog"
	"mealorder-service/internal/model"
)

func newTestCalculator(t *testing.T) (*Calculator, *gorm.DB) {
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
	return New(catalog.New(db, zap.NewNop(), time.Minute, 0, 0)), db
}

func seedItem(t *testing.T, db *gorm.DB, name string, defaultPrice float64) model.MenuItem {
	t.Helper()
	item := model.MenuItem{UniversityID: 1, Name: name, BasePrice: defaultPrice, Active: true}
	require.NoError(t, db.Create(&item).Error)
	variant := model.MenuVariant{MenuItemID: item.ID, Name: "Regular", Price: defaultPrice, IsDefault: true, Active: true}
	require.NoError(t, db.Create(&variant).Error)
	item.Variants = []model.MenuVariant{variant}
	return item
}

func TestQuoteCartTotals(t *testing.T) {
	calc, db := newTestCalculator(t)
	dosa := seedItem(t, db, "Masala Dosa", 45)
	tea := seedItem(t, db, "Chai", 12.50)

	quote, err := calc.QuoteCart([]CartLine{
		{MenuItemID: dosa.ID, Quantity: 2},
		{MenuItemID: tea.ID, Quantity: 1},
	}, 0.10)
	require.NoError(t, err)

	require.Len(t, quote.Lines, 2)
	assert.Equal(t, 90.0, quote.Lines[0].LineTotal)
	assert.Equal(t, 12.5, quote.Lines[1].LineTotal)
	assert.Equal(t, 102.5, quote.Subtotal)
	assert.Equal(t, 10.25, quote.Tax)
	assert.Equal(t, 112.75, quote.Total)
}

func TestQuoteCartZeroTax(t *testing.T) {
	calc, db := newTestCalculator(t)
	item := seedItem(t, db, "Idli", 30)

	quote, err := calc.QuoteCart([]CartLine{{MenuItemID: item.ID, Quantity: 3}}, 0)
	require.NoError(t, err)
	assert.Equal(t, 90.0, quote.Subtotal)
	assert.Equal(t, 0.0, quote.Tax)
	assert.Equal(t, 90.0, quote.Total)
}

func TestQuoteCartExplicitVariant(t *testing.T) {
	calc, db := newTestCalculator(t)
	item := seedItem(t, db, "Masala Dosa", 45)
	large := model.MenuVariant{MenuItemID: item.ID, Name: "Large", Price: 60, Active: true}
	require.NoError(t, db.Create(&large).Error)

	quote, err := calc.QuoteCart([]CartLine{
		{MenuItemID: item.ID, MenuVariantID: &large.ID, Quantity: 2},
	}, 0)
	require.NoError(t, err)
	assert.Equal(t, 60.0, quote.Lines[0].UnitPrice)
	assert.Equal(t, 120.0, quote.Total)
}

func TestQuoteCartEmpty(t *testing.T) {
	calc, _ := newTestCalculator(t)
	_, err := calc.QuoteCart(nil, 0.10)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestQuoteCartNonPositiveQuantity(t *testing.T) {
	calc, db := newTestCalculator(t)
	item := seedItem(t, db, "Idli", 30)

	for _, qty := range []int{0, -2} {
		_, err := calc.QuoteCart([]CartLine{{MenuItemID: item.ID, Quantity: qty}}, 0)
		assert.True(t, apperr.IsKind(err, apperr.KindValidation), "quantity %d", qty)
	}
}

func TestQuoteCartUnresolvableItemAbortsWholeCart(t *testing.T) {
	calc, db := newTestCalculator(t)
	item := seedItem(t, db, "Idli", 30)

	_, err := calc.QuoteCart([]CartLine{
		{MenuItemID: item.ID, Quantity: 1},
		{MenuItemID: 9999, Quantity: 1},
	}, 0)
	require.True(t, apperr.IsKind(err, apperr.KindInvalidItem), "got %v", err)
	assert.Equal(t, uint(9999), err.(*apperr.Error).Fields["menu_item_id"])
}

func TestRoundCurrency(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{10.004, 10.0},
		{0.125, 0.13}, // half rounds away from zero
		{99.999, 100.0},
		{1.0 / 3.0, 0.33},
		{12.5, 12.5},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, RoundCurrency(tc.in), "RoundCurrency(%v)", tc.in)
	}
}
