// Package ordering owns the order lifecycle: creation behind the ordering
// window guard, the status state machine, and the caterer serve workflow.
package ordering

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mealorder-service/internal/apperr"
	"mealorder-service/internal/authz"
	"mealorder-service/internal/catalog"
	"mealorder-service/internal/model"
	"mealorder-service/internal/notifier"
	"mealorder-service/internal/pricing"
)

// allowedTransitions is the order status state machine driven through
// Transition. SERVED is reachable only through Serve.
var allowedTransitions = map[string][]string{
	model.OrderPending:   {model.OrderApproved, model.OrderRejected, model.OrderCancelled},
	model.OrderApproved:  {model.OrderPreparing, model.OrderRejected, model.OrderCancelled},
	model.OrderPreparing: {model.OrderReady, model.OrderRejected, model.OrderCancelled},
	model.OrderReady:     {model.OrderCancelled},
}

// statusMessages are the human-readable notification texts per status.
var statusMessages = map[string]string{
	model.OrderPending:   "Your order has been placed and is awaiting approval",
	model.OrderApproved:  "Your order has been approved",
	model.OrderPreparing: "Your order is being prepared",
	model.OrderReady:     "Your order is ready for pickup",
	model.OrderServed:    "Your order has been served. Enjoy your meal!",
	model.OrderRejected:  "Your order has been rejected",
	model.OrderCancelled: "Your order has been cancelled",
}

const orderNumberAttempts = 5

// ListFilters narrows an order listing.
type ListFilters struct {
	Date         string
	Status       string
	UniversityID uint
}

// Manager creates orders and drives their status transitions.
type Manager struct {
	db       *gorm.DB
	catalog  *catalog.Service
	calc     *pricing.Calculator
	auth     *authz.Authority
	notifier notifier.Notifier
	log      *zap.Logger
	now      func() time.Time
}

// NewManager wires the order lifecycle manager.
func NewManager(db *gorm.DB, catalogService *catalog.Service, calc *pricing.Calculator,
	auth *authz.Authority, n notifier.Notifier, log *zap.Logger) *Manager {
	return &Manager{
		db:       db,
		catalog:  catalogService,
		calc:     calc,
		auth:     auth,
		notifier: n,
		log:      log,
		now:      time.Now,
	}
}

// WithClock overrides the manager clock; used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Create places a new order for the principal. The ordering window is
// checked first, the cart is priced, and quantity reservation plus the
// order insert happen in one transaction: no partial orders, no
// over-reservation.
func (m *Manager) Create(p authz.Principal, universityID uint, date string,
	cart []pricing.CartLine, instructions string) (*model.Order, error) {

	res := authz.Resource{Type: "order", UniversityID: universityID, OwnerUserID: p.UserID}
	if err := m.auth.Can(p, authz.OpCreateOrder, res); err != nil {
		return nil, err
	}

	var university model.University
	if err := m.db.First(&university, universityID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.Newf(apperr.KindNotFound, "university %d not found", universityID)
		}
		return nil, fmt.Errorf("ordering: load university: %w", err)
	}
	if !university.Active {
		return nil, apperr.Newf(apperr.KindNotFound, "university %d is not active", universityID)
	}

	if err := CheckWindow(m.now(), date, university.Ordering); err != nil {
		return nil, err
	}

	quote, err := m.calc.QuoteCart(cart, university.Ordering.TaxRate)
	if err != nil {
		return nil, err
	}

	var order model.Order
	err = m.db.Transaction(func(tx *gorm.DB) error {
		for _, line := range quote.Lines {
			if err := reserveQuantity(tx, line.MenuItemID, date, line.Quantity); err != nil {
				return err
			}
		}

		number, err := m.generateOrderNumber(tx, date)
		if err != nil {
			return err
		}

		order = model.Order{
			OrderNumber:         number,
			UniversityID:        universityID,
			UserID:              p.UserID,
			OrderDate:           date,
			Status:              model.OrderPending,
			PaymentStatus:       model.PaymentPending,
			Subtotal:            quote.Subtotal,
			TaxAmount:           quote.Tax,
			TotalAmount:         quote.Total,
			SpecialInstructions: instructions,
		}
		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("ordering: create order: %w", err)
		}

		for _, line := range quote.Lines {
			item := model.OrderItem{
				OrderID:       order.ID,
				MenuItemID:    line.MenuItemID,
				MenuVariantID: line.MenuVariantID,
				Quantity:      line.Quantity,
				UnitPrice:     line.UnitPrice,
			}
			if err := tx.Create(&item).Error; err != nil {
				return fmt.Errorf("ordering: create order item: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("Order created",
		zap.String("order_number", order.OrderNumber),
		zap.Uint("user_id", p.UserID),
		zap.Uint("university_id", universityID),
		zap.String("order_date", date),
		zap.Float64("total", order.TotalAmount))

	m.notify(&order, statusMessages[model.OrderPending])

	if err := m.db.Preload("Items").First(&order, order.ID).Error; err != nil {
		return nil, fmt.Errorf("ordering: reload order: %w", err)
	}
	return &order, nil
}

// Transition moves an order to target. The write is a compare-and-swap on
// the expected current status, so two racing transitions cannot both win.
// REJECTED requires a reason, stored on its own column. The notification
// side effect never rolls back the state change.
func (m *Manager) Transition(p authz.Principal, orderID uint, target, reason string) (*model.Order, error) {
	order, err := m.loadOrder(orderID)
	if err != nil {
		return nil, err
	}

	res := authz.Resource{Type: "order", ID: order.ID, UniversityID: order.UniversityID, OwnerUserID: order.UserID}
	op := authz.OpTransitionOrder
	if p.Role == model.RoleStudent {
		// Students may only cancel their own orders.
		if target != model.OrderCancelled {
			return nil, apperr.New(apperr.KindAccessDenied, "students may only cancel their own orders")
		}
		op = authz.OpCancelOrder
	}
	if err := m.auth.Can(p, op, res); err != nil {
		return nil, err
	}

	if target == model.OrderServed {
		return nil, apperr.New(apperr.KindInvalidTransition, "serving an order goes through the serve operation").
			WithField("current_status", order.Status).
			WithField("requested_status", target)
	}

	if !transitionAllowed(order.Status, target) {
		return nil, invalidTransition(order.Status, target)
	}

	if target == model.OrderRejected && strings.TrimSpace(reason) == "" {
		return nil, apperr.New(apperr.KindValidation, "a reason is required to reject an order")
	}

	updates := map[string]interface{}{"status": target}
	if target == model.OrderRejected {
		updates["rejection_reason"] = reason
	}

	result := m.db.Model(&model.Order{}).
		Where("id = ? AND status = ?", order.ID, order.Status).
		Updates(updates)
	if result.Error != nil {
		return nil, fmt.Errorf("ordering: transition order: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Lost a race: someone else moved the order first.
		current, err := m.loadOrder(orderID)
		if err != nil {
			return nil, err
		}
		return nil, invalidTransition(current.Status, target)
	}

	m.log.Info("Order transitioned",
		zap.Uint("order_id", order.ID),
		zap.String("from", order.Status),
		zap.String("to", target),
		zap.Uint("actor_id", p.UserID),
		zap.String("actor_role", p.Role))

	order.Status = target
	if target == model.OrderRejected {
		order.RejectionReason = reason
	}
	m.notify(order, statusMessages[target])
	return order, nil
}

// Serve marks a READY order as SERVED and stamps its completion time. The
// caterer workflow re-enters here only; any other current status fails with
// InvalidTransition naming it.
func (m *Manager) Serve(p authz.Principal, orderID uint) (*model.Order, error) {
	order, err := m.loadOrder(orderID)
	if err != nil {
		return nil, err
	}

	res := authz.Resource{Type: "order", ID: order.ID, UniversityID: order.UniversityID, OwnerUserID: order.UserID}
	if err := m.auth.Can(p, authz.OpServeOrder, res); err != nil {
		return nil, err
	}

	completed := m.now()
	result := m.db.Model(&model.Order{}).
		Where("id = ? AND status = ?", order.ID, model.OrderReady).
		Updates(map[string]interface{}{
			"status":       model.OrderServed,
			"completed_at": completed,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("ordering: serve order: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		current, err := m.loadOrder(orderID)
		if err != nil {
			return nil, err
		}
		return nil, invalidTransition(current.Status, model.OrderServed)
	}

	m.log.Info("Order served",
		zap.Uint("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Uint("caterer_id", p.UserID))

	order.Status = model.OrderServed
	order.CompletedAt = &completed
	m.notify(order, statusMessages[model.OrderServed])
	return order, nil
}

// Get returns one order with its items, scoped by the authority.
func (m *Manager) Get(p authz.Principal, orderID uint) (*model.Order, error) {
	order, err := m.loadOrder(orderID)
	if err != nil {
		return nil, err
	}

	res := authz.Resource{Type: "order", ID: order.ID, UniversityID: order.UniversityID, OwnerUserID: order.UserID}
	if err := m.auth.Can(p, authz.OpReadOrder, res); err != nil {
		return nil, err
	}

	if err := m.db.Preload("Items").First(order, order.ID).Error; err != nil {
		return nil, fmt.Errorf("ordering: load order items: %w", err)
	}
	return order, nil
}

// List returns orders visible to the principal: students see their own,
// staff see their university's, admins see everything (optionally filtered
// by university).
func (m *Manager) List(p authz.Principal, filters ListFilters) ([]model.Order, error) {
	query := m.db.Preload("Items").Order("created_at DESC")

	switch p.Role {
	case model.RoleStudent:
		query = query.Where("user_id = ?", p.UserID)
	case model.RoleManager, model.RoleCaterer:
		if p.UniversityID == nil {
			return nil, apperr.New(apperr.KindAccessDenied, "no university context")
		}
		query = query.Where("university_id = ?", *p.UniversityID)
	case model.RoleAdmin:
		if filters.UniversityID != 0 {
			query = query.Where("university_id = ?", filters.UniversityID)
		}
	default:
		return nil, apperr.New(apperr.KindAccessDenied, "access denied")
	}

	if filters.Date != "" {
		query = query.Where("order_date = ?", filters.Date)
	}
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}

	var orders []model.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("ordering: list orders: %w", err)
	}
	return orders, nil
}

func (m *Manager) loadOrder(orderID uint) (*model.Order, error) {
	var order model.Order
	if err := m.db.First(&order, orderID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperr.Newf(apperr.KindNotFound, "order %d not found", orderID)
		}
		return nil, fmt.Errorf("ordering: load order: %w", err)
	}
	return &order, nil
}

// reserveQuantity atomically reserves qty portions of an item for a date.
// Items without an availability record stay uncapped by the permissive
// default; a record with MaxQuantity 0 is capped only by availability.
func reserveQuantity(tx *gorm.DB, menuItemID uint, date string, qty int) error {
	result := tx.Model(&model.AvailabilityRecord{}).
		Where("menu_item_id = ? AND date = ? AND is_available = ?", menuItemID, date, true).
		Where("max_quantity = 0 OR current_quantity + ? <= max_quantity", qty).
		UpdateColumn("current_quantity", gorm.Expr("current_quantity + ?", qty))
	if result.Error != nil {
		return fmt.Errorf("ordering: reserve quantity: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// Nothing matched: either no record exists (permissive default) or the
	// item is unavailable / sold out for the date.
	var rec model.AvailabilityRecord
	err := tx.Where("menu_item_id = ? AND date = ?", menuItemID, date).First(&rec).Error
	if err == gorm.ErrRecordNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("ordering: check availability: %w", err)
	}
	if !rec.IsAvailable {
		return apperr.Newf(apperr.KindInvalidItem, "menu item %d is not available on %s", menuItemID, date).
			WithField("menu_item_id", menuItemID)
	}
	return apperr.Newf(apperr.KindConflict, "menu item %d is sold out for %s", menuItemID, date).
		WithField("menu_item_id", menuItemID)
}

// generateOrderNumber builds a collision-checked order number. A random
// fragment replaces the old row-count scheme, which was not unique under
// concurrent creation.
func (m *Manager) generateOrderNumber(tx *gorm.DB, date string) (string, error) {
	compact := strings.ReplaceAll(date, "-", "")
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		fragment := strings.ToUpper(uuid.NewString()[:6])
		number := fmt.Sprintf("ORD-%s-%s", compact, fragment)

		var count int64
		if err := tx.Model(&model.Order{}).Where("order_number = ?", number).Count(&count).Error; err != nil {
			return "", fmt.Errorf("ordering: check order number: %w", err)
		}
		if count == 0 {
			return number, nil
		}
	}
	return "", fmt.Errorf("ordering: could not generate a unique order number after %d attempts", orderNumberAttempts)
}

// notify dispatches the status notification in the background. Delivery
// failure is logged and deliberately not propagated.
func (m *Manager) notify(order *model.Order, message string) {
	var user model.User
	if err := m.db.Select("id", "email").First(&user, order.UserID).Error; err != nil {
		m.log.Warn("Notification skipped, recipient lookup failed",
			zap.Uint("order_id", order.ID), zap.Error(err))
		return
	}

	n := notifier.Notification{
		OrderID:          order.ID,
		RecipientContact: user.Email,
		StatusMessage:    message,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.notifier.Notify(ctx, n); err != nil {
			m.log.Warn("Order notification delivery failed",
				zap.Uint("order_id", n.OrderID), zap.Error(err))
		}
	}()
}

func transitionAllowed(current, target string) bool {
	for _, t := range allowedTransitions[current] {
		if t == target {
			return true
		}
	}
	return false
}

func invalidTransition(current, target string) error {
	return apperr.Newf(apperr.KindInvalidTransition,
		"cannot transition order from %s to %s", current, target).
		WithField("current_status", current).
		WithField("requested_status", target)
}
