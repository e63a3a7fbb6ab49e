package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mealorder-service/internal/apperr"
	"mealorder-service/internal/middleware"
	"mealorder-service/internal/model"
	"mealorder-service/internal/ordering"
	"mealorder-service/internal/pricing"
	"mealorder-service/pkg/logger"
	"mealorder-service/prometheus"
)

// OrderHandler serves order creation, lifecycle and the serve workflow.
type OrderHandler struct {
	db      *gorm.DB
	manager *ordering.Manager
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(db *gorm.DB, manager *ordering.Manager) *OrderHandler {
	return &OrderHandler{db: db, manager: manager}
}

// Create places a new order for the authenticated student.
func (h *OrderHandler) Create(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordOrderOperation("create")

	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	if p.UniversityID == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no university context"})
	}

	var req struct {
		OrderDate           string             `json:"order_date"`
		Items               []pricing.CartLine `json:"items"`
		SpecialInstructions string             `json:"special_instructions"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse order request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	order, err := h.manager.Create(p, *p.UniversityID, req.OrderDate, req.Items, req.SpecialInstructions)
	if err != nil {
		recordWindowRejection(err)
		return respondError(c, log, err)
	}

	return c.JSON(http.StatusCreated, order)
}

// Get returns one order with its items.
func (h *OrderHandler) Get(c echo.Context) error {
	log := logger.FromContext(c)

	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order ID"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	order, err := h.manager.Get(p, id)
	if err != nil {
		return respondError(c, log, err)
	}
	return c.JSON(http.StatusOK, order)
}

// List returns the orders visible to the caller.
func (h *OrderHandler) List(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordOrderOperation("list")

	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	filters := ordering.ListFilters{
		Date:   c.QueryParam("date"),
		Status: c.QueryParam("status"),
	}
	if raw := c.QueryParam("university_id"); raw != "" {
		if id, err := strconv.ParseUint(raw, 10, 32); err == nil {
			filters.UniversityID = uint(id)
		}
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	orders, err := h.manager.List(p, filters)
	if err != nil {
		return respondError(c, log, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"orders": orders,
		"count":  len(orders),
	})
}

// Transition drives the order status state machine.
func (h *OrderHandler) Transition(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordOrderOperation("transition")

	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order ID"})
	}

	var req struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	order, err := h.manager.Transition(p, id, req.Status, req.Reason)
	if err != nil {
		return respondError(c, log, err)
	}

	prometheus.RecordOrderTransition(order.Status)
	return c.JSON(http.StatusOK, order)
}

// Serve marks a READY order as served; the caterer scan-and-serve endpoint.
func (h *OrderHandler) Serve(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordOrderOperation("serve")

	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order ID"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	order, err := h.manager.Serve(p, id)
	if err != nil {
		return respondError(c, log, err)
	}

	prometheus.RecordOrderTransition(model.OrderServed)
	return c.JSON(http.StatusOK, order)
}

// CheckWindow reports whether the caller's university accepts orders for a
// date right now, without creating anything.
func (h *OrderHandler) CheckWindow(c echo.Context) error {
	log := logger.FromContext(c)

	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	if p.UniversityID == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "no university context"})
	}

	date := c.QueryParam("date")
	if date == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "date is required"})
	}

	var university model.University
	if err := h.db.First(&university, *p.UniversityID).Error; err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "university not found"})
	}

	if err := ordering.CheckWindow(time.Now(), date, university.Ordering); err != nil {
		recordWindowRejection(err)
		var ae *apperr.Error
		if errors.As(err, &ae) && ae.Kind == apperr.KindOrderingWindowClosed {
			return c.JSON(http.StatusOK, echo.Map{
				"date":    date,
				"open":    false,
				"rule":    ae.Fields["rule"],
				"message": ae.Message,
			})
		}
		return respondError(c, log, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"date": date,
		"open": true,
	})
}

func recordWindowRejection(err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind == apperr.KindOrderingWindowClosed {
		if rule, ok := ae.Fields["rule"].(string); ok {
			prometheus.RecordWindowRejection(rule)
		}
	}
}
