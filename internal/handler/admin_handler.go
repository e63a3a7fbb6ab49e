package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mealorder-service/internal/authz"
	"mealorder-service/internal/middleware"
	"mealorder-service/internal/model"
	"mealorder-service/internal/session"
	"mealorder-service/pkg/logger"
	"mealorder-service/prometheus"
)

// AdminHandler serves operator provisioning and the session revocation
// endpoint.
type AdminHandler struct {
	db     *gorm.DB
	auth   *authz.Authority
	ledger *session.Ledger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(db *gorm.DB, auth *authz.Authority, ledger *session.Ledger) *AdminHandler {
	return &AdminHandler{db: db, auth: auth, ledger: ledger}
}

// CreateUniversity provisions a new partner university.
func (h *AdminHandler) CreateUniversity(c echo.Context) error {
	log := logger.FromContext(c)

	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	if err := h.auth.Can(p, authz.OpManageUsers, authz.Resource{Type: "university"}); err != nil {
		prometheus.RecordAuthError("university_create_denied")
		return respondError(c, log, err)
	}

	var req struct {
		Code     string                  `json:"code"`
		Name     string                  `json:"name"`
		Ordering *model.OrderingSettings `json:"ordering_settings"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Code == "" || req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code and name are required"})
	}

	university := model.University{
		Code:   req.Code,
		Name:   req.Name,
		Active: true,
	}
	if req.Ordering != nil {
		university.Ordering = *req.Ordering
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	if err := h.db.Create(&university).Error; err != nil {
		log.Error("Failed to create university", zap.Error(err))
		return c.JSON(http.StatusConflict, echo.Map{"error": "university creation failed, code may already exist"})
	}

	prometheus.ActiveUniversitiesGauge.Inc()
	log.Info("University provisioned",
		zap.String("code", university.Code),
		zap.Uint("id", university.ID))

	return c.JSON(http.StatusCreated, university)
}

// UpdateOrderingSettings mutates a university's ordering rules. Settings
// are read on every order, so mutations are rare and audited.
func (h *AdminHandler) UpdateOrderingSettings(c echo.Context) error {
	log := logger.FromContext(c)

	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid university ID"})
	}

	var university model.University
	if err := h.db.First(&university, id).Error; err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "university not found"})
	}

	res := authz.Resource{Type: "university", ID: university.ID, UniversityID: university.ID}
	if err := h.auth.Can(p, authz.OpManageUsers, res); err != nil {
		prometheus.RecordAuthError("settings_update_denied")
		return respondError(c, log, err)
	}

	var settings model.OrderingSettings
	if err := c.Bind(&settings); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	university.Ordering = settings
	if err := h.db.Save(&university).Error; err != nil {
		log.Error("Failed to update ordering settings", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "settings update failed"})
	}

	log.Info("Ordering settings updated",
		zap.Uint("university_id", university.ID),
		zap.Uint("actor_id", p.UserID))

	return c.JSON(http.StatusOK, university)
}

// ForceLogoutStudents revokes every active student session at once.
func (h *AdminHandler) ForceLogoutStudents(c echo.Context) error {
	log := logger.FromContext(c)

	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	event, err := h.ledger.ForceLogoutAllStudents(p, req.Reason)
	if err != nil {
		prometheus.RecordAuthError("force_logout_denied")
		return respondError(c, log, err)
	}

	prometheus.ForceLogoutCounter.Inc()
	return c.JSON(http.StatusOK, echo.Map{
		"message":        "All student sessions revoked",
		"affected_count": event.AffectedCount,
		"issued_before":  event.IssuedBefore,
	})
}
