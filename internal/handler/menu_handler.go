package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"mealorder-service/internal/apperr"
	"mealorder-service/internal/authz"
	"mealorder-service/internal/catalog"
	"mealorder-service/internal/middleware"
	"mealorder-service/internal/model"
	"mealorder-service/pkg/logger"
	"mealorder-service/prometheus"
)

// MenuHandler serves the catalog and availability endpoints.
type MenuHandler struct {
	catalog *catalog.Service
	auth    *authz.Authority
}

// NewMenuHandler creates a MenuHandler.
func NewMenuHandler(catalogService *catalog.Service, auth *authz.Authority) *MenuHandler {
	return &MenuHandler{catalog: catalogService, auth: auth}
}

// List returns the items orderable on a date for the caller's university.
func (h *MenuHandler) List(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordMenuOperation("list")

	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	universityID, err := h.targetUniversity(c, p)
	if err != nil {
		return respondError(c, log, err)
	}

	date := c.QueryParam("date")
	if date == "" {
		date = time.Now().Format(model.DateLayout)
	}

	res := authz.Resource{Type: "menu", UniversityID: universityID}
	if err := h.auth.Can(p, authz.OpListMenu, res); err != nil {
		return respondError(c, log, err)
	}

	filters := catalog.Filters{
		Category: c.QueryParam("category"),
		Dietary:  c.QueryParam("dietary"),
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	listing, err := h.catalog.ListAvailableItems(universityID, date, filters)
	if err != nil {
		return respondError(c, log, err)
	}

	log.Info("Menu listing served",
		zap.Uint("university_id", universityID),
		zap.String("date", date),
		zap.Int("count", len(listing)))

	return c.JSON(http.StatusOK, echo.Map{
		"date":  date,
		"items": listing,
	})
}

// Create adds a menu item with its variants to the caller's university.
func (h *MenuHandler) Create(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordMenuOperation("create")

	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	universityID, err := h.targetUniversity(c, p)
	if err != nil {
		return respondError(c, log, err)
	}

	res := authz.Resource{Type: "menu", UniversityID: universityID}
	if err := h.auth.Can(p, authz.OpManageMenu, res); err != nil {
		return respondError(c, log, err)
	}

	var draft catalog.ItemDraft
	if err := c.Bind(&draft); err != nil {
		log.Error("Failed to parse menu item draft", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	item, err := h.catalog.CreateItem(universityID, draft)
	if err != nil {
		return respondError(c, log, err)
	}

	return c.JSON(http.StatusCreated, item)
}

// Update applies a draft to an existing item, replacing its variant set.
func (h *MenuHandler) Update(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordMenuOperation("update")

	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid menu item ID"})
	}

	if err := h.authorizeItem(c, p, id); err != nil {
		return respondError(c, log, err)
	}

	var draft catalog.ItemDraft
	if err := c.Bind(&draft); err != nil {
		log.Error("Failed to parse menu item draft", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	item, err := h.catalog.UpdateItem(id, draft)
	if err != nil {
		return respondError(c, log, err)
	}

	return c.JSON(http.StatusOK, item)
}

// SetActive toggles an item's soft-delete flag.
func (h *MenuHandler) SetActive(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordMenuOperation("set_active")

	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid menu item ID"})
	}

	if err := h.authorizeItem(c, p, id); err != nil {
		return respondError(c, log, err)
	}

	var req struct {
		Active bool `json:"active"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := h.catalog.SetActive(id, req.Active); err != nil {
		return respondError(c, log, err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"message": "Menu item updated",
		"id":      id,
		"active":  req.Active,
	})
}

// SetAvailability upserts the per-date sellability and cap of an item.
func (h *MenuHandler) SetAvailability(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordMenuOperation("availability")

	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	id, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid menu item ID"})
	}

	if err := h.authorizeItem(c, p, id); err != nil {
		return respondError(c, log, err)
	}

	var req struct {
		Date        string `json:"date"`
		IsAvailable bool   `json:"is_available"`
		MaxQuantity int    `json:"max_quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	rec, err := h.catalog.SetAvailability(id, req.Date, req.IsAvailable, req.MaxQuantity)
	if err != nil {
		return respondError(c, log, err)
	}

	return c.JSON(http.StatusOK, rec)
}

// targetUniversity resolves which university the request addresses: staff
// and students default to their own, admins may pick one via query param.
func (h *MenuHandler) targetUniversity(c echo.Context, p authz.Principal) (uint, error) {
	if raw := c.QueryParam("university_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err == nil {
			return uint(id), nil
		}
	}
	if p.UniversityID != nil {
		return *p.UniversityID, nil
	}
	return 0, apperr.New(apperr.KindValidation, "university_id is required")
}

func (h *MenuHandler) authorizeItem(c echo.Context, p authz.Principal, itemID uint) error {
	universityID, err := h.catalog.ItemUniversity(itemID)
	if err != nil {
		return err
	}
	res := authz.Resource{Type: "menu", ID: itemID, UniversityID: universityID}
	return h.auth.Can(p, authz.OpManageMenu, res)
}

func parseID(c echo.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	return uint(id), err
}
