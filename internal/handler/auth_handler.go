package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"mealorder-service/internal/authz"
	"mealorder-service/internal/middleware"
	"mealorder-service/internal/model"
	"mealorder-service/pkg/jwtutil"
	"mealorder-service/pkg/logger"
	"mealorder-service/prometheus"
)

// AuthHandler serves registration, login and account status management.
type AuthHandler struct {
	db   *gorm.DB
	auth *authz.Authority
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(db *gorm.DB, auth *authz.Authority) *AuthHandler {
	return &AuthHandler{db: db, auth: auth}
}

// Register handles student self-registration. New accounts start PENDING
// and must be approved by university staff before they can order.
func (h *AuthHandler) Register(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RegisterCounter.Inc()

	var req struct {
		Email          string `json:"email"`
		Password       string `json:"password"`
		Name           string `json:"name"`
		UniversityCode string `json:"university_code"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse registration request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	if req.Email == "" || req.Password == "" || req.UniversityCode == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email, password and university_code are required"})
	}

	var university model.University
	if err := h.db.Where("code = ? AND active = ?", req.UniversityCode, true).First(&university).Error; err != nil {
		log.Warn("Registration for unknown university", zap.String("code", req.UniversityCode))
		return c.JSON(http.StatusNotFound, echo.Map{"error": "university not found"})
	}

	var count int64
	h.db.Model(&model.User{}).Where("email = ?", req.Email).Count(&count)
	if count > 0 {
		log.Warn("Registration with existing email", zap.String("email", req.Email))
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	defer prometheus.TrackDBOperation("insert")(time.Now())
	user := model.User{
		UniversityID: &university.ID,
		Email:        req.Email,
		Password:     string(hashed),
		Name:         req.Name,
		Role:         model.RoleStudent,
		Status:       model.StatusPending,
	}
	if err := h.db.Create(&user).Error; err != nil {
		log.Error("Failed to create user", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	log.Info("Student registered",
		zap.String("email", user.Email),
		zap.Uint("university_id", university.ID))

	return c.JSON(http.StatusCreated, echo.Map{
		"message": "Registration submitted, awaiting approval",
		"user":    user,
	})
}

// Login verifies credentials and issues a JWT carrying the principal tuple.
func (h *AuthHandler) Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.LoginCounter.Inc()

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse login request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	if err := h.db.Where("email = ?", req.Email).First(&user).Error; err != nil {
		log.Warn("Login for unknown user", zap.String("email", req.Email))
		prometheus.RecordAuthError("user_not_found")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		log.Warn("Invalid password", zap.String("email", req.Email))
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	if user.Status == model.StatusRejected || user.Status == model.StatusSuspended {
		log.Warn("Blocked account login attempt",
			zap.String("email", req.Email),
			zap.String("status", user.Status))
		prometheus.RecordAuthError("blocked_account")
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account is not allowed to log in"})
	}

	token, err := jwtutil.GenerateToken(user.Email, user.ID, user.UniversityID, user.Role, user.Status)
	if err != nil {
		log.Error("Failed to generate token", zap.Error(err))
		prometheus.RecordAuthError("token_generation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}

	log.Info("User logged in",
		zap.String("email", user.Email),
		zap.String("role", user.Role))

	return c.JSON(http.StatusOK, echo.Map{
		"token": token,
		"user": echo.Map{
			"id":            user.ID,
			"email":         user.Email,
			"name":          user.Name,
			"role":          user.Role,
			"status":        user.Status,
			"university_id": user.UniversityID,
		},
	})
}

// UpdateUserStatus lets university staff approve, reject or suspend an
// account. Accounts are never hard-deleted.
func (h *AuthHandler) UpdateUserStatus(c echo.Context) error {
	log := logger.FromContext(c)

	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if !model.ValidStatus(req.Status) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status"})
	}

	var user model.User
	if err := h.db.First(&user, id).Error; err != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}

	resUniversity := uint(0)
	if user.UniversityID != nil {
		resUniversity = *user.UniversityID
	}
	res := authz.Resource{Type: "user", ID: user.ID, UniversityID: resUniversity, OwnerUserID: user.ID}
	if err := h.auth.Can(p, authz.OpManageUsers, res); err != nil {
		prometheus.RecordAuthError("user_manage_denied")
		return respondError(c, log, err)
	}

	defer prometheus.TrackDBOperation("update")(time.Now())
	if err := h.db.Model(&user).Update("status", req.Status).Error; err != nil {
		log.Error("Failed to update user status", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "status update failed"})
	}

	log.Info("User status updated",
		zap.Uint("user_id", user.ID),
		zap.String("status", req.Status),
		zap.Uint("actor_id", p.UserID))

	return c.JSON(http.StatusOK, echo.Map{
		"message": "User status updated",
		"user_id": user.ID,
		"status":  req.Status,
	})
}
