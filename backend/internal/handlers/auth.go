package handlers

import (
	"errors"
	"log"
	"net/http"

	"simpletasks/backend/internal/middleware"
	"simpletasks/backend/internal/resources"
	"simpletasks/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type registerRequest struct {
	Name                 string `json:"name" binding:"required,notblank,max=255"`
	Email                string `json:"email" binding:"required,email,max=255"`
	Password             string `json:"password" binding:"required,min=8"`
	PasswordConfirmation string `json:"password_confirmation" binding:"eqfield=Password"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TaskWarmer preloads a user's first page of tasks after login.
type TaskWarmer interface {
	WarmUserTasks(db *gorm.DB, userID uuid.UUID) bool
}

type AuthHandler struct {
	db              *gorm.DB
	authService     services.AuthService
	registerService services.RegisterService
	warmer          TaskWarmer
}

func NewAuthHandler(db *gorm.DB, authService services.AuthService, registerService services.RegisterService) *AuthHandler {
	RegisterValidators()
	return &AuthHandler{db: db, authService: authService, registerService: registerService}
}

func (h *AuthHandler) WithWarmer(warmer TaskWarmer) *AuthHandler {
	h.warmer = warmer
	return h
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := bindJSON(c, &req); err != nil {
		handleBindError(c, err)
		return
	}

	db := h.db.WithContext(c.Request.Context())

	user, err := h.registerService.RegisterUser(db, services.RegistrationRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			validationFailed(c, fieldErrors{"email": {"The email has already been taken."}})
			return
		}
		log.Printf("❌ Registration failed: %v", err)
		serverError(c)
		return
	}

	token, err := h.authService.GenerateToken(db, user.ID)
	if err != nil {
		log.Printf("❌ Failed to issue token for user %s: %v", user.ID, err)
		serverError(c)
		return
	}

	log.Printf("✅ User registered: %s", user.ID)
	c.JSON(http.StatusCreated, gin.H{
		"message": "User registered successfully",
		"user":    resources.NewUserResource(user),
		"token":   token,
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		handleBindError(c, err)
		return
	}

	db := h.db.WithContext(c.Request.Context())

	user, err := h.authService.LoginUser(db, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid credentials"})
			return
		}
		log.Printf("❌ Login failed: %v", err)
		serverError(c)
		return
	}

	token, err := h.authService.GenerateToken(db, user.ID)
	if err != nil {
		log.Printf("❌ Failed to issue token for user %s: %v", user.ID, err)
		serverError(c)
		return
	}

	if h.warmer != nil {
		// the warmer runs after this request ends, so it gets the bare handle
		h.warmer.WarmUserTasks(h.db, user.ID)
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"user":    resources.NewUserResource(user),
		"token":   token,
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	token := middleware.AccessToken(c)
	if token == "" {
		unauthenticated(c)
		return
	}

	if err := h.authService.RevokeToken(h.db.WithContext(c.Request.Context()), token); err != nil {
		if errors.Is(err, services.ErrInvalidToken) {
			unauthenticated(c)
			return
		}
		log.Printf("❌ Logout failed: %v", err)
		serverError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		unauthenticated(c)
		return
	}

	user, err := h.authService.GetUser(h.db.WithContext(c.Request.Context()), userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			unauthenticated(c)
			return
		}
		log.Printf("❌ Failed to load user %s: %v", userID, err)
		serverError(c)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": resources.NewUserResource(user)})
}
