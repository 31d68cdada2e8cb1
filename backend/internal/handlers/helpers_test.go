package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"simpletasks/backend/internal/middleware"
	"simpletasks/backend/internal/models"
	"simpletasks/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	router *gin.Engine
	db     *gorm.DB
	auth   *services.AuthServiceImpl
	tasks  services.TaskService
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&models.User{}, &models.Token{}, &models.Task{}); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	authService := services.NewAuthService("test-secret", time.Hour, "test")
	taskService := services.NewTaskService()

	router := gin.New()
	RegisterAPIRoutes(
		router.Group("/api"),
		NewAuthHandler(db, authService, services.NewRegisterServiceWithCost(bcrypt.MinCost)),
		NewTaskHandler(db, taskService),
		middleware.AuthzMiddleware(middleware.AuthzConfig{
			Authenticator: services.NewTokenAuthenticator(db, authService),
		}),
	)

	return &testEnv{router: router, db: db, auth: authService, tasks: taskService}
}

// createUser inserts a user and issues a token for it.
func (e *testEnv) createUser(t *testing.T, email string) (uuid.UUID, string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	user := models.User{Name: "Test", Email: email, Password: string(hash)}
	if err := e.db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	token, err := e.auth.GenerateToken(e.db, user.ID)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return user.ID, token
}

func (e *testEnv) createTask(t *testing.T, userID uuid.UUID, title string, status models.TaskStatus, priority models.TaskPriority) *models.Task {
	t.Helper()
	task, err := e.tasks.CreateTask(e.db, userID, services.CreateTaskInput{Title: title, Status: status, Priority: priority})
	if err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	return task
}

func (e *testEnv) request(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return body
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("Expected status %d, got %d: %s", want, w.Code, w.Body.String())
	}
}
