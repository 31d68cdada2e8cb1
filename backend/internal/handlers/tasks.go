package handlers

import (
	"errors"
	"log"
	"net/http"

	"simpletasks/backend/internal/middleware"
	"simpletasks/backend/internal/models"
	"simpletasks/backend/internal/resources"
	"simpletasks/backend/internal/services"
	"simpletasks/backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type createTaskRequest struct {
	Title       string  `json:"title" binding:"required,notblank,max=255"`
	Description *string `json:"description" binding:"omitempty,max=5000"`
	Status      string  `json:"status" binding:"omitempty,oneof=pending in_progress completed"`
	Priority    string  `json:"priority" binding:"omitempty,oneof=low medium high"`
	DueDate     *string `json:"due_date" binding:"omitnil,due_date"`
}

// updateTaskRequest fields are all optional; a nil pointer means the field
// was absent or null, which explicitNull tells apart.
type updateTaskRequest struct {
	Title       *string `json:"title" binding:"omitnil,notblank,max=255"`
	Description *string `json:"description" binding:"omitnil,max=5000"`
	Status      *string `json:"status" binding:"omitnil,oneof=pending in_progress completed"`
	Priority    *string `json:"priority" binding:"omitnil,oneof=low medium high"`
	DueDate     *string `json:"due_date" binding:"omitnil,due_date"`
}

type TaskHandler struct {
	db          *gorm.DB
	taskService services.TaskService
}

func NewTaskHandler(db *gorm.DB, taskService services.TaskService) *TaskHandler {
	RegisterValidators()
	return &TaskHandler{db: db, taskService: taskService}
}

func (h *TaskHandler) ListTasks(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		unauthenticated(c)
		return
	}

	query := services.TaskQuery{
		Status:    c.Query("status"),
		Priority:  c.Query("priority"),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
		Page:      c.Query("page"),
		PerPage:   c.Query("per_page"),
	}

	page, err := h.taskService.ListTasks(h.db.WithContext(c.Request.Context()), userID, query)
	if err != nil {
		handleTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, resources.NewTaskCollection(page, requestURL(c), c.Request.URL.Query()))
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		unauthenticated(c)
		return
	}

	var req createTaskRequest
	if err := bindJSON(c, &req); err != nil {
		handleBindError(c, err)
		return
	}

	input := services.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      models.TaskStatus(req.Status),
		Priority:    models.TaskPriority(req.Priority),
	}
	due, ok := dueDateField(c, req.DueDate)
	if !ok {
		return
	}
	input.DueDate = due

	task, err := h.taskService.CreateTask(h.db.WithContext(c.Request.Context()), userID, input)
	if err != nil {
		handleTaskError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Task created successfully",
		"task":    resources.NewTaskResource(task),
	})
}

func (h *TaskHandler) GetTask(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		unauthenticated(c)
		return
	}
	taskID, ok := parseTaskID(c)
	if !ok {
		return
	}

	task, err := h.taskService.GetTask(h.db.WithContext(c.Request.Context()), userID, taskID)
	if err != nil {
		handleTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resources.NewTaskResource(task)})
}

// UpdateTask serves both PUT and PATCH; either way only the fields present
// in the body change.
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		unauthenticated(c)
		return
	}
	taskID, ok := parseTaskID(c)
	if !ok {
		return
	}

	db := h.db.WithContext(c.Request.Context())

	// a missing or foreign task is reported before the body is validated
	if _, err := h.taskService.GetTask(db, userID, taskID); err != nil {
		handleTaskError(c, err)
		return
	}

	var req updateTaskRequest
	if err := bindJSON(c, &req); err != nil {
		handleBindError(c, err)
		return
	}

	errs := fieldErrors{}
	for _, field := range []string{"title", "status", "priority"} {
		if explicitNull(c, field) {
			errs.add(field, "The "+field+" field is required.")
		}
	}
	if len(errs) > 0 {
		validationFailed(c, errs)
		return
	}

	input := services.UpdateTaskInput{
		Title:            req.Title,
		Description:      req.Description,
		ClearDescription: explicitNull(c, "description"),
		ClearDueDate:     explicitNull(c, "due_date"),
	}
	if req.Status != nil {
		status := models.TaskStatus(*req.Status)
		input.Status = &status
	}
	if req.Priority != nil {
		priority := models.TaskPriority(*req.Priority)
		input.Priority = &priority
	}
	due, ok := dueDateField(c, req.DueDate)
	if !ok {
		return
	}
	input.DueDate = due

	task, err := h.taskService.UpdateTask(db, userID, taskID, input)
	if err != nil {
		handleTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Task updated successfully",
		"task":    resources.NewTaskResource(task),
	})
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		unauthenticated(c)
		return
	}
	taskID, ok := parseTaskID(c)
	if !ok {
		return
	}

	if err := h.taskService.DeleteTask(h.db.WithContext(c.Request.Context()), userID, taskID); err != nil {
		handleTaskError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Task deleted successfully"})
}

// parseTaskID reads the :id path parameter. An id that is not a UUID cannot
// name any task, so it is a 404.
func parseTaskID(c *gin.Context) (uuid.UUID, bool) {
	raw := c.Param("id")
	if !utils.IsValidUUID(raw) {
		handleTaskError(c, services.ErrTaskNotFound)
		return uuid.Nil, false
	}
	return uuid.FromStringOrNil(raw), true
}

func handleTaskError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrTaskNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Task not found."})
	case errors.Is(err, services.ErrTaskForbidden):
		c.JSON(http.StatusForbidden, gin.H{"message": "Unauthorized"})
	default:
		log.Printf("❌ Task request %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		serverError(c)
	}
}

func unauthenticated(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{"message": "Unauthenticated."})
}

func serverError(c *gin.Context) {
	c.JSON(http.StatusInternalServerError, gin.H{"message": "Server Error"})
}

// requestURL is the absolute URL of the current path without its query.
func requestURL(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	} else if proto := c.GetHeader("X-Forwarded-Proto"); proto == "https" {
		scheme = proto
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.Path
}
