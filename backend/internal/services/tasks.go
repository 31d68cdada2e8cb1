package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"simpletasks/backend/internal/models"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

var (
	ErrTaskNotFound  = errors.New("task not found")
	ErrTaskForbidden = errors.New("task belongs to another user")
)

const (
	DefaultPerPage = 15
	MaxPerPage     = 100
)

// TaskQuery carries the raw listing parameters as received from the client.
type TaskQuery struct {
	Status    string
	Priority  string
	SortBy    string
	SortOrder string
	Page      string
	PerPage   string
}

// NormalizedTaskQuery is a TaskQuery after defaults and the sort allow-list
// have been applied.
type NormalizedTaskQuery struct {
	Status    string
	Priority  string
	SortBy    string
	SortOrder string
	Page      int
	PerPage   int
}

func (q TaskQuery) Normalize() NormalizedTaskQuery {
	n := NormalizedTaskQuery{
		Status:    q.Status,
		Priority:  q.Priority,
		SortBy:    "created_at",
		SortOrder: "desc",
		Page:      1,
		PerPage:   DefaultPerPage,
	}

	if models.SortableTaskColumns[q.SortBy] {
		n.SortBy = q.SortBy
	}
	if order := strings.ToLower(q.SortOrder); order == "asc" || order == "desc" {
		n.SortOrder = order
	}
	if v, err := strconv.Atoi(q.Page); err == nil && v > 0 {
		n.Page = v
	}
	if v, err := strconv.Atoi(q.PerPage); err == nil && v > 0 {
		n.PerPage = min(v, MaxPerPage)
	}
	return n
}

type TaskPage struct {
	Items       []models.Task
	Total       int64
	CurrentPage int
	LastPage    int
	PerPage     int
	// From and To are the 1-based positions of the first and last item on
	// the page, zero when the page is empty.
	From int
	To   int
}

type CreateTaskInput struct {
	Title       string
	Description *string
	Status      models.TaskStatus
	Priority    models.TaskPriority
	DueDate     *time.Time
}

// UpdateTaskInput describes a partial update; nil fields are left alone.
// ClearDescription and ClearDueDate null out the column.
type UpdateTaskInput struct {
	Title            *string
	Description      *string
	ClearDescription bool
	Status           *models.TaskStatus
	Priority         *models.TaskPriority
	DueDate          *time.Time
	ClearDueDate     bool
}

type TaskService interface {
	ListTasks(db *gorm.DB, userID uuid.UUID, query TaskQuery) (*TaskPage, error)
	CreateTask(db *gorm.DB, userID uuid.UUID, input CreateTaskInput) (*models.Task, error)
	GetTask(db *gorm.DB, userID, taskID uuid.UUID) (*models.Task, error)
	UpdateTask(db *gorm.DB, userID, taskID uuid.UUID, input UpdateTaskInput) (*models.Task, error)
	DeleteTask(db *gorm.DB, userID, taskID uuid.UUID) error
}

// OwnsTask reports whether the task belongs to the user. Every operation on
// an existing task goes through it.
func OwnsTask(userID uuid.UUID, task *models.Task) bool {
	return task != nil && userID != uuid.Nil && task.UserID == userID
}

type TaskServiceImpl struct{}

func NewTaskService() *TaskServiceImpl {
	return &TaskServiceImpl{}
}

func (s *TaskServiceImpl) ListTasks(db *gorm.DB, userID uuid.UUID, query TaskQuery) (*TaskPage, error) {
	q := query.Normalize()

	scoped := db.Model(&models.Task{}).Where("user_id = ?", userID)
	if q.Status != "" {
		scoped = scoped.Where("status = ?", q.Status)
	}
	if q.Priority != "" {
		scoped = scoped.Where("priority = ?", q.Priority)
	}

	var total int64
	if err := scoped.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count tasks: %w", err)
	}

	var tasks []models.Task
	offset := (q.Page - 1) * q.PerPage
	err := scoped.Session(&gorm.Session{}).
		Order(q.SortBy + " " + q.SortOrder).
		Order("id " + q.SortOrder).
		Offset(offset).
		Limit(q.PerPage).
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	page := &TaskPage{
		Items:       tasks,
		Total:       total,
		CurrentPage: q.Page,
		PerPage:     q.PerPage,
		LastPage:    max(1, int((total+int64(q.PerPage)-1)/int64(q.PerPage))),
	}
	if len(tasks) > 0 {
		page.From = offset + 1
		page.To = offset + len(tasks)
	}
	return page, nil
}

func (s *TaskServiceImpl) CreateTask(db *gorm.DB, userID uuid.UUID, input CreateTaskInput) (*models.Task, error) {
	task := models.Task{
		UserID:      userID,
		Title:       input.Title,
		Description: input.Description,
		Status:      input.Status,
		Priority:    input.Priority,
		DueDate:     input.DueDate,
	}
	if err := db.Create(&task).Error; err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return &task, nil
}

func (s *TaskServiceImpl) findTask(db *gorm.DB, taskID uuid.UUID) (*models.Task, error) {
	var task models.Task
	if err := db.Where("id = ?", taskID).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return &task, nil
}

func (s *TaskServiceImpl) GetTask(db *gorm.DB, userID, taskID uuid.UUID) (*models.Task, error) {
	task, err := s.findTask(db, taskID)
	if err != nil {
		return nil, err
	}
	if !OwnsTask(userID, task) {
		return nil, ErrTaskForbidden
	}
	return task, nil
}

func (s *TaskServiceImpl) UpdateTask(db *gorm.DB, userID, taskID uuid.UUID, input UpdateTaskInput) (*models.Task, error) {
	task, err := s.GetTask(db, userID, taskID)
	if err != nil {
		return nil, err
	}

	changes := map[string]interface{}{}
	if input.Title != nil {
		changes["title"] = *input.Title
	}
	if input.ClearDescription {
		changes["description"] = nil
	} else if input.Description != nil {
		changes["description"] = *input.Description
	}
	if input.Status != nil {
		changes["status"] = *input.Status
	}
	if input.Priority != nil {
		changes["priority"] = *input.Priority
	}
	if input.ClearDueDate {
		changes["due_date"] = nil
	} else if input.DueDate != nil {
		changes["due_date"] = *input.DueDate
	}

	if len(changes) == 0 {
		return task, nil
	}

	// the owner filter keeps the write scoped even if ownership changed
	// between the read and the write
	result := db.Model(task).Where("user_id = ?", userID).Updates(changes)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrTaskNotFound
	}

	return s.findTask(db, taskID)
}

func (s *TaskServiceImpl) DeleteTask(db *gorm.DB, userID, taskID uuid.UUID) error {
	task, err := s.GetTask(db, userID, taskID)
	if err != nil {
		return err
	}

	result := db.Where("user_id = ?", userID).Delete(task)
	if result.Error != nil {
		return fmt.Errorf("failed to delete task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}
