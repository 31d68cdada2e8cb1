package resources

import (
	"net/url"
	"strconv"
	"time"

	"simpletasks/backend/internal/models"
	"simpletasks/backend/internal/services"
)

// TaskResource is the wire representation of a task.
type TaskResource struct {
	ID          string  `json:"id"`
	UserID      string  `json:"user_id"`
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	DueDate     *string `json:"due_date"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func NewTaskResource(task *models.Task) TaskResource {
	r := TaskResource{
		ID:          task.ID.String(),
		UserID:      task.UserID.String(),
		Title:       task.Title,
		Description: task.Description,
		Status:      string(task.Status),
		Priority:    string(task.Priority),
		CreatedAt:   formatTime(task.CreatedAt),
		UpdatedAt:   formatTime(task.UpdatedAt),
	}
	if task.DueDate != nil {
		due := formatTime(*task.DueDate)
		r.DueDate = &due
	}
	return r
}

type PaginationLinks struct {
	First string  `json:"first"`
	Last  string  `json:"last"`
	Prev  *string `json:"prev"`
	Next  *string `json:"next"`
}

type PaginationMeta struct {
	CurrentPage int    `json:"current_page"`
	From        *int   `json:"from"`
	LastPage    int    `json:"last_page"`
	Path        string `json:"path"`
	PerPage     int    `json:"per_page"`
	To          *int   `json:"to"`
	Total       int64  `json:"total"`
}

// TaskCollection is a paginated list of tasks with navigation links.
type TaskCollection struct {
	Data  []TaskResource  `json:"data"`
	Links PaginationLinks `json:"links"`
	Meta  PaginationMeta  `json:"meta"`
}

// NewTaskCollection wraps a page. path is the absolute URL of the listing
// endpoint; query holds the request's parameters, which every link repeats
// with only page replaced.
func NewTaskCollection(page *services.TaskPage, path string, query url.Values) TaskCollection {
	data := make([]TaskResource, 0, len(page.Items))
	for i := range page.Items {
		data = append(data, NewTaskResource(&page.Items[i]))
	}

	pageURL := func(n int) string {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("page", strconv.Itoa(n))
		return path + "?" + q.Encode()
	}

	links := PaginationLinks{
		First: pageURL(1),
		Last:  pageURL(page.LastPage),
	}
	if page.CurrentPage > 1 {
		prev := pageURL(page.CurrentPage - 1)
		links.Prev = &prev
	}
	if page.CurrentPage < page.LastPage {
		next := pageURL(page.CurrentPage + 1)
		links.Next = &next
	}

	meta := PaginationMeta{
		CurrentPage: page.CurrentPage,
		LastPage:    page.LastPage,
		Path:        path,
		PerPage:     page.PerPage,
		Total:       page.Total,
	}
	if len(page.Items) > 0 {
		from, to := page.From, page.To
		meta.From = &from
		meta.To = &to
	}

	return TaskCollection{Data: data, Links: links, Meta: meta}
}
