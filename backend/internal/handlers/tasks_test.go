package handlers

import (
	"net/http"
	"strings"
	"testing"

	"simpletasks/backend/internal/models"

	"github.com/gofrs/uuid"
)

func TestTaskRoutes_RequireAuthentication(t *testing.T) {
	env := setupTestEnv(t)

	tests := []struct {
		method string
		path   string
	}{
		{"GET", "/api/tasks"},
		{"POST", "/api/tasks"},
		{"GET", "/api/tasks/" + uuid.Must(uuid.NewV4()).String()},
		{"PATCH", "/api/tasks/" + uuid.Must(uuid.NewV4()).String()},
		{"DELETE", "/api/tasks/" + uuid.Must(uuid.NewV4()).String()},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := env.request(t, tt.method, tt.path, "", nil)
			expectStatus(t, w, http.StatusUnauthorized)
			if decodeBody(t, w)["message"] != "Unauthenticated." {
				t.Errorf("Unexpected body %s", w.Body.String())
			}
		})
	}
}

func TestCreateTask(t *testing.T) {
	env := setupTestEnv(t)
	userID, token := env.createUser(t, "u@example.com")

	w := env.request(t, "POST", "/api/tasks", token, map[string]interface{}{
		"title":       "Write docs",
		"description": "All endpoints",
		"priority":    "high",
		"due_date":    "2030-01-15",
	})
	expectStatus(t, w, http.StatusCreated)

	body := decodeBody(t, w)
	if body["message"] != "Task created successfully" {
		t.Errorf("Unexpected message %v", body["message"])
	}
	task := body["task"].(map[string]interface{})
	if task["user_id"] != userID.String() {
		t.Errorf("Expected owner %s, got %v", userID, task["user_id"])
	}
	if task["status"] != "pending" || task["priority"] != "high" {
		t.Errorf("Unexpected enums %v/%v", task["status"], task["priority"])
	}
	if task["due_date"] != "2030-01-15T00:00:00Z" {
		t.Errorf("Unexpected due date %v", task["due_date"])
	}
}

func TestCreateTask_IgnoresClientOwner(t *testing.T) {
	env := setupTestEnv(t)
	userID, token := env.createUser(t, "u@example.com")
	otherID, _ := env.createUser(t, "other@example.com")

	w := env.request(t, "POST", "/api/tasks", token, map[string]interface{}{
		"title":   "mine",
		"user_id": otherID.String(),
	})
	expectStatus(t, w, http.StatusCreated)

	task := decodeBody(t, w)["task"].(map[string]interface{})
	if task["user_id"] != userID.String() {
		t.Errorf("Expected task owned by caller %s, got %v", userID, task["user_id"])
	}

	var count int64
	env.db.Model(&models.Task{}).Where("user_id = ?", otherID).Count(&count)
	if count != 0 {
		t.Error("Expected no task owned by the spoofed user")
	}
}

func TestCreateTask_Validation(t *testing.T) {
	env := setupTestEnv(t)
	_, token := env.createUser(t, "u@example.com")

	tests := []struct {
		name  string
		body  interface{}
		field string
	}{
		{"missing title", map[string]interface{}{"description": "x"}, "title"},
		{"blank title", map[string]interface{}{"title": "   "}, "title"},
		{"long title", map[string]interface{}{"title": strings.Repeat("a", 256)}, "title"},
		{"bad status", map[string]interface{}{"title": "t", "status": "done"}, "status"},
		{"bad priority", map[string]interface{}{"title": "t", "priority": "urgent"}, "priority"},
		{"bad due date", map[string]interface{}{"title": "t", "due_date": "next week"}, "due_date"},
		{"wrong type", map[string]interface{}{"title": 42}, "title"},
		{"empty body", "", "title"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.request(t, "POST", "/api/tasks", token, tt.body)
			expectStatus(t, w, http.StatusUnprocessableEntity)

			body := decodeBody(t, w)
			if body["message"] != invalidDataMessage {
				t.Errorf("Unexpected message %v", body["message"])
			}
			errs, ok := body["errors"].(map[string]interface{})
			if !ok {
				t.Fatalf("Expected errors object, got %s", w.Body.String())
			}
			if _, ok := errs[tt.field]; !ok {
				t.Errorf("Expected error for %s, got %v", tt.field, errs)
			}
		})
	}
}

func TestCreateTask_MalformedJSON(t *testing.T) {
	env := setupTestEnv(t)
	_, token := env.createUser(t, "u@example.com")

	w := env.request(t, "POST", "/api/tasks", token, `{"title": `)
	expectStatus(t, w, http.StatusUnprocessableEntity)
	if _, ok := decodeBody(t, w)["message"]; !ok {
		t.Error("Expected a message for malformed JSON")
	}
}

func TestListTasks_StatusFilter(t *testing.T) {
	env := setupTestEnv(t)
	userID, token := env.createUser(t, "u@example.com")

	first := env.createTask(t, userID, "first", models.StatusPending, models.PriorityHigh)
	env.createTask(t, userID, "second", models.StatusCompleted, models.PriorityLow)

	w := env.request(t, "GET", "/api/tasks?status=pending", token, nil)
	expectStatus(t, w, http.StatusOK)

	body := decodeBody(t, w)
	data := body["data"].([]interface{})
	if len(data) != 1 {
		t.Fatalf("Expected 1 task, got %d", len(data))
	}
	if data[0].(map[string]interface{})["id"] != first.ID.String() {
		t.Errorf("Expected the first task, got %v", data[0])
	}

	meta := body["meta"].(map[string]interface{})
	if meta["total"].(float64) != 1 || meta["per_page"].(float64) != 15 || meta["current_page"].(float64) != 1 {
		t.Errorf("Unexpected meta %v", meta)
	}
	links := body["links"].(map[string]interface{})
	if !strings.Contains(links["first"].(string), "status=pending") {
		t.Errorf("Expected links to keep the filter, got %v", links["first"])
	}
}

func TestListTasks_CrossUserIsolation(t *testing.T) {
	env := setupTestEnv(t)
	alice, _ := env.createUser(t, "alice@example.com")
	_, bobToken := env.createUser(t, "bob@example.com")

	env.createTask(t, alice, "secret", models.StatusPending, models.PriorityHigh)

	w := env.request(t, "GET", "/api/tasks", bobToken, nil)
	expectStatus(t, w, http.StatusOK)

	if data := decodeBody(t, w)["data"].([]interface{}); len(data) != 0 {
		t.Errorf("Expected bob to see no tasks, got %v", data)
	}
}

func TestListTasks_HardenedParameters(t *testing.T) {
	env := setupTestEnv(t)
	userID, token := env.createUser(t, "u@example.com")
	env.createTask(t, userID, "a", models.StatusPending, models.PriorityHigh)

	w := env.request(t, "GET", "/api/tasks?sort_by=password&sort_order=sideways&per_page=abc", token, nil)
	expectStatus(t, w, http.StatusOK)

	meta := decodeBody(t, w)["meta"].(map[string]interface{})
	if meta["per_page"].(float64) != 15 {
		t.Errorf("Expected per_page to fall back to 15, got %v", meta["per_page"])
	}
}

func TestListTasks_SortAndPaginate(t *testing.T) {
	env := setupTestEnv(t)
	userID, token := env.createUser(t, "u@example.com")
	for _, title := range []string{"c", "a", "b"} {
		env.createTask(t, userID, title, models.StatusPending, models.PriorityLow)
	}

	w := env.request(t, "GET", "/api/tasks?sort_by=title&sort_order=asc&per_page=2&page=2", token, nil)
	expectStatus(t, w, http.StatusOK)

	body := decodeBody(t, w)
	data := body["data"].([]interface{})
	if len(data) != 1 || data[0].(map[string]interface{})["title"] != "c" {
		t.Errorf("Expected [c] on page 2, got %v", data)
	}
	meta := body["meta"].(map[string]interface{})
	if meta["last_page"].(float64) != 2 || meta["from"].(float64) != 3 {
		t.Errorf("Unexpected meta %v", meta)
	}
	links := body["links"].(map[string]interface{})
	if links["next"] != nil {
		t.Errorf("Expected no next link on the last page, got %v", links["next"])
	}
}

func TestGetTask(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerToken := env.createUser(t, "owner@example.com")
	_, otherToken := env.createUser(t, "other@example.com")
	task := env.createTask(t, owner, "mine", models.StatusPending, models.PriorityLow)

	t.Run("owner", func(t *testing.T) {
		w := env.request(t, "GET", "/api/tasks/"+task.ID.String(), ownerToken, nil)
		expectStatus(t, w, http.StatusOK)
		data := decodeBody(t, w)["data"].(map[string]interface{})
		if data["id"] != task.ID.String() {
			t.Errorf("Unexpected task %v", data)
		}
		if data["description"] != nil {
			t.Errorf("Expected null description, got %v", data["description"])
		}
	})

	t.Run("other user", func(t *testing.T) {
		w := env.request(t, "GET", "/api/tasks/"+task.ID.String(), otherToken, nil)
		expectStatus(t, w, http.StatusForbidden)
		if decodeBody(t, w)["message"] != "Unauthorized" {
			t.Errorf("Unexpected body %s", w.Body.String())
		}
	})

	t.Run("missing", func(t *testing.T) {
		w := env.request(t, "GET", "/api/tasks/"+uuid.Must(uuid.NewV4()).String(), ownerToken, nil)
		expectStatus(t, w, http.StatusNotFound)
	})

	t.Run("malformed id", func(t *testing.T) {
		w := env.request(t, "GET", "/api/tasks/5", ownerToken, nil)
		expectStatus(t, w, http.StatusNotFound)
	})
}

func TestUpdateTask(t *testing.T) {
	env := setupTestEnv(t)
	owner, token := env.createUser(t, "owner@example.com")
	task := env.createTask(t, owner, "before", models.StatusPending, models.PriorityLow)

	w := env.request(t, "PATCH", "/api/tasks/"+task.ID.String(), token, map[string]interface{}{
		"status":  "completed",
		"user_id": uuid.Must(uuid.NewV4()).String(),
		"id":      uuid.Must(uuid.NewV4()).String(),
	})
	expectStatus(t, w, http.StatusOK)

	body := decodeBody(t, w)
	if body["message"] != "Task updated successfully" {
		t.Errorf("Unexpected message %v", body["message"])
	}
	updated := body["task"].(map[string]interface{})
	if updated["status"] != "completed" || updated["title"] != "before" {
		t.Errorf("Expected only status to change, got %v", updated)
	}
	if updated["id"] != task.ID.String() || updated["user_id"] != owner.String() {
		t.Errorf("Expected id and owner to be unchanged, got %v", updated)
	}
}

func TestUpdateTask_PutAndNulls(t *testing.T) {
	env := setupTestEnv(t)
	owner, token := env.createUser(t, "owner@example.com")
	task := env.createTask(t, owner, "t", models.StatusPending, models.PriorityLow)

	w := env.request(t, "PUT", "/api/tasks/"+task.ID.String(), token, map[string]interface{}{
		"description": "notes",
		"due_date":    "2031-06-01T09:30:00+02:00",
	})
	expectStatus(t, w, http.StatusOK)
	updated := decodeBody(t, w)["task"].(map[string]interface{})
	if updated["description"] != "notes" || updated["due_date"] != "2031-06-01T07:30:00Z" {
		t.Errorf("Unexpected update %v", updated)
	}

	w = env.request(t, "PATCH", "/api/tasks/"+task.ID.String(), token, `{"description": null, "due_date": null}`)
	expectStatus(t, w, http.StatusOK)
	cleared := decodeBody(t, w)["task"].(map[string]interface{})
	if cleared["description"] != nil || cleared["due_date"] != nil {
		t.Errorf("Expected nullable fields cleared, got %v", cleared)
	}

	w = env.request(t, "PATCH", "/api/tasks/"+task.ID.String(), token, `{"title": null}`)
	expectStatus(t, w, http.StatusUnprocessableEntity)
}

func TestUpdateTask_Validation(t *testing.T) {
	env := setupTestEnv(t)
	owner, token := env.createUser(t, "owner@example.com")
	task := env.createTask(t, owner, "t", models.StatusPending, models.PriorityLow)

	for _, body := range []string{`{"title": ""}`, `{"status": "archived"}`, `{"due_date": ""}`} {
		w := env.request(t, "PATCH", "/api/tasks/"+task.ID.String(), token, body)
		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("Expected 422 for %s, got %d", body, w.Code)
		}
	}
}

func TestUpdateTask_OtherUserIsUnauthorized(t *testing.T) {
	env := setupTestEnv(t)
	owner, _ := env.createUser(t, "owner@example.com")
	_, intruderToken := env.createUser(t, "intruder@example.com")
	task := env.createTask(t, owner, "original", models.StatusPending, models.PriorityLow)

	w := env.request(t, "PUT", "/api/tasks/"+task.ID.String(), intruderToken, map[string]interface{}{
		"title": "hijacked",
	})
	expectStatus(t, w, http.StatusForbidden)
	if decodeBody(t, w)["message"] != "Unauthorized" {
		t.Errorf("Unexpected body %s", w.Body.String())
	}

	var stored models.Task
	env.db.First(&stored, "id = ?", task.ID)
	if stored.Title != "original" {
		t.Errorf("Expected record unchanged, got %q", stored.Title)
	}

	// ownership is checked before the body is validated
	w = env.request(t, "PATCH", "/api/tasks/"+task.ID.String(), intruderToken, `{"status": "bogus"}`)
	expectStatus(t, w, http.StatusForbidden)
}

func TestDeleteTask(t *testing.T) {
	env := setupTestEnv(t)
	owner, ownerToken := env.createUser(t, "owner@example.com")
	_, otherToken := env.createUser(t, "other@example.com")
	task := env.createTask(t, owner, "doomed", models.StatusPending, models.PriorityLow)
	path := "/api/tasks/" + task.ID.String()

	w := env.request(t, "DELETE", path, otherToken, nil)
	expectStatus(t, w, http.StatusForbidden)

	w = env.request(t, "DELETE", path, ownerToken, nil)
	expectStatus(t, w, http.StatusOK)
	if decodeBody(t, w)["message"] != "Task deleted successfully" {
		t.Errorf("Unexpected body %s", w.Body.String())
	}

	w = env.request(t, "GET", path, ownerToken, nil)
	expectStatus(t, w, http.StatusNotFound)

	w = env.request(t, "DELETE", path, ownerToken, nil)
	expectStatus(t, w, http.StatusNotFound)
}
