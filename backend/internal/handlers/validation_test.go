package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestParseDueDate(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{in: "2026-03-01", want: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
		{in: "2026-03-01T10:30:00+02:00", want: time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC)},
		{in: "next tuesday", wantErr: true},
		{in: "2026-13-01", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDueDate(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDueDate(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && !got.Equal(tt.want) {
				t.Errorf("parseDueDate(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDueDateField(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("absent", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		due, ok := dueDateField(c, nil)
		if !ok || due != nil {
			t.Errorf("Expected no due date and no error, got %v, %t", due, ok)
		}
	})

	t.Run("valid", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		raw := "2026-03-01"
		due, ok := dueDateField(c, &raw)
		if !ok || due == nil || !due.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
			t.Errorf("Expected 2026-03-01, got %v, %t", due, ok)
		}
		if c.Writer.Written() {
			t.Error("Expected nothing written for a valid date")
		}
	})

	t.Run("unparseable writes 422", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		raw := "01/03/2026"
		due, ok := dueDateField(c, &raw)
		if ok || due != nil {
			t.Fatalf("Expected rejection, got %v, %t", due, ok)
		}

		expectStatus(t, w, http.StatusUnprocessableEntity)
		errs, _ := decodeBody(t, w)["errors"].(map[string]interface{})
		if _, found := errs["due_date"]; !found {
			t.Errorf("Expected a due_date error, got %v", errs)
		}
	})
}

func TestCreateTask_RejectsInvalidDueDate(t *testing.T) {
	env := setupTestEnv(t)
	_, token := env.createUser(t, "due@example.com")

	w := env.request(t, "POST", "/api/tasks", token, map[string]interface{}{
		"title":    "Ship it",
		"due_date": "someday",
	})
	expectStatus(t, w, http.StatusUnprocessableEntity)

	errs, _ := decodeBody(t, w)["errors"].(map[string]interface{})
	if _, found := errs["due_date"]; !found {
		t.Errorf("Expected a due_date error, got %v", errs)
	}
}
