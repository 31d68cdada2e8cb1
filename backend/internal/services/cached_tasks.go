package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"simpletasks/backend/internal/cache"
	"simpletasks/backend/internal/models"

	"github.com/gofrs/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

// CachedTaskService is a read-through cache in front of a TaskService.
// Single tasks are keyed by id, list pages by owner and normalized query.
//
// Every entry carries the version of its task (or of its owner's lists) read
// before the load. Writes bump those versions once the row is committed, so
// a load that raced a write is a miss on the next read even if it landed in
// the cache afterwards.
type CachedTaskService struct {
	inner    TaskService
	cache    cache.Cache
	versions cache.Versions
	warmer   *cache.WorkerPool
	group    singleflight.Group
	taskTTL  time.Duration
	listTTL  time.Duration
}

type cachedTask struct {
	Version int64       `json:"version"`
	Task    models.Task `json:"task"`
}

type cachedPage struct {
	Version int64    `json:"version"`
	Page    TaskPage `json:"page"`
}

func NewCachedTaskService(inner TaskService, c cache.Cache, versions cache.Versions, taskTTL, listTTL time.Duration) *CachedTaskService {
	return &CachedTaskService{
		inner:    inner,
		cache:    c,
		versions: versions,
		taskTTL:  taskTTL,
		listTTL:  listTTL,
	}
}

// WithWarmer enables background warming of a user's first page.
func (s *CachedTaskService) WithWarmer(pool *cache.WorkerPool) *CachedTaskService {
	s.warmer = pool
	return s
}

func taskKey(taskID uuid.UUID) string {
	return "task:" + taskID.String()
}

func listPrefix(userID uuid.UUID) string {
	return "tasks:" + userID.String() + ":"
}

func listKey(userID uuid.UUID, q NormalizedTaskQuery) string {
	return fmt.Sprintf("%sstatus=%s&priority=%s&sort=%s.%s&page=%d&per_page=%d",
		listPrefix(userID), q.Status, q.Priority, q.SortBy, q.SortOrder, q.Page, q.PerPage)
}

// listVersionKey covers every list page of the user. Versions live in their
// own namespace, so it may share a name with cache keys.
func listVersionKey(userID uuid.UUID) string {
	return "tasks:" + userID.String()
}

func (s *CachedTaskService) ListTasks(db *gorm.DB, userID uuid.UUID, query TaskQuery) (*TaskPage, error) {
	version, err := s.versions.Current(db.Statement.Context, listVersionKey(userID))
	if err != nil {
		log.Printf("⚠️  Task list version unavailable for user %s, reading through: %v", userID, err)
		return s.inner.ListTasks(db, userID, query)
	}

	key := listKey(userID, query.Normalize())

	var entry cachedPage
	if err := s.cache.Get(key, &entry); err == nil && entry.Version == version {
		return &entry.Page, nil
	}

	v, err, _ := s.group.Do(fmt.Sprintf("%s@%d", key, version), func() (interface{}, error) {
		result, err := s.inner.ListTasks(db, userID, query)
		if err != nil {
			return nil, err
		}
		s.cache.Set(key, cachedPage{Version: version, Page: *result}, s.listTTL)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*TaskPage), nil
}

func (s *CachedTaskService) CreateTask(db *gorm.DB, userID uuid.UUID, input CreateTaskInput) (*models.Task, error) {
	task, err := s.inner.CreateTask(db, userID, input)
	if err != nil {
		return nil, err
	}
	s.invalidate(db.Statement.Context, userID, uuid.Nil)
	return task, nil
}

func (s *CachedTaskService) GetTask(db *gorm.DB, userID, taskID uuid.UUID) (*models.Task, error) {
	version, err := s.versions.Current(db.Statement.Context, taskKey(taskID))
	if err != nil {
		log.Printf("⚠️  Task version unavailable for %s, reading through: %v", taskID, err)
		return s.inner.GetTask(db, userID, taskID)
	}

	var entry cachedTask
	if err := s.cache.Get(taskKey(taskID), &entry); err == nil && entry.Version == version {
		if !OwnsTask(userID, &entry.Task) {
			return nil, ErrTaskForbidden
		}
		return &entry.Task, nil
	}

	sfKey := fmt.Sprintf("%s:%s@%d", userID, taskKey(taskID), version)
	v, err, _ := s.group.Do(sfKey, func() (interface{}, error) {
		result, err := s.inner.GetTask(db, userID, taskID)
		if err != nil {
			return nil, err
		}
		s.cache.Set(taskKey(taskID), cachedTask{Version: version, Task: *result}, s.taskTTL)
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	found := *v.(*models.Task)
	return &found, nil
}

func (s *CachedTaskService) UpdateTask(db *gorm.DB, userID, taskID uuid.UUID, input UpdateTaskInput) (*models.Task, error) {
	task, err := s.inner.UpdateTask(db, userID, taskID, input)
	if err != nil {
		return nil, err
	}
	s.invalidate(db.Statement.Context, userID, taskID)
	return task, nil
}

func (s *CachedTaskService) DeleteTask(db *gorm.DB, userID, taskID uuid.UUID) error {
	if err := s.inner.DeleteTask(db, userID, taskID); err != nil {
		return err
	}
	s.invalidate(db.Statement.Context, userID, taskID)
	return nil
}

// invalidate runs after the write is committed. Bumping the versions is what
// keeps readers correct; deleting the keys only frees the space early.
func (s *CachedTaskService) invalidate(ctx context.Context, userID, taskID uuid.UUID) {
	if taskID != uuid.Nil {
		if _, err := s.versions.Bump(ctx, taskKey(taskID)); err != nil {
			log.Printf("⚠️  Failed to bump version of task %s: %v", taskID, err)
		}
		if err := s.cache.Delete(taskKey(taskID)); err != nil {
			log.Printf("⚠️  Failed to evict %s: %v", taskKey(taskID), err)
		}
	}

	if _, err := s.versions.Bump(ctx, listVersionKey(userID)); err != nil {
		log.Printf("⚠️  Failed to bump task list version for user %s: %v", userID, err)
	}
	if err := s.cache.DeletePattern(listPrefix(userID) + "*"); err != nil {
		log.Printf("⚠️  Failed to evict task lists for user %s: %v", userID, err)
	}
}

// WarmUserTasks queues a background load of the user's default first page.
// It is a no-op without a warmer or when the queue is full.
func (s *CachedTaskService) WarmUserTasks(db *gorm.DB, userID uuid.UUID) bool {
	if s.warmer == nil {
		return false
	}
	query := TaskQuery{}
	return s.warmer.SubmitJob(cache.WarmupJob{
		Key: listKey(userID, query.Normalize()),
		TTL: s.listTTL,
		Load: func(ctx context.Context) (interface{}, error) {
			version, err := s.versions.Current(ctx, listVersionKey(userID))
			if err != nil {
				return nil, err
			}
			page, err := s.inner.ListTasks(db.WithContext(ctx), userID, query)
			if err != nil {
				return nil, err
			}
			return cachedPage{Version: version, Page: *page}, nil
		},
	})
}
