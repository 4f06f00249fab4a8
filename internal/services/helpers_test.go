package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/huangang/projecthub/internal/config"
	"github.com/huangang/projecthub/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testDescription = "A long enough description for a project so that validation passes."

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := models.Open(&config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// recordingQueue captures published tasks instead of processing them.
type recordingQueue struct {
	mu    sync.Mutex
	tasks []*MembershipTask
}

func (q *recordingQueue) Enqueue(task *MembershipTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *recordingQueue) IsAsync() bool { return false }
func (q *recordingQueue) Close() error  { return nil }

func (q *recordingQueue) events() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.tasks))
	for _, task := range q.tasks {
		out = append(out, task.Event)
	}
	return out
}

type testEnv struct {
	db          *gorm.DB
	queue       *recordingQueue
	tags        *TagService
	projects    *ProjectService
	memberships *MembershipService
	requests    *RequestService
	messages    *MessageService
	profiles    *ProfileService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := newTestDB(t)
	queue := &recordingQueue{}
	tags := NewTagService(db, nil)
	return &testEnv{
		db:          db,
		queue:       queue,
		tags:        tags,
		projects:    NewProjectService(db, tags),
		memberships: NewMembershipService(db, queue),
		requests:    NewRequestService(db, queue),
		messages:    NewMessageService(db, NewMessageHub()),
		profiles:    NewProfileService(db),
	}
}

func (e *testEnv) user(t *testing.T, name string) *models.User {
	t.Helper()
	u := &models.User{Name: name, Email: strings.ToLower(name) + "@example.com"}
	require.NoError(t, e.db.Create(u).Error)
	return u
}

func (e *testEnv) project(t *testing.T, owner *models.User, name string, tags ...string) *models.Project {
	t.Helper()
	p, err := e.projects.Create(context.Background(), owner.ID, &CreateProjectRequest{
		Name:        name,
		Description: testDescription,
		Tags:        tags,
	})
	require.NoError(t, err)
	return p
}

func (e *testEnv) member(t *testing.T, project *models.Project, u *models.User) *models.ProjectMembership {
	t.Helper()
	m, err := e.memberships.Join(context.Background(), u.ID, project.ID)
	require.NoError(t, err)
	return m
}

func (e *testEnv) tagCount(t *testing.T, name string) int {
	t.Helper()
	var tag models.Tag
	require.NoError(t, e.db.Where("name = ?", name).First(&tag).Error)
	return tag.ProjectsCount
}

func projectIDs(projects []models.Project) []string {
	ids := make([]string, 0, len(projects))
	for _, p := range projects {
		ids = append(ids, p.ID)
	}
	return ids
}
