package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/huangang/projecthub/internal/config"
	"github.com/huangang/projecthub/internal/middleware"
	"github.com/huangang/projecthub/internal/models"
	"github.com/huangang/projecthub/internal/services"
	"github.com/huangang/projecthub/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testDescription = "A long enough description for a project so that validation passes."

func init() {
	gin.SetMode(gin.TestMode)
	utils.SetJWTSecret("test-secret-for-handler-testing")
}

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	auth   *services.AuthService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := models.Open(&config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	queue := services.NewSyncQueue()
	hub := services.NewMessageHub()
	tags := services.NewTagService(db, nil)
	projects := services.NewProjectService(db, tags)
	auth := services.NewAuthService(db, &config.JWTConfig{ExpireHour: 1})

	authHandler := NewAuthHandler(auth)
	projectHandler := NewProjectHandler(projects)
	membershipHandler := NewMembershipHandler(services.NewMembershipService(db, queue), services.NewRequestService(db, queue))
	tagHandler := NewTagHandler(tags, projects)
	messageHandler := NewMessageHandler(services.NewMessageService(db, hub))
	healthHandler := NewHealthHandler(db, queue, hub)
	profileHandler := NewProfileHandler(services.NewProfileService(db))

	r := gin.New()
	r.GET("/health", healthHandler.CheckHealth)

	api := r.Group("/api")
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)
	api.GET("/tags", tagHandler.Index)
	api.GET("/tags/:name/projects", tagHandler.Projects)
	api.GET("/projects", projectHandler.List)
	api.GET("/projects/:id", middleware.OptionalAuth(), projectHandler.Get)
	api.GET("/projects/:id/messages/stream", middleware.StreamAuth(), messageHandler.Stream)
	api.GET("/users/:id/profile", profileHandler.Get)
	api.GET("/skills", profileHandler.Skills)

	protected := api.Group("", middleware.AuthRequired())
	protected.GET("/auth/me", authHandler.Me)
	protected.PUT("/profile", profileHandler.Update)
	protected.POST("/projects", projectHandler.Create)
	protected.PUT("/projects/:id", projectHandler.Update)
	protected.POST("/projects/:id/join", membershipHandler.Join)
	protected.POST("/memberships/:id/revoke", membershipHandler.Revoke)
	protected.POST("/projects/:id/membership-requests", membershipHandler.SubmitRequest)
	protected.GET("/projects/:id/membership-requests", membershipHandler.ListRequests)
	protected.POST("/membership-requests/:id/accept", membershipHandler.AcceptRequest)
	protected.GET("/projects/:id/messages", messageHandler.List)
	protected.POST("/projects/:id/messages", messageHandler.Post)

	return &testServer{router: r, db: db, auth: auth}
}

// signUp registers a user and returns its id and bearer token.
func (s *testServer) signUp(t *testing.T, name string) (string, string) {
	t.Helper()
	resp, err := s.auth.Register(context.Background(), &services.RegisterRequest{
		Name:     name,
		Email:    strings.ToLower(name) + "@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	return resp.User.ID, resp.Token
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Field   string          `json:"field"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, _ := http.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func (s *testServer) createProject(t *testing.T, token, name string, tags ...string) string {
	t.Helper()
	code, env := s.do(t, "POST", "/api/projects", token, gin.H{
		"name":        name,
		"description": testDescription,
		"tags":        tags,
	})
	require.Equal(t, http.StatusCreated, code, env.Message)

	var project struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &project))
	return project.ID
}

func TestRespondErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		field  string
	}{
		{"validation", &services.DomainError{Kind: services.ErrValidation, Field: "name", Message: "name can't be blank"}, http.StatusBadRequest, "name"},
		{"not found", &services.DomainError{Kind: services.ErrNotFound, Message: "project not found"}, http.StatusNotFound, ""},
		{"access denied", services.ErrRestrictedToOwner, http.StatusForbidden, ""},
		{"unauthenticated", services.ErrUnauthenticated, http.StatusUnauthorized, ""},
		{"duplicate request", services.ErrDuplicateRequest, http.StatusConflict, ""},
		{"already member", services.ErrAlreadyMember, http.StatusConflict, ""},
		{"conflict", services.ErrConflict, http.StatusConflict, ""},
		{"opaque", assert.AnError, http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request, _ = http.NewRequest("GET", "/", nil)

			respondError(c, tt.err)

			assert.Equal(t, tt.status, w.Code)
			var env envelope
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
			assert.Equal(t, tt.field, env.Field)
			if tt.status == http.StatusInternalServerError {
				assert.NotContains(t, env.Message, assert.AnError.Error())
			}
		})
	}
}

func TestAuthEndpoints(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(t, "POST", "/api/auth/register", "", gin.H{"name": "Ada", "email": "Ada@Example.com", "password": "password123"})
	require.Equal(t, http.StatusCreated, code, env.Message)

	code, env = s.do(t, "POST", "/api/auth/register", "", gin.H{"name": "Ada", "email": "ada@example.com", "password": "password123"})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "email", env.Field)

	code, _ = s.do(t, "POST", "/api/auth/login", "", gin.H{"email": "ada@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = s.do(t, "POST", "/api/auth/login", "", gin.H{"email": "ada@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &login))
	require.NotEmpty(t, login.Token)

	code, env = s.do(t, "GET", "/api/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), "ada@example.com")

	code, _ = s.do(t, "GET", "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestCreateProjectValidation(t *testing.T) {
	s := newTestServer(t)
	_, token := s.signUp(t, "Owner")

	code, env := s.do(t, "POST", "/api/projects", token, gin.H{"name": "Alpha", "description": "too short"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "description", env.Field)

	code, _ = s.do(t, "POST", "/api/projects", "", gin.H{"name": "Alpha", "description": testDescription})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestMembershipRequestFlow(t *testing.T) {
	s := newTestServer(t)
	_, ownerToken := s.signUp(t, "Owner")
	_, userToken := s.signUp(t, "Bob")
	projectID := s.createProject(t, ownerToken, "Alpha", "go")

	code, env := s.do(t, "POST", "/api/projects/"+projectID+"/membership-requests", userToken, nil)
	require.Equal(t, http.StatusCreated, code, env.Message)
	var request struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &request))

	code, _ = s.do(t, "POST", "/api/projects/"+projectID+"/membership-requests", userToken, gin.H{"description": "again"})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = s.do(t, "GET", "/api/projects/"+projectID+"/membership-requests", userToken, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, "POST", "/api/membership-requests/"+request.ID+"/accept", userToken, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, "POST", "/api/membership-requests/"+request.ID+"/accept", ownerToken, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, "POST", "/api/membership-requests/"+request.ID+"/accept", ownerToken, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, env = s.do(t, "GET", "/api/projects/"+projectID, userToken, nil)
	require.Equal(t, http.StatusOK, code)
	var detail struct {
		Relationship string `json:"relationship"`
		MemberCount  int64  `json:"member_count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, "collaborator", detail.Relationship)
	assert.Equal(t, int64(2), detail.MemberCount)

	code, env = s.do(t, "GET", "/api/projects/"+projectID, "", nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, "none", detail.Relationship)
}

func TestJoinAndMessages(t *testing.T) {
	s := newTestServer(t)
	_, ownerToken := s.signUp(t, "Owner")
	_, memberToken := s.signUp(t, "Bob")
	_, outsiderToken := s.signUp(t, "Eve")
	projectID := s.createProject(t, ownerToken, "Alpha")

	code, _ := s.do(t, "POST", "/api/projects/"+projectID+"/join", memberToken, nil)
	require.Equal(t, http.StatusCreated, code)

	code, _ = s.do(t, "POST", "/api/projects/"+projectID+"/join", memberToken, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, env := s.do(t, "POST", "/api/projects/"+projectID+"/messages", memberToken, gin.H{"content": "hello team"})
	require.Equal(t, http.StatusCreated, code, env.Message)

	code, _ = s.do(t, "POST", "/api/projects/"+projectID+"/messages", outsiderToken, gin.H{"content": "let me in"})
	assert.Equal(t, http.StatusForbidden, code)

	code, env = s.do(t, "POST", "/api/projects/"+projectID+"/messages", memberToken, gin.H{"content": "  "})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "content", env.Field)

	code, env = s.do(t, "GET", "/api/projects/"+projectID+"/messages", ownerToken, nil)
	require.Equal(t, http.StatusOK, code)
	var messages []struct {
		Content string `json:"content"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &messages))
	require.Len(t, messages, 1)
	assert.Equal(t, "hello team", messages[0].Content)

	code, _ = s.do(t, "GET", "/api/projects/"+projectID+"/messages/stream?token="+outsiderToken, "", nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestRevokedMemberCannotRejoin(t *testing.T) {
	s := newTestServer(t)
	_, ownerToken := s.signUp(t, "Owner")
	_, memberToken := s.signUp(t, "Bob")
	projectID := s.createProject(t, ownerToken, "Alpha")

	code, env := s.do(t, "POST", "/api/projects/"+projectID+"/join", memberToken, nil)
	require.Equal(t, http.StatusCreated, code)
	var membership struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &membership))

	code, _ = s.do(t, "POST", "/api/memberships/"+membership.ID+"/revoke", memberToken, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, "POST", "/api/memberships/"+membership.ID+"/revoke", ownerToken, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = s.do(t, "POST", "/api/projects/"+projectID+"/join", memberToken, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, "POST", "/api/projects/"+projectID+"/membership-requests", memberToken, nil)
	assert.Equal(t, http.StatusCreated, code)
}

func TestProfileEndpoints(t *testing.T) {
	s := newTestServer(t)
	aliceID, aliceToken := s.signUp(t, "Alice")

	code, _ := s.do(t, "GET", "/api/users/"+aliceID+"/profile", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.do(t, "PUT", "/api/profile", "", gin.H{"skills": []string{"go"}})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env := s.do(t, "PUT", "/api/profile", aliceToken, gin.H{"skills": []string{"c#"}})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "skills", env.Field)

	code, env = s.do(t, "PUT", "/api/profile", aliceToken, gin.H{
		"description": "Backend developer",
		"skills":      []string{"Go", "Machine Learning"},
		"interests":   []string{"open source"},
	})
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = s.do(t, "GET", "/api/users/"+aliceID+"/profile", "", nil)
	require.Equal(t, http.StatusOK, code)
	var profile struct {
		UserID      string `json:"user_id"`
		Description string `json:"description"`
		Skills      []struct {
			Name string `json:"name"`
		} `json:"skills"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &profile))
	assert.Equal(t, aliceID, profile.UserID)
	assert.Equal(t, "Backend developer", profile.Description)
	require.Len(t, profile.Skills, 2)
	assert.Equal(t, "go", profile.Skills[0].Name)
	assert.Equal(t, "machine-learning", profile.Skills[1].Name)

	code, env = s.do(t, "GET", "/api/skills?query=mach", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"name":"machine-learning"`)
	assert.NotContains(t, string(env.Data), `"name":"go"`)
}

func TestUpdateRestrictedToOwner(t *testing.T) {
	s := newTestServer(t)
	_, ownerToken := s.signUp(t, "Owner")
	_, otherToken := s.signUp(t, "Bob")
	projectID := s.createProject(t, ownerToken, "Alpha")

	code, _ := s.do(t, "PUT", "/api/projects/"+projectID, otherToken, gin.H{"name": "Hijacked"})
	assert.Equal(t, http.StatusForbidden, code)

	code, env := s.do(t, "PUT", "/api/projects/"+projectID, ownerToken, gin.H{"name": "Beta", "tags": []string{"Rails", "SaaS"}})
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Contains(t, string(env.Data), `"name":"Beta"`)

	code, _ = s.do(t, "PUT", "/api/projects/missing-id", ownerToken, gin.H{"name": "Gamma"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestProjectAndTagListing(t *testing.T) {
	s := newTestServer(t)
	_, ownerToken := s.signUp(t, "Owner")
	s.createProject(t, ownerToken, "Alpha", "go", "web")
	s.createProject(t, ownerToken, "Beta", "go")
	s.createProject(t, ownerToken, "Gamma", "rust")

	tests := []struct {
		path  string
		total int64
	}{
		{"/api/projects", 3},
		{"/api/projects?tags=go", 2},
		{"/api/projects?tags=go&tags=web&match=all", 1},
		{"/api/projects?tags=go&tags=rust", 3},
		{"/api/projects?query=alp", 1},
		{"/api/tags/GO/projects", 2},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			code, env := s.do(t, "GET", tt.path, "", nil)
			require.Equal(t, http.StatusOK, code, env.Message)
			var page struct {
				Total int64 `json:"total"`
			}
			require.NoError(t, json.Unmarshal(env.Data, &page))
			assert.Equal(t, tt.total, page.Total)
		})
	}

	code, _ := s.do(t, "GET", "/api/projects?match=some", "", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, env := s.do(t, "GET", "/api/tags", "", nil)
	require.Equal(t, http.StatusOK, code)
	var tags []struct {
		Name          string `json:"name"`
		ProjectsCount int    `json:"projects_count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tags))
	require.NotEmpty(t, tags)
	assert.Equal(t, "go", tags[0].Name)
	assert.Equal(t, 2, tags[0].ProjectsCount)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	s.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	assert.Contains(t, w.Body.String(), `"queue_mode":"sync"`)
}
