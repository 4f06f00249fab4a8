package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/huangang/projecthub/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestNormalizeTagName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"Rails", "rails", false},
		{"  SaaS  ", "saas", false},
		{"Ruby on   Rails", "ruby-on-rails", false},
		{"web3", "web3", false},
		{"front-end", "front-end", false},
		{"a", "", true},
		{"", "", true},
		{"   ", "", true},
		{"c++", "", true},
		{"naïve", "", true},
		{"abcdefghijklmnopqrstuvwxyz12345", "", true},
		{"abcdefghijklmnopqrstuvwxyz1234", "abcdefghijklmnopqrstuvwxyz1234", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := NormalizeTagName(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Errorf("NormalizeTagName(%q) error = %v, expected validation error", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeTagName(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("NormalizeTagName(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseTagNames(t *testing.T) {
	assert.Equal(t, []string{"rails", "saas"}, ParseTagNames("rails,  saas  ,"))
	assert.Equal(t, []string{"Rails", "SaaS"}, ParseTagNames("Rails, SaaS"))
	assert.Empty(t, ParseTagNames(" , ,"))
	assert.Empty(t, ParseTagNames(""))
}

func TestJoinTagNames(t *testing.T) {
	assert.Equal(t, "rails, saas", JoinTagNames([]string{"saas", "rails"}))
	assert.Equal(t, "", JoinTagNames(nil))
}

func TestNormalizeTagSet(t *testing.T) {
	names, err := NormalizeTagSet([]string{"Rails", "rails ", "", "  ", "SaaS"})
	require.NoError(t, err)
	assert.Equal(t, []string{"rails", "saas"}, names)

	ten := make([]string, 0, 11)
	for i := 0; i < 10; i++ {
		ten = append(ten, fmt.Sprintf("tag-%d", i))
	}
	names, err = NormalizeTagSet(ten)
	require.NoError(t, err)
	assert.Len(t, names, 10)

	_, err = NormalizeTagSet(append(ten, "tag-10"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	var de *DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "tags", de.Field)

	// Duplicates do not count towards the limit.
	names, err = NormalizeTagSet(append(ten, "TAG-0"))
	require.NoError(t, err)
	assert.Len(t, names, 10)
}

func TestTagService_FindOrCreateIsCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.tags.FindOrCreate(ctx, "Rails")
	require.NoError(t, err)
	second, err := env.tags.FindOrCreate(ctx, "  RAILS ")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "rails", second.Name)

	var count int64
	require.NoError(t, env.db.Model(&models.Tag{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSetProjectTags_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "Owner")
	p := env.project(t, owner, "Alpha", "rails", "saas")

	tags, err := env.projects.SetTags(ctx, owner.ID, p.ID, []string{"saas", "Rails"})
	require.NoError(t, err)
	assert.Equal(t, []string{"rails", "saas"}, tagNames(tags))

	assert.Equal(t, 1, env.tagCount(t, "rails"))
	assert.Equal(t, 1, env.tagCount(t, "saas"))

	var links int64
	require.NoError(t, env.db.Model(&models.ProjectTag{}).Where("project_id = ?", p.ID).Count(&links).Error)
	assert.EqualValues(t, 2, links)
}

func TestSetProjectTags_ReplaceAdjustsCounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "Owner")
	p := env.project(t, owner, "Alpha", "rails", "saas")

	_, err := env.projects.SetTags(ctx, owner.ID, p.ID, []string{"javascript"})
	require.NoError(t, err)

	assert.Equal(t, 0, env.tagCount(t, "rails"))
	assert.Equal(t, 0, env.tagCount(t, "saas"))
	assert.Equal(t, 1, env.tagCount(t, "javascript"))

	var links []models.ProjectTag
	require.NoError(t, env.db.Where("project_id = ?", p.ID).Find(&links).Error)
	require.Len(t, links, 1)
}

func TestSetProjectTags_TooManyLeavesTagsUntouched(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "Owner")
	p := env.project(t, owner, "Alpha", "rails")

	eleven := make([]string, 0, 11)
	for i := 0; i < 11; i++ {
		eleven = append(eleven, fmt.Sprintf("tag-%d", i))
	}
	_, err := env.projects.SetTags(ctx, owner.ID, p.ID, eleven)
	assert.ErrorIs(t, err, ErrValidation)

	detail, err := env.projects.Get(ctx, owner.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "rails", detail.TagNames)
	assert.Equal(t, 1, env.tagCount(t, "rails"))

	_, err = env.projects.SetTags(ctx, owner.ID, p.ID, eleven[:10])
	require.NoError(t, err)
	assert.Equal(t, 0, env.tagCount(t, "rails"))
}

func TestSetProjectTags_CountsAcrossProjects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "Owner")
	a := env.project(t, owner, "Alpha", "rails", "saas")
	env.project(t, owner, "Beta", "rails")

	assert.Equal(t, 2, env.tagCount(t, "rails"))

	require.NoError(t, env.projects.Destroy(ctx, owner.ID, a.ID))
	assert.Equal(t, 1, env.tagCount(t, "rails"))
	assert.Equal(t, 0, env.tagCount(t, "saas"))
}

func TestTagNames_RoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "Owner")

	p, err := env.projects.Create(ctx, owner.ID, &CreateProjectRequest{
		Name:        "Alpha",
		Description: testDescription,
		TagNames:    "Rails, SaaS",
	})
	require.NoError(t, err)

	detail, err := env.projects.Get(ctx, owner.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "rails, saas", detail.TagNames)
}

func TestTagService_Index(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "Owner")
	env.project(t, owner, "Alpha", "rails", "saas", "go")
	env.project(t, owner, "Beta", "rails", "saas")
	env.project(t, owner, "Gamma", "rails")

	tags, err := env.tags.Index(ctx, &TagIndexRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"rails", "saas", "go"}, tagNames(tags))

	goTag, err := env.tags.FindOrCreate(ctx, "go")
	require.NoError(t, err)
	tags, err = env.tags.Index(ctx, &TagIndexRequest{Selected: []string{goTag.ID}})
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "rails", "saas"}, tagNames(tags))

	tags, err = env.tags.Index(ctx, &TagIndexRequest{Query: "SA"})
	require.NoError(t, err)
	assert.Equal(t, []string{"saas"}, tagNames(tags))
}

func TestTagService_PopularTiesAreDeterministic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "Owner")
	env.project(t, owner, "Alpha", "zeta", "beta", "alpha")

	tags, err := env.tags.Popular(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "zeta"}, tagNames(tags))

	tags, err = env.tags.Alphabetical(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "zeta"}, tagNames(tags))
}

func TestTagService_ReconcileCounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "Owner")
	env.project(t, owner, "Alpha", "rails")

	require.NoError(t, env.db.Model(&models.Tag{}).Where("name = ?", "rails").
		UpdateColumn("projects_count", gorm.Expr("projects_count + 5")).Error)
	require.NoError(t, env.db.Create(&models.Tag{Name: "orphan", ProjectsCount: 3}).Error)

	fixed, err := env.tags.ReconcileCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, fixed)
	assert.Equal(t, 1, env.tagCount(t, "rails"))
	assert.Equal(t, 0, env.tagCount(t, "orphan"))

	fixed, err = env.tags.ReconcileCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, fixed)
}

type countingCache struct {
	NoopTagCache
	stored      []models.Tag
	invalidated int
}

func (c *countingCache) GetPopular(context.Context) ([]models.Tag, bool) {
	return c.stored, c.stored != nil
}

func (c *countingCache) SetPopular(_ context.Context, tags []models.Tag) { c.stored = tags }

func (c *countingCache) InvalidatePopular(context.Context) {
	c.invalidated++
	c.stored = nil
}

func TestTagService_IndexUsesCache(t *testing.T) {
	db := newTestDB(t)
	cache := &countingCache{}
	tags := NewTagService(db, cache)
	projects := NewProjectService(db, tags)
	ctx := context.Background()

	owner := &models.User{Name: "Owner", Email: "owner@example.com"}
	require.NoError(t, db.Create(owner).Error)

	_, err := projects.Create(ctx, owner.ID, &CreateProjectRequest{Name: "Alpha", Description: testDescription, Tags: []string{"rails"}})
	require.NoError(t, err)
	assert.Equal(t, 1, cache.invalidated)

	first, err := tags.Index(ctx, &TagIndexRequest{})
	require.NoError(t, err)
	require.NotNil(t, cache.stored)

	require.NoError(t, db.Exec("DELETE FROM tags").Error)
	cached, err := tags.Index(ctx, &TagIndexRequest{})
	require.NoError(t, err)
	assert.Equal(t, tagNames(first), tagNames(cached))
}

func tagNames(tags []models.Tag) []string {
	names := make([]string, 0, len(tags))
	for _, tag := range tags {
		names = append(names, tag.Name)
	}
	return names
}
