package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/huangang/projecthub/internal/models"
	"github.com/huangang/projecthub/pkg/logger"
	"gorm.io/gorm"
)

const (
	MinProjectDescriptionLength = 50
	MaxProjectNameLength        = 200
)

type ProjectService struct {
	db   *gorm.DB
	tags *TagService
}

func NewProjectService(db *gorm.DB, tags *TagService) *ProjectService {
	return &ProjectService{db: db, tags: tags}
}

type ProjectListRequest struct {
	Page     int      `form:"page" binding:"omitempty,min=1"`
	PageSize int      `form:"page_size" binding:"omitempty,min=1,max=100"`
	Query    string   `form:"query"`
	Tags     []string `form:"tags"`
	Match    string   `form:"match" binding:"omitempty,oneof=any all"`
}

type ProjectListResponse struct {
	Total    int64            `json:"total"`
	Page     int              `json:"page"`
	PageSize int              `json:"page_size"`
	Items    []models.Project `json:"items"`
}

type CreateProjectRequest struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Tags            []string `json:"tags"`
	TagNames        string   `json:"tag_names"` // comma-joined alternative to Tags
	AllowDirectJoin *bool    `json:"allow_direct_join"`
}

type UpdateProjectRequest struct {
	Name            *string   `json:"name"`
	Description     *string   `json:"description"`
	Tags            *[]string `json:"tags"`
	TagNames        *string   `json:"tag_names"`
	AllowDirectJoin *bool     `json:"allow_direct_join"`
}

// ProjectDetail is a project as seen by one viewer.
type ProjectDetail struct {
	models.Project
	TagNames     string       `json:"tag_names"`
	OwnerID      string       `json:"owner_id"`
	MemberCount  int64        `json:"member_count"`
	Relationship Relationship `json:"relationship"`
}

func validateProject(p *models.Project) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return validationError("name", "name can't be blank")
	}
	if utf8.RuneCountInString(p.Name) > MaxProjectNameLength {
		return validationError("name", "name is too long (maximum is %d characters)", MaxProjectNameLength)
	}
	if utf8.RuneCountInString(strings.TrimSpace(p.Description)) < MinProjectDescriptionLength {
		return validationError("description", "description is too short (minimum is %d characters)", MinProjectDescriptionLength)
	}
	return nil
}

// requestedTags merges the list and comma-joined forms.
func requestedTags(list []string, joined string) []string {
	names := append([]string(nil), list...)
	return append(names, ParseTagNames(joined)...)
}

// Create persists a project, its owner membership and its tags atomically.
func (s *ProjectService) Create(ctx context.Context, ownerID string, req *CreateProjectRequest) (*models.Project, error) {
	project := models.Project{
		Name:            req.Name,
		Description:     req.Description,
		AllowDirectJoin: true,
		CreatedBy:       ownerID,
	}
	if req.AllowDirectJoin != nil {
		project.AllowDirectJoin = *req.AllowDirectJoin
	}
	if err := validateProject(&project); err != nil {
		return nil, err
	}
	if _, err := NormalizeTagSet(requestedTags(req.Tags, req.TagNames)); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner models.User
		if err := tx.Where("id = ?", ownerID).First(&owner).Error; err != nil {
			return storeError("user", err)
		}
		if err := tx.Omit("Tags").Create(&project).Error; err != nil {
			return err
		}
		if _, err := createOwnerMembership(tx, project.ID, ownerID); err != nil {
			return err
		}
		tags, err := setProjectTags(tx, project.ID, requestedTags(req.Tags, req.TagNames))
		if err != nil {
			return err
		}
		project.Tags = tags
		return nil
	})
	if err != nil {
		return nil, storeError("project", err)
	}

	s.tags.invalidate(ctx)
	logger.Info().Str("project_id", project.ID).Str("owner_id", ownerID).Msg("[Project] project created")
	return &project, nil
}

// Update changes fields and, when given, replaces the tag set. Owner only.
func (s *ProjectService) Update(ctx context.Context, actorID, projectID string, req *UpdateProjectRequest) (*models.Project, error) {
	var project *models.Project
	tagsChanged := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		project, err = findProject(tx, projectID)
		if err != nil {
			return err
		}
		access, err := loadAccess(tx, projectID, actorID)
		if err != nil {
			return err
		}
		if !access.CanEdit() {
			return ErrRestrictedToOwner
		}

		if req.Name != nil {
			project.Name = *req.Name
		}
		if req.Description != nil {
			project.Description = *req.Description
		}
		if req.AllowDirectJoin != nil {
			project.AllowDirectJoin = *req.AllowDirectJoin
		}
		if err := validateProject(project); err != nil {
			return err
		}
		if err := tx.Model(project).Select("name", "description", "allow_direct_join", "updated_at").
			Updates(project).Error; err != nil {
			return err
		}

		if req.Tags != nil || req.TagNames != nil {
			var list []string
			var joined string
			if req.Tags != nil {
				list = *req.Tags
			}
			if req.TagNames != nil {
				joined = *req.TagNames
			}
			project.Tags, err = setProjectTags(tx, projectID, requestedTags(list, joined))
			if err != nil {
				return err
			}
			tagsChanged = true
			return nil
		}
		return tx.Model(project).Association("Tags").Find(&project.Tags)
	})
	if err != nil {
		return nil, storeError("project", err)
	}

	if tagsChanged {
		s.tags.invalidate(ctx)
	}
	return project, nil
}

// SetTags replaces the project's tag set. Owner only.
func (s *ProjectService) SetTags(ctx context.Context, actorID, projectID string, names []string) ([]models.Tag, error) {
	project, err := s.Update(ctx, actorID, projectID, &UpdateProjectRequest{Tags: &names})
	if err != nil {
		return nil, err
	}
	return project.Tags, nil
}

// Destroy removes the project with its memberships, requests, messages and
// tag links, decrementing tag counters. Owner only.
func (s *ProjectService) Destroy(ctx context.Context, actorID, projectID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findProject(tx, projectID); err != nil {
			return err
		}
		access, err := loadAccess(tx, projectID, actorID)
		if err != nil {
			return err
		}
		if !access.CanDestroy() {
			return ErrRestrictedToOwner
		}

		if err := removeProjectTags(tx, projectID); err != nil {
			return err
		}
		for _, dependent := range []interface{}{
			&models.Message{},
			&models.ProjectMembershipRequest{},
			&models.ProjectMembership{},
		} {
			if err := tx.Where("project_id = ?", projectID).Delete(dependent).Error; err != nil {
				return err
			}
		}
		return tx.Where("id = ?", projectID).Delete(&models.Project{}).Error
	})
	if err != nil {
		return storeError("project", err)
	}

	s.tags.invalidate(ctx)
	logger.Info().Str("project_id", projectID).Str("actor_id", actorID).Msg("[Project] project destroyed")
	return nil
}

// Get returns a project with tags, owner and the viewer's relationship.
func (s *ProjectService) Get(ctx context.Context, viewerID, projectID string) (*ProjectDetail, error) {
	db := s.db.WithContext(ctx)
	var project models.Project
	if err := db.Preload("Tags", alphabeticalTags).Where("id = ?", projectID).First(&project).Error; err != nil {
		return nil, storeError("project", err)
	}

	access, err := loadAccess(db, projectID, viewerID)
	if err != nil {
		return nil, storeError("project", err)
	}

	var owner models.ProjectMembership
	if err := db.Where("project_id = ? AND role = ? AND status = ?", projectID, models.RoleOwner, models.MembershipActive).
		First(&owner).Error; err != nil {
		return nil, storeError("owner membership", err)
	}

	var members int64
	if err := db.Model(&models.ProjectMembership{}).
		Where("project_id = ? AND status = ?", projectID, models.MembershipActive).
		Count(&members).Error; err != nil {
		return nil, storeError("project", err)
	}

	return &ProjectDetail{
		Project:      project,
		TagNames:     JoinTagNames(project.TagNames()),
		OwnerID:      owner.UserID,
		MemberCount:  members,
		Relationship: access.Relationship(),
	}, nil
}

// withAnyTags keeps projects that carry at least one of names. Each project
// appears once. An empty filter keeps every project.
func withAnyTags(names []string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		names := filterTagNames(names)
		if len(names) == 0 {
			return db
		}
		sub := db.Session(&gorm.Session{NewDB: true}).
			Table("project_tags").
			Select("project_tags.project_id").
			Joins("JOIN tags ON tags.id = project_tags.tag_id").
			Where("tags.name IN ?", names)
		return db.Where("projects.id IN (?)", sub)
	}
}

// withAllTags keeps projects that carry every one of names, counted by
// distinct tag id. An empty filter keeps every project.
func withAllTags(names []string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		names := filterTagNames(names)
		if len(names) == 0 {
			return db
		}
		sub := db.Session(&gorm.Session{NewDB: true}).
			Table("project_tags").
			Select("project_tags.project_id").
			Joins("JOIN tags ON tags.id = project_tags.tag_id").
			Where("tags.name IN ?", names).
			Group("project_tags.project_id").
			Having("COUNT(DISTINCT tags.id) = ?", len(names))
		return db.Where("projects.id IN (?)", sub)
	}
}

func searchProjects(query string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		q := strings.ToLower(strings.TrimSpace(query))
		if q == "" {
			return db
		}
		return db.Where("LOWER(projects.name) LIKE ? ESCAPE '!'", "%"+escapeLike(q)+"%")
	}
}

// List returns projects filtered by tags (any or all) and name, newest first.
func (s *ProjectService) List(ctx context.Context, req *ProjectListRequest) (*ProjectListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	tagFilter := withAnyTags(req.Tags)
	if req.Match == "all" {
		tagFilter = withAllTags(req.Tags)
	}

	query := s.db.WithContext(ctx).Model(&models.Project{}).Scopes(tagFilter, searchProjects(req.Query))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, storeError("projects", err)
	}

	projects := []models.Project{}
	offset := (req.Page - 1) * req.PageSize
	if err := query.Preload("Tags", alphabeticalTags).
		Offset(offset).Limit(req.PageSize).
		Order("projects.created_at DESC").Order("projects.id ASC").
		Find(&projects).Error; err != nil {
		return nil, storeError("projects", err)
	}

	return &ProjectListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    projects,
	}, nil
}

// UserProjects lists the projects where userID holds an active membership.
func (s *ProjectService) UserProjects(ctx context.Context, userID string) ([]models.Project, error) {
	db := s.db.WithContext(ctx)
	var user models.User
	if err := db.Where("id = ?", userID).First(&user).Error; err != nil {
		return nil, storeError("user", err)
	}

	active := db.Session(&gorm.Session{NewDB: true}).
		Model(&models.ProjectMembership{}).
		Select("project_id").
		Where("user_id = ? AND status = ?", userID, models.MembershipActive)

	projects := []models.Project{}
	if err := db.Preload("Tags", alphabeticalTags).
		Where("projects.id IN (?)", active).
		Order("projects.created_at DESC").
		Find(&projects).Error; err != nil {
		return nil, storeError("projects", err)
	}
	return projects, nil
}
