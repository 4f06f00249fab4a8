package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/huangang/projecthub/internal/models"
	"github.com/huangang/projecthub/pkg/logger"
	"gorm.io/gorm"
)

const (
	MaxTagsPerProject = 10
	MinTagNameLength  = 2
	MaxTagNameLength  = 30
	TagIndexLimit     = 20
)

// NormalizeTagName trims, lowercases and joins whitespace runs with a single
// hyphen, then checks the result against [a-z0-9-]{2,30}.
func NormalizeTagName(raw string) (string, error) {
	return normalizeLabel("tags", "tag", raw, MaxTagNameLength)
}

// normalizeLabel applies the tag naming rules with a per-kind maximum length.
// field names the offending input and noun prefixes the messages.
func normalizeLabel(field, noun, raw string, maxLen int) (string, error) {
	name := canonicalTagName(raw)
	if name == "" {
		return "", validationError(field, "%s name can't be blank", noun)
	}
	if n := utf8.RuneCountInString(name); n < MinTagNameLength || n > maxLen {
		return "", validationError(field, "%s %q must be between %d and %d characters", noun, name, MinTagNameLength, maxLen)
	}
	for _, r := range name {
		if !isTagRune(r) {
			return "", validationError(field, "%s %q must be lowercase alphanumeric with hyphens only", noun, name)
		}
	}
	return name, nil
}

func canonicalTagName(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), "-")
}

func isTagRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-'
}

// ParseTagNames splits the comma-joined form, tolerating irregular spacing
// and empty segments: "rails,  saas  ," -> [rails saas].
func ParseTagNames(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}

// JoinTagNames renders tag names as "a, b" in alphabetical order.
func JoinTagNames(names []string) string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return strings.Join(sorted, ", ")
}

// NormalizeTagSet normalizes, drops blanks and de-duplicates; more than
// MaxTagsPerProject distinct names is a validation failure.
func NormalizeTagSet(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	names := make([]string, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		name, err := NormalizeTagName(r)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	if len(names) > MaxTagsPerProject {
		return nil, validationError("tags", "a project can have at most %d tags", MaxTagsPerProject)
	}
	return names, nil
}

// filterTagNames canonicalizes query-side tag filters without rejecting
// malformed input; unknown names simply match nothing.
func filterTagNames(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	var names []string
	for _, r := range raw {
		for _, part := range ParseTagNames(r) {
			name := canonicalTagName(part)
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	return names
}

type TagService struct {
	db    *gorm.DB
	cache TagCache
}

func NewTagService(db *gorm.DB, cache TagCache) *TagService {
	if cache == nil {
		cache = NoopTagCache{}
	}
	return &TagService{db: db, cache: cache}
}

// FindOrCreate returns the tag with the normalized name, creating it when absent.
func (s *TagService) FindOrCreate(ctx context.Context, raw string) (*models.Tag, error) {
	name, err := NormalizeTagName(raw)
	if err != nil {
		return nil, err
	}
	var tag *models.Tag
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		tag, err = findOrCreateTag(tx, name)
		return err
	})
	if err != nil {
		return nil, storeError("tag", err)
	}
	s.invalidate(ctx)
	return tag, nil
}

// findOrCreateTag expects an already normalized name. The unique index on
// tags.name decides concurrent creations; the loser reloads the winner's row.
func findOrCreateTag(tx *gorm.DB, name string) (*models.Tag, error) {
	if tag, err := findTagByName(tx, name); err != nil || tag != nil {
		return tag, err
	}

	tag := models.Tag{Name: name}
	err := tx.Transaction(func(sp *gorm.DB) error {
		return sp.Create(&tag).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		existing, err := findTagByName(tx, name)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, conflict("tag " + name + " could not be created")
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

func findTagByName(tx *gorm.DB, name string) (*models.Tag, error) {
	var tags []models.Tag
	if err := tx.Where("name = ?", name).Limit(1).Find(&tags).Error; err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, nil
	}
	return &tags[0], nil
}

// setProjectTags replaces the project's tag set and adjusts projects_count
// on every added or removed tag within tx.
func setProjectTags(tx *gorm.DB, projectID string, raw []string) ([]models.Tag, error) {
	names, err := NormalizeTagSet(raw)
	if err != nil {
		return nil, err
	}

	desired := make(map[string]struct{}, len(names))
	desiredIDs := make([]string, 0, len(names))
	for _, name := range names {
		tag, err := findOrCreateTag(tx, name)
		if err != nil {
			return nil, err
		}
		if _, ok := desired[tag.ID]; !ok {
			desired[tag.ID] = struct{}{}
			desiredIDs = append(desiredIDs, tag.ID)
		}
	}

	var current []models.ProjectTag
	if err := tx.Where("project_id = ?", projectID).Find(&current).Error; err != nil {
		return nil, err
	}
	existing := make(map[string]struct{}, len(current))
	var removed []string
	for _, pt := range current {
		existing[pt.TagID] = struct{}{}
		if _, keep := desired[pt.TagID]; !keep {
			removed = append(removed, pt.TagID)
		}
	}
	var added []string
	for _, id := range desiredIDs {
		if _, ok := existing[id]; !ok {
			added = append(added, id)
		}
	}

	if len(removed) > 0 {
		if err := tx.Where("project_id = ? AND tag_id IN ?", projectID, removed).
			Delete(&models.ProjectTag{}).Error; err != nil {
			return nil, err
		}
		if err := adjustTagCounts(tx, removed, -1); err != nil {
			return nil, err
		}
	}
	if len(added) > 0 {
		rows := make([]models.ProjectTag, 0, len(added))
		for _, id := range added {
			rows = append(rows, models.ProjectTag{ProjectID: projectID, TagID: id})
		}
		if err := tx.Create(&rows).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return nil, conflict("project tags were modified concurrently")
			}
			return nil, err
		}
		if err := adjustTagCounts(tx, added, 1); err != nil {
			return nil, err
		}
	}

	tags := []models.Tag{}
	if len(desiredIDs) > 0 {
		if err := tx.Where("id IN ?", desiredIDs).Order("name ASC").Find(&tags).Error; err != nil {
			return nil, err
		}
	}
	return tags, nil
}

// removeProjectTags drops every tag of a project, decrementing counters.
func removeProjectTags(tx *gorm.DB, projectID string) error {
	_, err := setProjectTags(tx, projectID, nil)
	return err
}

func adjustTagCounts(tx *gorm.DB, tagIDs []string, delta int) error {
	return tx.Model(&models.Tag{}).
		Where("id IN ?", tagIDs).
		UpdateColumn("projects_count", gorm.Expr("projects_count + ?", delta)).Error
}

// popularTags orders by projects_count then name so ties are deterministic.
func popularTags(db *gorm.DB) *gorm.DB {
	return db.Order("projects_count DESC").Order("name ASC")
}

func alphabeticalTags(db *gorm.DB) *gorm.DB {
	return db.Order("name ASC")
}

// searchTags matches a case-insensitive substring of the name. A blank
// query leaves the scope unfiltered.
func searchTags(query string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		q := strings.ToLower(strings.TrimSpace(query))
		if q == "" {
			return db
		}
		return db.Where("LOWER(name) LIKE ? ESCAPE '!'", "%"+escapeLike(q)+"%")
	}
}

func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}

// Popular returns the most used tags.
func (s *TagService) Popular(ctx context.Context, limit int) ([]models.Tag, error) {
	tags := []models.Tag{}
	if err := popularTags(s.db.WithContext(ctx)).Limit(limit).Find(&tags).Error; err != nil {
		return nil, storeError("tags", err)
	}
	return tags, nil
}

// Alphabetical lists every tag ordered by name.
func (s *TagService) Alphabetical(ctx context.Context) ([]models.Tag, error) {
	tags := []models.Tag{}
	if err := alphabeticalTags(s.db.WithContext(ctx)).Find(&tags).Error; err != nil {
		return nil, storeError("tags", err)
	}
	return tags, nil
}

// Search lists tags whose name contains query, most popular first.
func (s *TagService) Search(ctx context.Context, query string) ([]models.Tag, error) {
	tags := []models.Tag{}
	if err := popularTags(s.db.WithContext(ctx).Scopes(searchTags(query))).Find(&tags).Error; err != nil {
		return nil, storeError("tags", err)
	}
	return tags, nil
}

type TagIndexRequest struct {
	Query    string   `form:"query"`
	Selected []string `form:"selected"`
}

// Index lists tags for a picker: selected tags first, then the most popular
// others, at most TagIndexLimit of those.
func (s *TagService) Index(ctx context.Context, req *TagIndexRequest) ([]models.Tag, error) {
	selected := make([]string, 0, len(req.Selected))
	for _, id := range req.Selected {
		if id = strings.TrimSpace(id); id != "" {
			selected = append(selected, id)
		}
	}
	cacheable := strings.TrimSpace(req.Query) == "" && len(selected) == 0

	if cacheable {
		if tags, ok := s.cache.GetPopular(ctx); ok {
			return tags, nil
		}
	}

	db := s.db.WithContext(ctx)
	result := []models.Tag{}
	others := db.Model(&models.Tag{}).Scopes(searchTags(req.Query))
	if len(selected) > 0 {
		var picked []models.Tag
		if err := popularTags(db.Scopes(searchTags(req.Query)).Where("id IN ?", selected)).Find(&picked).Error; err != nil {
			return nil, storeError("tags", err)
		}
		result = append(result, picked...)
		others = others.Where("id NOT IN ?", selected)
	}

	var rest []models.Tag
	if err := popularTags(others).Limit(TagIndexLimit).Find(&rest).Error; err != nil {
		return nil, storeError("tags", err)
	}
	result = append(result, rest...)

	if cacheable {
		s.cache.SetPopular(ctx, result)
	}
	return result, nil
}

// ReconcileCounts recomputes projects_count from live project_tags rows and
// repairs any drift. It returns the number of tags corrected.
func (s *TagService) ReconcileCounts(ctx context.Context) (int, error) {
	fixed := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var live []struct {
			TagID string
			Total int
		}
		if err := tx.Model(&models.ProjectTag{}).
			Select("tag_id, COUNT(*) AS total").
			Group("tag_id").
			Scan(&live).Error; err != nil {
			return err
		}
		counts := make(map[string]int, len(live))
		for _, row := range live {
			counts[row.TagID] = row.Total
		}

		var tags []models.Tag
		if err := tx.Find(&tags).Error; err != nil {
			return err
		}
		for _, tag := range tags {
			want := counts[tag.ID]
			if tag.ProjectsCount == want {
				continue
			}
			if err := tx.Model(&models.Tag{}).Where("id = ?", tag.ID).
				UpdateColumn("projects_count", want).Error; err != nil {
				return err
			}
			logger.Warn().Str("tag", tag.Name).Int("stored", tag.ProjectsCount).Int("live", want).
				Msg("[TagService] projects_count drift repaired")
			fixed++
		}
		return nil
	})
	if err != nil {
		return 0, storeError("tags", err)
	}
	if fixed > 0 {
		s.invalidate(ctx)
	}
	return fixed, nil
}

func (s *TagService) invalidate(ctx context.Context) {
	s.cache.InvalidatePopular(ctx)
}
