package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/huangang/projecthub/internal/models"
	"github.com/huangang/projecthub/pkg/logger"
	"gorm.io/gorm"
)

const (
	MaxProfileDescriptionLength = 1000
	MaxLabelNameLength          = 50
	MaxLabelsPerProfile         = 20
)

// labelKind binds one profile taxonomy (skills or interests) to its tables.
type labelKind struct {
	field     string
	noun      string
	table     string
	joinTable string
	column    string
	joinRow   func(profileID, labelID string) interface{}
	joinModel func() interface{}
}

var (
	skillKind = labelKind{
		field:     "skills",
		noun:      "skill",
		table:     "skills",
		joinTable: "profile_skills",
		column:    "skill_id",
		joinRow: func(profileID, labelID string) interface{} {
			return &models.ProfileSkill{ProfileID: profileID, SkillID: labelID}
		},
		joinModel: func() interface{} { return &models.ProfileSkill{} },
	}
	interestKind = labelKind{
		field:     "interests",
		noun:      "interest",
		table:     "interests",
		joinTable: "profile_interests",
		column:    "interest_id",
		joinRow: func(profileID, labelID string) interface{} {
			return &models.ProfileInterest{ProfileID: profileID, InterestID: labelID}
		},
		joinModel: func() interface{} { return &models.ProfileInterest{} },
	}
)

// normalizeLabelSet normalizes and de-duplicates names of one kind.
func normalizeLabelSet(kind labelKind, raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	names := make([]string, 0, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		name, err := normalizeLabel(kind.field, kind.noun, r, MaxLabelNameLength)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	if len(names) > MaxLabelsPerProfile {
		return nil, validationError(kind.field, "a profile can have at most %d %s", MaxLabelsPerProfile, kind.field)
	}
	return names, nil
}

// findOrCreateLabel mirrors findOrCreateTag: the unique name index decides
// concurrent creations and the loser reloads the winner's id.
func findOrCreateLabel(tx *gorm.DB, kind labelKind, name string) (string, error) {
	find := func() (string, error) {
		var ids []string
		err := tx.Table(kind.table).Where("name = ?", name).Limit(1).Pluck("id", &ids).Error
		if err != nil || len(ids) == 0 {
			return "", err
		}
		return ids[0], nil
	}

	if id, err := find(); err != nil || id != "" {
		return id, err
	}
	label := models.Label{Name: name}
	err := tx.Transaction(func(sp *gorm.DB) error {
		return sp.Table(kind.table).Create(&label).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		id, err := find()
		if err != nil {
			return "", err
		}
		if id == "" {
			return "", conflict(kind.noun + " " + name + " could not be created")
		}
		return id, nil
	}
	if err != nil {
		return "", err
	}
	return label.ID, nil
}

// setProfileLabels replaces one label set of a profile within tx.
func setProfileLabels(tx *gorm.DB, kind labelKind, profileID string, raw []string) error {
	names, err := normalizeLabelSet(kind, raw)
	if err != nil {
		return err
	}

	desired := make(map[string]struct{}, len(names))
	desiredIDs := make([]string, 0, len(names))
	for _, name := range names {
		id, err := findOrCreateLabel(tx, kind, name)
		if err != nil {
			return err
		}
		if _, ok := desired[id]; !ok {
			desired[id] = struct{}{}
			desiredIDs = append(desiredIDs, id)
		}
	}

	var current []string
	if err := tx.Table(kind.joinTable).Where("profile_id = ?", profileID).Pluck(kind.column, &current).Error; err != nil {
		return err
	}
	existing := make(map[string]struct{}, len(current))
	var removed []string
	for _, id := range current {
		existing[id] = struct{}{}
		if _, keep := desired[id]; !keep {
			removed = append(removed, id)
		}
	}

	if len(removed) > 0 {
		if err := tx.Where("profile_id = ? AND "+kind.column+" IN ?", profileID, removed).
			Delete(kind.joinModel()).Error; err != nil {
			return err
		}
	}
	for _, id := range desiredIDs {
		if _, ok := existing[id]; ok {
			continue
		}
		if err := tx.Create(kind.joinRow(profileID, id)).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return conflict("profile " + kind.field + " were modified concurrently")
			}
			return err
		}
	}
	return nil
}

type ProfileService struct {
	db *gorm.DB
}

func NewProfileService(db *gorm.DB) *ProfileService {
	return &ProfileService{db: db}
}

type UpdateProfileRequest struct {
	Description *string   `json:"description"`
	Skills      *[]string `json:"skills"`
	Interests   *[]string `json:"interests"`
}

type LabelListRequest struct {
	Query string `form:"query"`
}

func loadProfile(db *gorm.DB, userID string) (*models.Profile, error) {
	var profile models.Profile
	err := db.Preload("Skills", alphabeticalTags).
		Preload("Interests", alphabeticalTags).
		Where("user_id = ?", userID).
		First(&profile).Error
	if err != nil {
		return nil, storeError("profile", err)
	}
	return &profile, nil
}

// Get returns the profile of userID with its skills and interests.
func (s *ProfileService) Get(ctx context.Context, userID string) (*models.Profile, error) {
	return loadProfile(s.db.WithContext(ctx), userID)
}

// Update creates or edits the actor's own profile. Nil fields are left as
// they are; a non-nil label list replaces that set.
func (s *ProfileService) Update(ctx context.Context, actorID, userID string, req *UpdateProfileRequest) (*models.Profile, error) {
	if actorID != userID {
		return nil, accessDenied("profiles can only be edited by their owner")
	}
	if req.Description != nil {
		description := strings.TrimSpace(*req.Description)
		if utf8.RuneCountInString(description) > MaxProfileDescriptionLength {
			return nil, validationError("description", "description is too long (maximum is %d characters)", MaxProfileDescriptionLength)
		}
		req.Description = &description
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("id = ?", userID).First(&user).Error; err != nil {
			return storeError("user", err)
		}

		var profile models.Profile
		err := tx.Where("user_id = ?", userID).First(&profile).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			profile = models.Profile{UserID: userID}
			if err := tx.Transaction(func(sp *gorm.DB) error {
				return sp.Omit("Skills", "Interests").Create(&profile).Error
			}); err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return conflict("profile was created concurrently")
				}
				return err
			}
		} else if err != nil {
			return err
		}

		if req.Description != nil {
			if err := tx.Model(&profile).Update("description", *req.Description).Error; err != nil {
				return err
			}
		}
		if req.Skills != nil {
			if err := setProfileLabels(tx, skillKind, profile.ID, *req.Skills); err != nil {
				return err
			}
		}
		if req.Interests != nil {
			if err := setProfileLabels(tx, interestKind, profile.ID, *req.Interests); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeError("profile", err)
	}

	logger.Info().Str("user_id", userID).Msg("[Profile] profile updated")
	return loadProfile(s.db.WithContext(ctx), userID)
}

// Skills lists skills matching query, alphabetically.
func (s *ProfileService) Skills(ctx context.Context, req *LabelListRequest) ([]models.Skill, error) {
	skills := []models.Skill{}
	if err := alphabeticalTags(s.db.WithContext(ctx).Scopes(searchTags(req.Query))).Find(&skills).Error; err != nil {
		return nil, storeError("skills", err)
	}
	return skills, nil
}

// Interests lists interests matching query, alphabetically.
func (s *ProfileService) Interests(ctx context.Context, req *LabelListRequest) ([]models.Interest, error) {
	interests := []models.Interest{}
	if err := alphabeticalTags(s.db.WithContext(ctx).Scopes(searchTags(req.Query))).Find(&interests).Error; err != nil {
		return nil, storeError("interests", err)
	}
	return interests, nil
}
