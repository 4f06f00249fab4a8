package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/huangang/projecthub/internal/models"
	"github.com/huangang/projecthub/pkg/logger"
	"gorm.io/gorm"
)

var errOwnerExists = errors.New("project already has an owner membership")

// MembershipService is the membership ledger: owner/member rows, revocation,
// self-service join and leave, and derived collaborator status.
type MembershipService struct {
	db    *gorm.DB
	queue TaskQueue
}

func NewMembershipService(db *gorm.DB, queue TaskQueue) *MembershipService {
	return &MembershipService{db: db, queue: queue}
}

// loadAccess gathers every row that decides userID's standing on projectID.
func loadAccess(tx *gorm.DB, projectID, userID string) (ProjectAccess, error) {
	access := ProjectAccess{UserID: userID}
	if userID == "" {
		return access, nil
	}
	if err := tx.Where("project_id = ? AND user_id = ?", projectID, userID).
		Find(&access.Memberships).Error; err != nil {
		return access, err
	}
	var pending int64
	if err := tx.Model(&models.ProjectMembershipRequest{}).
		Where("project_id = ? AND user_id = ? AND status = ?", projectID, userID, models.RequestPending).
		Count(&pending).Error; err != nil {
		return access, err
	}
	access.HasPending = pending > 0
	return access, nil
}

func findProject(tx *gorm.DB, projectID string) (*models.Project, error) {
	var project models.Project
	if err := tx.Where("id = ?", projectID).First(&project).Error; err != nil {
		return nil, storeError("project", err)
	}
	return &project, nil
}

// createOwnerMembership runs once per project, inside the creating
// transaction. A second call is a programming error.
func createOwnerMembership(tx *gorm.DB, projectID, userID string) (*models.ProjectMembership, error) {
	var owners int64
	if err := tx.Model(&models.ProjectMembership{}).
		Where("project_id = ? AND role = ?", projectID, models.RoleOwner).
		Count(&owners).Error; err != nil {
		return nil, err
	}
	if owners > 0 {
		return nil, fmt.Errorf("project %s: %w", projectID, errOwnerExists)
	}

	m := models.NewOwnerMembership(projectID, userID)
	if err := tx.Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("project %s: %w", projectID, errOwnerExists)
		}
		return nil, err
	}
	return m, nil
}

// createMemberMembership adds a member/active row. An existing active row,
// whether seen here or raced in by another writer, means ErrAlreadyMember.
func createMemberMembership(tx *gorm.DB, projectID, userID string) (*models.ProjectMembership, error) {
	var active int64
	if err := tx.Model(&models.ProjectMembership{}).
		Where("project_id = ? AND user_id = ? AND status = ?", projectID, userID, models.MembershipActive).
		Count(&active).Error; err != nil {
		return nil, err
	}
	if active > 0 {
		return nil, alreadyMember()
	}

	m := models.NewMemberMembership(projectID, userID)
	err := tx.Transaction(func(sp *gorm.DB) error {
		return sp.Create(m).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, alreadyMember()
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func alreadyMember() *DomainError {
	return &DomainError{Kind: ErrAlreadyMember, Message: "user is already a member of this project"}
}

// revokeMembership flips one row to revoked, records who withdrew it and
// releases its active slot.
func revokeMembership(tx *gorm.DB, m *models.ProjectMembership, actorID string) error {
	m.Status = models.MembershipRevoked
	m.RevokedByID = &actorID
	m.ActiveSlot = nil
	return tx.Model(m).Select("status", "revoked_by_id", "active_slot", "updated_at").Updates(m).Error
}

// Access returns the derived standing of userID towards projectID.
func (s *MembershipService) Access(ctx context.Context, projectID, userID string) (ProjectAccess, error) {
	db := s.db.WithContext(ctx)
	if _, err := findProject(db, projectID); err != nil {
		return ProjectAccess{}, err
	}
	access, err := loadAccess(db, projectID, userID)
	if err != nil {
		return ProjectAccess{}, storeError("membership", err)
	}
	return access, nil
}

// IsActiveCollaborator reports whether userID currently collaborates on projectID.
func (s *MembershipService) IsActiveCollaborator(ctx context.Context, projectID, userID string) (bool, error) {
	access, err := s.Access(ctx, projectID, userID)
	if err != nil {
		return false, err
	}
	return access.IsActiveCollaborator(), nil
}

// Join adds the actor directly as an active member. A pending request of
// the actor is closed as accepted in the same transaction. Users whose
// membership the owner revoked must go through a new request instead.
func (s *MembershipService) Join(ctx context.Context, actorID, projectID string) (*models.ProjectMembership, error) {
	var (
		membership *models.ProjectMembership
		requestID  string
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		project, err := findProject(tx, projectID)
		if err != nil {
			return err
		}
		if !project.AllowDirectJoin {
			return accessDenied("this project only accepts membership requests")
		}
		access, err := loadAccess(tx, projectID, actorID)
		if err != nil {
			return err
		}
		if access.RevokedByOwner() {
			return accessDenied("your membership was revoked; submit a membership request instead")
		}

		membership, err = createMemberMembership(tx, projectID, actorID)
		if err != nil {
			return err
		}

		var pending []models.ProjectMembershipRequest
		if err := tx.Where("project_id = ? AND user_id = ? AND status = ?", projectID, actorID, models.RequestPending).
			Find(&pending).Error; err != nil {
			return err
		}
		for i := range pending {
			if err := decideRequest(tx, &pending[i], models.RequestAccepted); err != nil {
				return err
			}
			requestID = pending[i].ID
		}
		return nil
	})
	if err != nil {
		return nil, storeError("membership", err)
	}

	logger.Info().Str("project_id", projectID).Str("user_id", actorID).Msg("[Membership] user joined project")
	publish(s.queue, &MembershipTask{
		Event:        EventJoined,
		ProjectID:    projectID,
		ActorID:      actorID,
		SubjectID:    actorID,
		MembershipID: membership.ID,
		RequestID:    requestID,
	})
	return membership, nil
}

// Leave revokes the actor's own active membership. Having no active
// membership is not an error; the owner cannot leave.
func (s *MembershipService) Leave(ctx context.Context, actorID, projectID string) (bool, error) {
	left := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findProject(tx, projectID); err != nil {
			return err
		}
		var active []models.ProjectMembership
		if err := tx.Where("project_id = ? AND user_id = ? AND status = ?", projectID, actorID, models.MembershipActive).
			Find(&active).Error; err != nil {
			return err
		}
		for i := range active {
			if active[i].IsOwner() {
				return validationError("project", "the project owner cannot leave the project")
			}
		}
		for i := range active {
			if err := revokeMembership(tx, &active[i], actorID); err != nil {
				return err
			}
			left = true
		}
		return nil
	})
	if err != nil {
		return false, storeError("membership", err)
	}

	if left {
		logger.Info().Str("project_id", projectID).Str("user_id", actorID).Msg("[Membership] user left project")
		publish(s.queue, &MembershipTask{
			Event:     EventLeft,
			ProjectID: projectID,
			ActorID:   actorID,
			SubjectID: actorID,
		})
	}
	return left, nil
}

// Revoke withdraws a membership. Only the project owner may revoke; the
// owner row itself cannot be revoked. Revoking an already revoked row is a
// successful no-op.
func (s *MembershipService) Revoke(ctx context.Context, actorID, membershipID string) (*models.ProjectMembership, error) {
	var (
		membership models.ProjectMembership
		changed    bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", membershipID).First(&membership).Error; err != nil {
			return storeError("membership", err)
		}
		access, err := loadAccess(tx, membership.ProjectID, actorID)
		if err != nil {
			return err
		}
		if err := access.RequireOwner(); err != nil {
			return err
		}
		if membership.IsOwner() {
			return validationError("membership", "the owner membership cannot be revoked")
		}
		if membership.IsRevoked() {
			return nil
		}
		changed = true
		return revokeMembership(tx, &membership, actorID)
	})
	if err != nil {
		return nil, storeError("membership", err)
	}

	if changed {
		logger.Info().Str("project_id", membership.ProjectID).Str("membership_id", membership.ID).
			Str("user_id", membership.UserID).Msg("[Membership] membership revoked")
		publish(s.queue, &MembershipTask{
			Event:        EventRevoked,
			ProjectID:    membership.ProjectID,
			ActorID:      actorID,
			SubjectID:    membership.UserID,
			MembershipID: membership.ID,
		})
	}
	return &membership, nil
}

type MemberListRequest struct {
	IncludeRevoked bool `form:"include_revoked"`
}

// ListMembers returns active memberships. The owner may also see revoked history.
func (s *MembershipService) ListMembers(ctx context.Context, actorID, projectID string, req *MemberListRequest) ([]models.ProjectMembership, error) {
	db := s.db.WithContext(ctx)
	if _, err := findProject(db, projectID); err != nil {
		return nil, err
	}

	query := db.Where("project_id = ?", projectID)
	if req != nil && req.IncludeRevoked {
		access, err := loadAccess(db, projectID, actorID)
		if err != nil {
			return nil, storeError("membership", err)
		}
		if err := access.RequireOwner(); err != nil {
			return nil, err
		}
	} else {
		query = query.Where("status = ?", models.MembershipActive)
	}

	members := []models.ProjectMembership{}
	if err := query.Preload("User").
		Order("CASE WHEN role = 'owner' THEN 0 ELSE 1 END").
		Order("created_at ASC").
		Find(&members).Error; err != nil {
		return nil, storeError("membership", err)
	}
	return members, nil
}
