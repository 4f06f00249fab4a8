package services

import (
	"context"
	"errors"
	"strings"

	"github.com/huangang/projecthub/internal/models"
	"github.com/huangang/projecthub/pkg/logger"
	"gorm.io/gorm"
)

const MaxRequestDescriptionLength = 1000

// RequestService runs the membership request workflow:
// pending -> accepted | rejected, both terminal.
type RequestService struct {
	db    *gorm.DB
	queue TaskQueue
}

func NewRequestService(db *gorm.DB, queue TaskQueue) *RequestService {
	return &RequestService{db: db, queue: queue}
}

type SubmitRequestRequest struct {
	Description string `json:"description"`
}

type RequestListRequest struct {
	Status string `form:"status" binding:"omitempty,oneof=pending accepted rejected all"`
}

func duplicateRequest() *DomainError {
	return &DomainError{Kind: ErrDuplicateRequest, Message: "a pending membership request already exists"}
}

// decideRequest moves a pending request to a terminal state and frees its pending slot.
func decideRequest(tx *gorm.DB, req *models.ProjectMembershipRequest, status string) error {
	res := tx.Model(&models.ProjectMembershipRequest{}).
		Where("id = ? AND status = ?", req.ID, models.RequestPending).
		Updates(map[string]interface{}{
			"status":       status,
			"pending_slot": nil,
			"updated_at":   tx.NowFunc(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Someone else decided it between our read and this write.
		return conflict("membership request was already decided")
	}
	req.Status = status
	req.PendingSlot = nil
	return nil
}

// Submit files a pending request for the actor. It fails with
// ErrDuplicateRequest while another request is pending and with
// ErrAlreadyMember while the actor holds an active membership.
func (s *RequestService) Submit(ctx context.Context, actorID, projectID string, in *SubmitRequestRequest) (*models.ProjectMembershipRequest, error) {
	description := ""
	if in != nil {
		description = strings.TrimSpace(in.Description)
	}
	if len([]rune(description)) > MaxRequestDescriptionLength {
		return nil, validationError("description", "description is too long (maximum is %d characters)", MaxRequestDescriptionLength)
	}

	var request *models.ProjectMembershipRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findProject(tx, projectID); err != nil {
			return err
		}
		access, err := loadAccess(tx, projectID, actorID)
		if err != nil {
			return err
		}
		if access.HasPending {
			return duplicateRequest()
		}
		if access.IsActiveCollaborator() {
			return alreadyMember()
		}

		request = models.NewPendingRequest(projectID, actorID, description)
		if err := tx.Create(request).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return duplicateRequest()
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, storeError("membership request", err)
	}

	logger.Info().Str("project_id", projectID).Str("user_id", actorID).Str("request_id", request.ID).
		Msg("[Request] membership requested")
	publish(s.queue, &MembershipTask{
		Event:     EventRequested,
		ProjectID: projectID,
		ActorID:   actorID,
		SubjectID: actorID,
		RequestID: request.ID,
	})
	return request, nil
}

// loadForDecision fetches a request and checks that actorID owns its project
// and that the request is still pending.
func loadForDecision(tx *gorm.DB, requestID, actorID string) (*models.ProjectMembershipRequest, error) {
	var req models.ProjectMembershipRequest
	if err := tx.Where("id = ?", requestID).First(&req).Error; err != nil {
		return nil, storeError("membership request", err)
	}
	access, err := loadAccess(tx, req.ProjectID, actorID)
	if err != nil {
		return nil, err
	}
	if err := access.RequireOwner(); err != nil {
		return nil, err
	}
	if !req.IsPending() {
		return nil, conflict("membership request was already " + req.Status)
	}
	return &req, nil
}

// Accept marks the request accepted and creates the requester's member
// membership in one transaction; neither happens without the other.
func (s *RequestService) Accept(ctx context.Context, actorID, requestID string) (*models.ProjectMembershipRequest, *models.ProjectMembership, error) {
	var (
		req        *models.ProjectMembershipRequest
		membership *models.ProjectMembership
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = loadForDecision(tx, requestID, actorID)
		if err != nil {
			return err
		}
		if err := decideRequest(tx, req, models.RequestAccepted); err != nil {
			return err
		}
		membership, err = createMemberMembership(tx, req.ProjectID, req.UserID)
		return err
	})
	if err != nil {
		return nil, nil, storeError("membership request", err)
	}

	logger.Info().Str("project_id", req.ProjectID).Str("request_id", req.ID).Str("user_id", req.UserID).
		Msg("[Request] membership request accepted")
	publish(s.queue, &MembershipTask{
		Event:        EventAccepted,
		ProjectID:    req.ProjectID,
		ActorID:      actorID,
		SubjectID:    req.UserID,
		RequestID:    req.ID,
		MembershipID: membership.ID,
	})
	return req, membership, nil
}

// Reject marks the request rejected. No membership is created and the user
// may apply again later.
func (s *RequestService) Reject(ctx context.Context, actorID, requestID string) (*models.ProjectMembershipRequest, error) {
	var req *models.ProjectMembershipRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = loadForDecision(tx, requestID, actorID)
		if err != nil {
			return err
		}
		return decideRequest(tx, req, models.RequestRejected)
	})
	if err != nil {
		return nil, storeError("membership request", err)
	}

	logger.Info().Str("project_id", req.ProjectID).Str("request_id", req.ID).Msg("[Request] membership request rejected")
	publish(s.queue, &MembershipTask{
		Event:     EventRejected,
		ProjectID: req.ProjectID,
		ActorID:   actorID,
		SubjectID: req.UserID,
		RequestID: req.ID,
	})
	return req, nil
}

// List returns a project's requests for its owner, pending ones by default.
func (s *RequestService) List(ctx context.Context, actorID, projectID string, in *RequestListRequest) ([]models.ProjectMembershipRequest, error) {
	db := s.db.WithContext(ctx)
	if _, err := findProject(db, projectID); err != nil {
		return nil, err
	}
	access, err := loadAccess(db, projectID, actorID)
	if err != nil {
		return nil, storeError("membership request", err)
	}
	if err := access.RequireOwner(); err != nil {
		return nil, err
	}

	status := models.RequestPending
	if in != nil && in.Status != "" {
		status = in.Status
	}
	query := db.Where("project_id = ?", projectID)
	if status != "all" {
		query = query.Where("status = ?", status)
	}

	requests := []models.ProjectMembershipRequest{}
	if err := query.Preload("User").Order("created_at ASC").Find(&requests).Error; err != nil {
		return nil, storeError("membership request", err)
	}
	return requests, nil
}
