package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/huangang/projecthub/internal/models"
	"gorm.io/gorm"
)

const MaxMessageLength = 2000

// MessageService is the collaborator-only message board of a project.
type MessageService struct {
	db  *gorm.DB
	hub *MessageHub
}

func NewMessageService(db *gorm.DB, hub *MessageHub) *MessageService {
	return &MessageService{db: db, hub: hub}
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

func (s *MessageService) requireCollaborator(db *gorm.DB, actorID, projectID string) error {
	if _, err := findProject(db, projectID); err != nil {
		return err
	}
	access, err := loadAccess(db, projectID, actorID)
	if err != nil {
		return storeError("message", err)
	}
	return access.RequireCollaborator()
}

// List returns the board oldest first.
func (s *MessageService) List(ctx context.Context, actorID, projectID string) ([]models.Message, error) {
	db := s.db.WithContext(ctx)
	if err := s.requireCollaborator(db, actorID, projectID); err != nil {
		return nil, err
	}

	messages := []models.Message{}
	if err := db.Preload("User").
		Where("project_id = ?", projectID).
		Order("created_at ASC").Order("id ASC").
		Find(&messages).Error; err != nil {
		return nil, storeError("message", err)
	}
	return messages, nil
}

func (s *MessageService) Post(ctx context.Context, actorID, projectID string, req *PostMessageRequest) (*models.Message, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return nil, validationError("content", "content can't be blank")
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return nil, validationError("content", "content is too long (maximum is %d characters)", MaxMessageLength)
	}

	db := s.db.WithContext(ctx)
	if err := s.requireCollaborator(db, actorID, projectID); err != nil {
		return nil, err
	}

	msg := models.Message{ProjectID: projectID, UserID: actorID, Content: content}
	if err := db.Create(&msg).Error; err != nil {
		return nil, storeError("message", err)
	}
	var author models.User
	if err := db.Where("id = ?", actorID).First(&author).Error; err == nil {
		msg.User = &author
	}

	if s.hub != nil {
		s.hub.Publish(MessageEvent{ProjectID: projectID, Message: &msg})
	}
	return &msg, nil
}

// Subscribe opens a live feed of new messages for a collaborator. The
// caller must Unsubscribe with the same clientID.
func (s *MessageService) Subscribe(ctx context.Context, actorID, projectID, clientID string) (<-chan MessageEvent, error) {
	if s.hub == nil {
		return nil, conflict("live updates are not available")
	}
	if err := s.requireCollaborator(s.db.WithContext(ctx), actorID, projectID); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(clientID, projectID), nil
}

func (s *MessageService) Unsubscribe(clientID string) {
	if s.hub != nil {
		s.hub.Unsubscribe(clientID)
	}
}
