package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/huangang/projecthub/internal/models"
	"github.com/huangang/projecthub/pkg/logger"
	"gorm.io/gorm"
)

const ModuleMembership = "Membership"

var globalDB *gorm.DB

func InitSystemLogger(db *gorm.DB) {
	globalDB = db
}

func LogInfo(module, action, message string, userID *string, ip, userAgent string, extra interface{}) {
	writeLog("info", module, action, message, userID, ip, userAgent, extra)
}

func LogWarning(module, action, message string, userID *string, ip, userAgent string, extra interface{}) {
	writeLog("warning", module, action, message, userID, ip, userAgent, extra)
}

func LogError(module, action, message string, userID *string, ip, userAgent string, extra interface{}) {
	writeLog("error", module, action, message, userID, ip, userAgent, extra)
}

func writeLog(level, module, action, message string, userID *string, ip, userAgent string, extra interface{}) {
	if globalDB == nil {
		return
	}

	entry := &models.SystemLog{
		Level:     level,
		Module:    module,
		Action:    action,
		Message:   message,
		UserID:    userID,
		IP:        ip,
		UserAgent: userAgent,
		Extra:     encodeExtra(extra),
		CreatedAt: time.Now(),
	}
	if err := globalDB.Create(entry).Error; err != nil {
		logger.Warnf("[SystemLog] failed to write %s/%s: %v", module, action, err)
	}
}

func encodeExtra(extra interface{}) string {
	if extra == nil {
		return ""
	}
	b, err := json.Marshal(extra)
	if err != nil {
		return ""
	}
	return string(b)
}

type SystemLogService struct {
	db *gorm.DB
}

func NewSystemLogService(db *gorm.DB) *SystemLogService {
	return &SystemLogService{db: db}
}

type SystemLogListRequest struct {
	Page      int    `form:"page" binding:"omitempty,min=1"`
	PageSize  int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Module    string `form:"module"`
	ProjectID string `form:"project_id"`
}

type SystemLogListResponse struct {
	Total    int64              `json:"total"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Items    []models.SystemLog `json:"items"`
}

// List returns the activity recorded for userID, newest first.
func (s *SystemLogService) List(ctx context.Context, userID string, req *SystemLogListRequest) (*SystemLogListResponse, error) {
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	query := s.db.WithContext(ctx).Model(&models.SystemLog{}).Where("user_id = ?", userID)
	if req.Module != "" {
		query = query.Where("module = ?", req.Module)
	}
	if req.ProjectID != "" {
		query = query.Where("project_id = ?", req.ProjectID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, storeError("system logs", err)
	}

	logs := []models.SystemLog{}
	offset := (req.Page - 1) * req.PageSize
	if err := query.Offset(offset).Limit(req.PageSize).Order("created_at DESC").Order("id DESC").Find(&logs).Error; err != nil {
		return nil, storeError("system logs", err)
	}

	return &SystemLogListResponse{
		Total:    total,
		Page:     req.Page,
		PageSize: req.PageSize,
		Items:    logs,
	}, nil
}

// ProcessMembershipTask records a membership event for the user it
// concerns, and for the actor when that is someone else.
func (s *SystemLogService) ProcessMembershipTask(ctx context.Context, task *MembershipTask) error {
	projectID := task.ProjectID
	extra := encodeExtra(map[string]string{
		"membership_id": task.MembershipID,
		"request_id":    task.RequestID,
		"actor_id":      task.ActorID,
	})
	createdAt := task.OccurredAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	recipients := []string{task.SubjectID}
	if task.ActorID != "" && task.ActorID != task.SubjectID {
		recipients = append(recipients, task.ActorID)
	}

	entries := make([]models.SystemLog, 0, len(recipients))
	for _, uid := range recipients {
		if uid == "" {
			continue
		}
		uid := uid
		entries = append(entries, models.SystemLog{
			Level:     "info",
			Module:    ModuleMembership,
			Action:    task.Event,
			Message:   membershipMessage(task),
			UserID:    &uid,
			ProjectID: &projectID,
			Extra:     extra,
			CreatedAt: createdAt,
		})
	}
	if len(entries) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Create(&entries).Error
}

func membershipMessage(task *MembershipTask) string {
	switch task.Event {
	case EventRequested:
		return fmt.Sprintf("user %s requested to join project %s", task.SubjectID, task.ProjectID)
	case EventAccepted:
		return fmt.Sprintf("membership request of user %s was accepted", task.SubjectID)
	case EventRejected:
		return fmt.Sprintf("membership request of user %s was rejected", task.SubjectID)
	case EventRevoked:
		return fmt.Sprintf("membership of user %s was revoked", task.SubjectID)
	case EventJoined:
		return fmt.Sprintf("user %s joined project %s", task.SubjectID, task.ProjectID)
	case EventLeft:
		return fmt.Sprintf("user %s left project %s", task.SubjectID, task.ProjectID)
	default:
		return fmt.Sprintf("membership event %q", task.Event)
	}
}

// CleanupOldLogs deletes logs older than the specified number of days
// Returns the number of deleted records
func (s *SystemLogService) CleanupOldLogs(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}

	cutoffTime := time.Now().AddDate(0, 0, -retentionDays)
	result := s.db.WithContext(ctx).Where("created_at < ?", cutoffTime).Delete(&models.SystemLog{})
	if result.Error != nil {
		return 0, result.Error
	}

	return result.RowsAffected, nil
}
