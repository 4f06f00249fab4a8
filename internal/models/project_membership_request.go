package models

const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestRejected = "rejected"
)

// ProjectMembershipRequest is a user's application to join a project.
// PendingSlot is set only while the request is pending so that at most one
// pending request per (project, user) can exist.
type ProjectMembershipRequest struct {
	UUIDModel
	ProjectID   string   `gorm:"size:36;not null;index;uniqueIndex:idx_request_pending" json:"project_id"`
	Project     *Project `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"project,omitempty"`
	UserID      string   `gorm:"size:36;not null;index;uniqueIndex:idx_request_pending" json:"user_id"`
	User        *User    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Status      string   `gorm:"size:20;not null;default:pending;index" json:"status"`
	Description string   `gorm:"type:text" json:"description"`
	PendingSlot *bool    `gorm:"uniqueIndex:idx_request_pending" json:"-"`
}

func (ProjectMembershipRequest) TableName() string { return "project_membership_requests" }

// NewPendingRequest builds a request in the pending state.
func NewPendingRequest(projectID, userID, description string) *ProjectMembershipRequest {
	return &ProjectMembershipRequest{
		ProjectID:   projectID,
		UserID:      userID,
		Status:      RequestPending,
		Description: description,
		PendingSlot: slot(),
	}
}

func (r *ProjectMembershipRequest) IsPending() bool { return r.Status == RequestPending }
