package models

const (
	RoleOwner  = "owner"
	RoleMember = "member"

	MembershipPending = "pending"
	MembershipActive  = "active"
	MembershipRevoked = "revoked"
)

// ProjectMembership records a user's role and status within a project.
// Historical revoked rows are kept; ActiveSlot and OwnerSlot carry the
// storage-level uniqueness of the live rows.
type ProjectMembership struct {
	UUIDModel
	ProjectID   string   `gorm:"size:36;not null;index;uniqueIndex:idx_membership_active;uniqueIndex:idx_membership_owner" json:"project_id"`
	Project     *Project `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"project,omitempty"`
	UserID      string   `gorm:"size:36;not null;index;uniqueIndex:idx_membership_active" json:"user_id"`
	User        *User    `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Role        string   `gorm:"size:20;not null;default:member" json:"role"`
	Status      string   `gorm:"size:20;not null;default:active;index" json:"status"`
	RevokedByID *string  `gorm:"size:36" json:"revoked_by_id,omitempty"` // owner, or the member on leaving
	ActiveSlot  *bool    `gorm:"uniqueIndex:idx_membership_active" json:"-"`
	OwnerSlot   *bool    `gorm:"uniqueIndex:idx_membership_owner" json:"-"`
}

func (ProjectMembership) TableName() string { return "project_memberships" }

// NewOwnerMembership builds the single owner/active row of a project.
func NewOwnerMembership(projectID, userID string) *ProjectMembership {
	return &ProjectMembership{
		ProjectID:  projectID,
		UserID:     userID,
		Role:       RoleOwner,
		Status:     MembershipActive,
		ActiveSlot: slot(),
		OwnerSlot:  slot(),
	}
}

// NewMemberMembership builds a member/active row.
func NewMemberMembership(projectID, userID string) *ProjectMembership {
	return &ProjectMembership{
		ProjectID:  projectID,
		UserID:     userID,
		Role:       RoleMember,
		Status:     MembershipActive,
		ActiveSlot: slot(),
	}
}

func (m *ProjectMembership) IsActive() bool  { return m.Status == MembershipActive }
func (m *ProjectMembership) IsRevoked() bool { return m.Status == MembershipRevoked }
func (m *ProjectMembership) IsOwner() bool   { return m.Role == RoleOwner }
