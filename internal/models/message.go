package models

// Message is a post on a project's collaborator board.
type Message struct {
	UUIDModel
	ProjectID string   `gorm:"size:36;not null;index" json:"project_id"`
	Project   *Project `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"-"`
	UserID    string   `gorm:"size:36;not null;index" json:"user_id"`
	User      *User    `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Content   string   `gorm:"type:text;not null" json:"content"`
}

func (Message) TableName() string { return "messages" }
