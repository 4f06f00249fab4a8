package models

import "time"

// Profile is a user's public self-description with skill and interest sets.
type Profile struct {
	UUIDModel
	UserID      string `gorm:"size:36;not null;uniqueIndex" json:"user_id"`
	User        *User  `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Description string `gorm:"type:text" json:"description"`

	Skills    []Skill    `gorm:"many2many:profile_skills" json:"skills"`
	Interests []Interest `gorm:"many2many:profile_interests" json:"interests"`
}

func (Profile) TableName() string { return "profiles" }

// Label is the shape shared by skills and interests: a normalized unique name.
type Label struct {
	UUIDModel
	Name        string `gorm:"size:50;not null;uniqueIndex" json:"name"`
	Description string `gorm:"type:text" json:"description,omitempty"`
}

type Skill struct {
	Label
}

func (Skill) TableName() string { return "skills" }

type Interest struct {
	Label
}

func (Interest) TableName() string { return "interests" }

type ProfileSkill struct {
	ProfileID string    `gorm:"primaryKey;size:36" json:"profile_id"`
	SkillID   string    `gorm:"primaryKey;size:36;index" json:"skill_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (ProfileSkill) TableName() string { return "profile_skills" }

type ProfileInterest struct {
	ProfileID  string    `gorm:"primaryKey;size:36" json:"profile_id"`
	InterestID string    `gorm:"primaryKey;size:36;index" json:"interest_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func (ProfileInterest) TableName() string { return "profile_interests" }
