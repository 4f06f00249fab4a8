package models

import "time"

// Tag is a globally shared, normalized label. ProjectsCount mirrors the
// number of project_tags rows referencing it.
type Tag struct {
	UUIDModel
	Name          string `gorm:"size:30;not null;uniqueIndex" json:"name"`
	ProjectsCount int    `gorm:"not null;default:0;index" json:"projects_count"`
}

func (Tag) TableName() string { return "tags" }

// ProjectTag joins a project to a tag. The composite primary key keeps
// each (project, tag) pair unique.
type ProjectTag struct {
	ProjectID string    `gorm:"primaryKey;size:36" json:"project_id"`
	TagID     string    `gorm:"primaryKey;size:36;index" json:"tag_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (ProjectTag) TableName() string { return "project_tags" }
