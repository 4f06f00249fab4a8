package models

// Project is the aggregate root for memberships, requests, tags and messages.
type Project struct {
	UUIDModel
	Name            string `gorm:"size:200;not null" json:"name"`
	Description     string `gorm:"type:text;not null" json:"description"`
	AllowDirectJoin bool   `gorm:"not null" json:"allow_direct_join"`
	CreatedBy       string `gorm:"size:36;index;not null" json:"created_by"`

	Tags []Tag `gorm:"many2many:project_tags" json:"tags"`
}

func (Project) TableName() string { return "projects" }

// TagNames returns the names of the loaded tags.
func (p *Project) TagNames() []string {
	names := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		names = append(names, t.Name)
	}
	return names
}
