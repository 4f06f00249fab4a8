package services

import "github.com/huangang/projecthub/internal/models"

// Relationship is the derived standing of a user towards a project.
type Relationship string

const (
	RelationOwner        Relationship = "owner"
	RelationCollaborator Relationship = "collaborator"
	RelationPending      Relationship = "pending"
	RelationRevoked      Relationship = "revoked"
	RelationNone         Relationship = "none"
)

// ProjectAccess is a snapshot of one user's rows for one project. Policy
// decisions are pure functions over it.
type ProjectAccess struct {
	UserID      string
	Memberships []models.ProjectMembership
	HasPending  bool
}

// IsOwner reports whether the user holds the project's owner/active membership.
func (a ProjectAccess) IsOwner() bool {
	if a.UserID == "" {
		return false
	}
	for i := range a.Memberships {
		m := &a.Memberships[i]
		if m.UserID == a.UserID && m.IsOwner() && m.IsActive() {
			return true
		}
	}
	return false
}

// IsActiveCollaborator applies the collaborator precedence: any active row
// wins over revoked rows regardless of age; revoked-only, pending-only and
// no relationship are all non-collaborators.
func (a ProjectAccess) IsActiveCollaborator() bool {
	return a.Relationship() == RelationOwner || a.Relationship() == RelationCollaborator
}

// Relationship resolves the user's standing using the same precedence.
func (a ProjectAccess) Relationship() Relationship {
	if a.UserID == "" {
		return RelationNone
	}
	revoked := false
	active := false
	for i := range a.Memberships {
		m := &a.Memberships[i]
		if m.UserID != a.UserID {
			continue
		}
		switch {
		case m.IsActive() && m.IsOwner():
			return RelationOwner
		case m.IsActive():
			active = true
		case m.IsRevoked():
			revoked = true
		}
	}
	switch {
	case active:
		return RelationCollaborator
	case revoked:
		return RelationRevoked
	case a.HasPending:
		return RelationPending
	default:
		return RelationNone
	}
}

// RevokedByOwner reports whether the user's standing is revoked and the most
// recent revocation was not the user leaving on their own.
func (a ProjectAccess) RevokedByOwner() bool {
	if a.Relationship() != RelationRevoked {
		return false
	}
	var latest *models.ProjectMembership
	for i := range a.Memberships {
		m := &a.Memberships[i]
		if m.UserID != a.UserID || !m.IsRevoked() {
			continue
		}
		if latest == nil || m.UpdatedAt.After(latest.UpdatedAt) {
			latest = m
		}
	}
	return latest != nil && (latest.RevokedByID == nil || *latest.RevokedByID != a.UserID)
}

func (a ProjectAccess) CanEdit() bool    { return a.IsOwner() }
func (a ProjectAccess) CanDestroy() bool { return a.IsOwner() }

// RequireOwner turns a failed owner check into ErrRestrictedToOwner.
func (a ProjectAccess) RequireOwner() error {
	if !a.IsOwner() {
		return ErrRestrictedToOwner
	}
	return nil
}

// RequireCollaborator turns a failed collaborator check into an access-denied error.
func (a ProjectAccess) RequireCollaborator() error {
	if !a.IsActiveCollaborator() {
		return accessDenied("only project collaborators can do this")
	}
	return nil
}
