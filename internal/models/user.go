// Package models contains the persisted domain types and the application error taxonomy.
package models

import (
	"time"

	"gorm.io/gorm"
)

// Role is a user's coarse permission level.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleInspector Role = "INSPECTOR"
	RoleEditor    Role = "EDITOR"
	RoleViewer    Role = "VIEWER"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleInspector, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// User is an account able to submit, review or sign off documents.
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Email     string         `gorm:"size:191;uniqueIndex;not null" json:"email"`
	Password  string         `gorm:"not null" json:"-"`
	Role      Role           `gorm:"type:varchar(16);not null;default:'VIEWER'" json:"role"`
	IsQC      bool           `gorm:"not null;default:false" json:"is_qc"`
	IsPM      bool           `gorm:"not null;default:false" json:"is_pm"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Actor returns the authorization view of u.
func (u *User) Actor() Actor {
	return Actor{
		UserID:      u.ID,
		Role:        u.Role,
		QCQualified: u.IsQC,
		PMQualified: u.IsPM,
	}
}

// Actor is the caller identity every workflow operation checks against.
type Actor struct {
	UserID      uint
	Role        Role
	QCQualified bool
	PMQualified bool
}

// IsAdmin reports whether the actor has the ADMIN role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// CanSubmit reports whether the actor may propose changes.
func (a Actor) CanSubmit() bool {
	return a.Role == RoleAdmin || a.Role == RoleInspector || a.Role == RoleEditor
}

// CanReview reports whether the actor may approve or reject change requests.
func (a Actor) CanReview() bool {
	return a.Role == RoleAdmin || a.Role == RoleInspector
}

// Owns reports whether the actor is userID or an admin acting on their behalf.
func (a Actor) Owns(userID uint) bool {
	return a.UserID == userID || a.IsAdmin()
}
