// Package model defines the persistent entities of the identity store
// and the audit sink.
package model

import "time"

// Grant scopes. A global grant applies to every workload, a container
// grant to exactly one registered container.
const (
	ScopeGlobal    = "global"
	ScopeContainer = "container"
)

// Grant values.
const (
	ValueAllow = "allow"
	ValueDeny  = "deny"
)

// Grant subjects.
const (
	SubjectUser = "user"
	SubjectRole = "role"
)

type User struct {
	Id       int    `json:"id" gorm:"primaryKey;autoIncrement"`
	Username string `json:"username" gorm:"uniqueIndex"`
	Password string `json:"-"`
	Email    string `json:"email"`
	Active   bool   `json:"active" gorm:"default:true"`
}

type Role struct {
	Id             int    `json:"id" gorm:"primaryKey;autoIncrement"`
	Name           string `json:"name" gorm:"uniqueIndex"`
	HierarchyLevel int    `json:"hierarchyLevel"`
	Description    string `json:"description"`
}

// Container is a registered workload record. DockerId is the external
// runtime identifier (or the bare-metal title for process workloads).
type Container struct {
	Id          int    `json:"id" gorm:"primaryKey;autoIncrement"`
	DockerId    string `json:"dockerId" gorm:"uniqueIndex"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RoleGrant associates a user with a role, globally or for one container.
type RoleGrant struct {
	Id          int    `json:"id" gorm:"primaryKey;autoIncrement"`
	UserId      int    `json:"userId" gorm:"index"`
	RoleId      int    `json:"roleId" gorm:"index"`
	Scope       string `json:"scope"`
	ContainerId *int   `json:"containerId"`
}

// PermissionGrant attaches an allow/deny value for one permission to a
// user or a role. Permission names are validated against the closed
// enumeration at write time.
type PermissionGrant struct {
	Id          int    `json:"id" gorm:"primaryKey;autoIncrement"`
	SubjectType string `json:"subjectType" gorm:"index:idx_grant_subject"`
	SubjectId   int    `json:"subjectId" gorm:"index:idx_grant_subject"`
	Permission  string `json:"permission" gorm:"index"`
	Value       string `json:"value"`
	Scope       string `json:"scope"`
	ContainerId *int   `json:"containerId"`
}

// AuditLog is an append-only record of authorization decisions and
// privileged actions.
type AuditLog struct {
	Id        int       `json:"id" gorm:"primaryKey;autoIncrement"`
	Timestamp time.Time `json:"timestamp" gorm:"index"`
	Subject   string    `json:"subject"`
	Action    string    `json:"action"`
	Workload  string    `json:"workload"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason"`
}
