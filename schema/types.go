package schema

import (
	"strconv"
	"time"
)

// PictureID identifies a picture (the edited resource).
type PictureID int64

// SpaceID identifies a picture space.
type SpaceID int64

// UserID identifies a user account.
type UserID int64

// SessionID identifies one live editing connection.
type SessionID string

// String returns the decimal form of the picture id.
func (id PictureID) String() string { return strconv.FormatInt(int64(id), 10) }

// String returns the decimal form of the space id.
func (id SpaceID) String() string { return strconv.FormatInt(int64(id), 10) }

// String returns the decimal form of the user id.
func (id UserID) String() string { return strconv.FormatInt(int64(id), 10) }

// SpaceType distinguishes private spaces from team spaces.
type SpaceType int

const (
	// SpacePrivate is a single-owner space.
	SpacePrivate SpaceType = 0
	// SpaceTeam is a shared space with member roles.
	SpaceTeam SpaceType = 1
)

// SpaceRole is a member role inside a team space.
type SpaceRole string

const (
	// RoleViewer may only view pictures.
	RoleViewer SpaceRole = "viewer"
	// RoleEditor may view, upload, edit and delete pictures.
	RoleEditor SpaceRole = "editor"
	// RoleAdmin additionally manages space members.
	RoleAdmin SpaceRole = "admin"
)

// UserRole is the system-wide role of an account.
type UserRole string

const (
	// UserRoleUser is a regular account.
	UserRoleUser UserRole = "user"
	// UserRoleAdmin is a system administrator.
	UserRoleAdmin UserRole = "admin"
)

// Permission names an action guarded by the access engine.
type Permission string

const (
	// PermSpaceUserManage allows managing space members.
	PermSpaceUserManage Permission = "spaceUser:manage"
	// PermPictureView allows viewing a picture.
	PermPictureView Permission = "picture:view"
	// PermPictureUpload allows uploading pictures.
	PermPictureUpload Permission = "picture:upload"
	// PermPictureEdit allows collaborative editing.
	PermPictureEdit Permission = "picture:edit"
	// PermPictureDelete allows deleting pictures.
	PermPictureDelete Permission = "picture:delete"
)

// User is the identity attached to a session by the handshake gate.
type User struct {
	ID      UserID
	Account string
	Name    string
	Avatar  string
	Bio     string
	Role    UserRole
	Created time.Time
}

// IsAdmin reports whether the account is a system administrator.
func (u User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

// Picture is the catalog view of an editable picture.
type Picture struct {
	ID      PictureID
	Name    string
	URL     string
	SpaceID SpaceID // zero for the public gallery
	OwnerID UserID
}

// Space is the catalog view of a picture space.
type Space struct {
	ID      SpaceID
	Name    string
	Type    SpaceType
	OwnerID UserID
}

// SpaceMember binds a user to a team space with a role.
type SpaceMember struct {
	SpaceID SpaceID
	UserID  UserID
	Role    SpaceRole
}
