// Package access decides what a user may do with a picture.
package access

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"pkt.systems/easelx/schema"
)

// SpaceLookup is the slice of the catalog the engine reads.
type SpaceLookup interface {
	Space(ctx context.Context, id schema.SpaceID) (schema.Space, error)
	Member(ctx context.Context, spaceID schema.SpaceID, userID schema.UserID) (schema.SpaceMember, error)
}

var rolePermissions = map[schema.SpaceRole][]schema.Permission{
	schema.RoleViewer: {
		schema.PermPictureView,
	},
	schema.RoleEditor: {
		schema.PermPictureView,
		schema.PermPictureUpload,
		schema.PermPictureEdit,
		schema.PermPictureDelete,
	},
	schema.RoleAdmin: {
		schema.PermSpaceUserManage,
		schema.PermPictureView,
		schema.PermPictureUpload,
		schema.PermPictureEdit,
		schema.PermPictureDelete,
	},
}

// RolePermissions returns the permissions granted to a space role. Unknown
// roles grant nothing.
func RolePermissions(role schema.SpaceRole) []schema.Permission {
	return slices.Clone(rolePermissions[role])
}

// Engine evaluates permissions against the catalog.
type Engine struct {
	spaces SpaceLookup
}

// New constructs an engine reading spaces and memberships from lookup.
func New(lookup SpaceLookup) *Engine {
	return &Engine{spaces: lookup}
}

// Permissions lists what the user may do with the picture.
//
// Pictures outside any space are fully open to their owner and to system
// admins and view-only for everyone else. In a private space only the space
// owner and system admins get anything. In a team space the member's role
// decides and non-members get nothing.
func (e *Engine) Permissions(ctx context.Context, user schema.User, picture schema.Picture) ([]schema.Permission, error) {
	admin := RolePermissions(schema.RoleAdmin)
	if picture.SpaceID == 0 {
		if picture.OwnerID == user.ID || user.IsAdmin() {
			return admin, nil
		}
		return []schema.Permission{schema.PermPictureView}, nil
	}
	space, err := e.spaces.Space(ctx, picture.SpaceID)
	if err != nil {
		return nil, fmt.Errorf("load space %d: %w", picture.SpaceID, err)
	}
	switch space.Type {
	case schema.SpacePrivate:
		if space.OwnerID == user.ID || user.IsAdmin() {
			return admin, nil
		}
		return nil, nil
	case schema.SpaceTeam:
		member, err := e.spaces.Member(ctx, space.ID, user.ID)
		if errors.Is(err, schema.ErrNotMember) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load membership of user %d in space %d: %w", user.ID, space.ID, err)
		}
		return RolePermissions(member.Role), nil
	default:
		return nil, nil
	}
}

// Allowed reports whether the user holds perm on the picture.
func (e *Engine) Allowed(ctx context.Context, user schema.User, perm schema.Permission, picture schema.Picture) (bool, error) {
	perms, err := e.Permissions(ctx, user, picture)
	if err != nil {
		return false, err
	}
	return slices.Contains(perms, perm), nil
}
