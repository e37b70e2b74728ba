package logx

import (
	"context"

	"pkt.systems/easelx/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	userKey contextKey = iota
	pictureKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithUser annotates the logger with the user id if present.
func WithUser(ctx context.Context, userID schema.UserID) pslog.Logger {
	log := pslog.Ctx(ctx)
	if userID != 0 {
		if current, ok := ctx.Value(userKey).(schema.UserID); ok && current == userID {
			return log
		}
		log = log.With("user", int64(userID))
	}
	return log
}

// WithUserPicture annotates the logger with user and picture identifiers.
func WithUserPicture(ctx context.Context, userID schema.UserID, pictureID schema.PictureID) pslog.Logger {
	log := WithUser(ctx, userID)
	if pictureID != 0 {
		if current, ok := ctx.Value(pictureKey).(schema.PictureID); ok && current == pictureID {
			return log
		}
		log = log.With("picture", int64(pictureID))
	}
	return log
}

// WithPicture annotates a logger with a picture id when available.
func WithPicture(log pslog.Logger, pictureID schema.PictureID) pslog.Logger {
	if pictureID != 0 {
		log = log.With("picture", int64(pictureID))
	}
	return log
}

// WithSession annotates the logger with a session id when available.
func WithSession(log pslog.Logger, sessionID schema.SessionID) pslog.Logger {
	if sessionID != "" {
		log = log.With("session", string(sessionID))
	}
	return log
}

// ContextWithUser stores the user marker on the context for log de-duplication.
func ContextWithUser(ctx context.Context, userID schema.UserID) context.Context {
	if ctx == nil || userID == 0 {
		return ctx
	}
	return context.WithValue(ctx, userKey, userID)
}

// ContextWithPicture stores the picture marker on the context for log de-duplication.
func ContextWithPicture(ctx context.Context, pictureID schema.PictureID) context.Context {
	if ctx == nil || pictureID == 0 {
		return ctx
	}
	return context.WithValue(ctx, pictureKey, pictureID)
}

// ContextWithUserLogger attaches the logger and user marker to the context.
func ContextWithUserLogger(ctx context.Context, log pslog.Logger, userID schema.UserID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithUser(ctx, userID)
}

// ContextWithUserPictureLogger attaches the logger and user/picture markers to the context.
func ContextWithUserPictureLogger(ctx context.Context, log pslog.Logger, userID schema.UserID, pictureID schema.PictureID) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithPicture(ContextWithUser(ctx, userID), pictureID)
}

// CopyContextFields copies user/picture markers from src to dst.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if user, ok := src.Value(userKey).(schema.UserID); ok && user != 0 {
		dst = ContextWithUser(dst, user)
	}
	if picture, ok := src.Value(pictureKey).(schema.PictureID); ok && picture != 0 {
		dst = ContextWithPicture(dst, picture)
	}
	return dst
}

// BoundLogger returns the context logger when ctx was annotated for the same
// user and picture, so callers can reuse its fields instead of adding them again.
func BoundLogger(ctx context.Context, userID schema.UserID, pictureID schema.PictureID) (pslog.Logger, bool) {
	if ctx == nil {
		return nil, false
	}
	user, _ := ctx.Value(userKey).(schema.UserID)
	picture, _ := ctx.Value(pictureKey).(schema.PictureID)
	if user == 0 || user != userID || picture != pictureID {
		return nil, false
	}
	return pslog.Ctx(ctx), true
}
