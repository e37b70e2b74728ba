package schema

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ValidateAccount ensures an account name matches [a-z0-9._-] with no normalization.
func ValidateAccount(account string) error {
	if account == "" {
		return ErrInvalidUser
	}
	if strings.TrimSpace(account) != account {
		return ErrInvalidUser
	}
	for _, r := range account {
		if r >= 'a' && r <= 'z' {
			continue
		}
		if r >= '0' && r <= '9' {
			continue
		}
		if r == '.' || r == '_' || r == '-' {
			continue
		}
		return ErrInvalidUser
	}
	return nil
}

// ParsePictureID parses a positive decimal picture id.
func ParsePictureID(raw string) (PictureID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, ErrInvalidPicture
	}
	value, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil || value <= 0 {
		return 0, ErrInvalidPicture
	}
	return PictureID(value), nil
}

// DecodeEditRequest parses an inbound frame and validates its type and action.
// The request is returned even on error so callers can log what was sent.
func DecodeEditRequest(data []byte) (EditRequest, EventKind, error) {
	var req EditRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return req, 0, ErrInvalidRequest
	}
	kind, ok := EventKindFor(req.Type)
	if !ok {
		return req, 0, ErrUnknownMessageType
	}
	if kind == EventEditAction && !req.EditAction.Valid() {
		return req, kind, ErrUnknownEditAction
	}
	return req, kind, nil
}
