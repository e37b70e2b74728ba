package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"pkt.systems/easelx/core"
	"pkt.systems/easelx/internal/logx"
	"pkt.systems/easelx/schema"
	"pkt.systems/pslog"
)

const (
	editSocketPath    = "/ws/picture/edit"
	presenceKeepalive = 25 * time.Second
)

// Authenticator verifies credentials and resolves user ids.
type Authenticator interface {
	Authenticate(username, password, totp string) (schema.User, error)
	Lookup(id schema.UserID) (schema.User, error)
	ChangePassword(username, currentPassword, totp, newPassword string) error
}

// Catalog resolves pictures and spaces.
type Catalog interface {
	Picture(ctx context.Context, id schema.PictureID) (schema.Picture, error)
	Space(ctx context.Context, id schema.SpaceID) (schema.Space, error)
}

// Authorizer decides what a user may do with a picture.
type Authorizer interface {
	Permissions(ctx context.Context, user schema.User, picture schema.Picture) ([]schema.Permission, error)
	Allowed(ctx context.Context, user schema.User, perm schema.Permission, picture schema.Picture) (bool, error)
}

// EventPublisher queues edit events for the coordinator.
type EventPublisher interface {
	Publish(ctx context.Context, event core.Event) error
}

// PresenceSource streams presence changes per picture.
type PresenceSource interface {
	Subscribe(pictureID schema.PictureID) (<-chan schema.PresenceEvent, func())
	Replay(pictureID schema.PictureID, after uint64) []schema.PresenceEvent
	LastSeq() uint64
}

// Deps wires the server to the rest of the system.
type Deps struct {
	Auth        Authenticator
	Catalog     Catalog
	Access      Authorizer
	Events      EventPublisher
	Presence    PresenceSource
	Coordinator *core.Coordinator
}

// Server serves the HTTP API and the edit socket.
type Server struct {
	cfg      Config
	ws       WebSocketConfig
	auth     Authenticator
	catalog  Catalog
	access   Authorizer
	events   EventPublisher
	presence PresenceSource
	coord    *core.Coordinator
	sessions *sessionStore
	upgrader websocket.Upgrader
	mount    mount
}

// NewServer constructs an HTTP server.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	switch {
	case deps.Auth == nil:
		return nil, errors.New("httpapi: authenticator is required")
	case deps.Catalog == nil:
		return nil, errors.New("httpapi: catalog is required")
	case deps.Access == nil:
		return nil, errors.New("httpapi: authorizer is required")
	case deps.Events == nil:
		return nil, errors.New("httpapi: event publisher is required")
	case deps.Coordinator == nil:
		return nil, errors.New("httpapi: coordinator is required")
	}
	ttl := time.Duration(cfg.SessionTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 720 * time.Hour
	}
	if cfg.SessionCookie == "" {
		cfg.SessionCookie = "easelx_session"
	}
	ws := cfg.WebSocket.withDefaults()
	return &Server{
		cfg:      cfg,
		ws:       ws,
		auth:     deps.Auth,
		catalog:  deps.Catalog,
		access:   deps.Access,
		events:   deps.Events,
		presence: deps.Presence,
		coord:    deps.Coordinator,
		sessions: newSessionStore(ttl, cfg.SessionFile),
		upgrader: newUpgrader(ws),
		mount:    newMount(cfg.BaseURL, cfg.BasePath),
	}, nil
}

// SetBaseContext sets the parent context for session lifetimes.
func (s *Server) SetBaseContext(ctx context.Context) {
	if s == nil || ctx == nil {
		return
	}
	s.sessions.setBaseContext(ctx)
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/api/login", s.handleLogin).Methods(http.MethodPost)
	router.HandleFunc("/api/logout", s.handleLogout).Methods(http.MethodPost)
	router.HandleFunc("/api/chpasswd", s.requireSession(s.handleChangePassword)).Methods(http.MethodPost)
	router.HandleFunc("/api/me", s.requireSession(s.handleMe)).Methods(http.MethodGet)
	router.HandleFunc("/api/pictures/{id}", s.requireSession(s.handlePicture)).Methods(http.MethodGet)
	router.HandleFunc("/api/pictures/{id}/edit-state", s.requireSession(s.handleEditState)).Methods(http.MethodGet)
	router.HandleFunc("/api/pictures/{id}/presence", s.requireSession(s.handlePresence)).Methods(http.MethodGet)
	router.HandleFunc(editSocketPath, s.handleEditSocket).Methods(http.MethodGet)

	handler := withRequestLogging(router, s.lookupSession)
	return s.mount.wrap(handler)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
		TOTP     string `json:"totp"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		log.Warn("http login decode failed", "err", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	log = log.With("account", payload.Username)
	user, err := s.auth.Authenticate(payload.Username, payload.Password, payload.TOTP)
	if err != nil {
		log.Warn("http login failed", "err", err)
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	token, sess := s.sessions.create(user.ID)
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.SessionCookie,
		Value:    token,
		Path:     s.mount.cookiePath(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.expiresAt,
	})
	writeJSON(w, http.StatusOK, map[string]any{"user": user.Profile()})
	log.Info("http login ok", "user", int64(user.ID))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := s.sessionToken(r)
	if token != "" {
		s.sessions.delete(token)
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.SessionCookie,
		Value:    "",
		Path:     s.mount.cookiePath(),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request, user schema.User) {
	log := logx.Ctx(r.Context())
	var payload struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
		ConfirmPassword string `json:"confirm_password"`
		TOTP            string `json:"totp"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.NewPassword == "" {
		writeError(w, http.StatusBadRequest, errors.New("new password is required"))
		return
	}
	if payload.NewPassword != payload.ConfirmPassword {
		writeError(w, http.StatusBadRequest, errors.New("new password confirmation does not match"))
		return
	}
	if err := s.auth.ChangePassword(user.Account, payload.CurrentPassword, payload.TOTP, payload.NewPassword); err != nil {
		log.Warn("http password change failed", "err", err)
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	revoked := s.sessions.revokeUser(user.ID, s.sessionToken(r))
	log.Info("http password changed", "revoked_sessions", revoked)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, user schema.User) {
	writeJSON(w, http.StatusOK, map[string]any{
		"user":       user.Profile(),
		"editSocket": s.mount.url(editSocketPath),
	})
}

func (s *Server) handlePicture(w http.ResponseWriter, r *http.Request, user schema.User) {
	picture, ok := s.viewablePicture(w, r, user)
	if !ok {
		return
	}
	perms, err := s.access.Permissions(r.Context(), user, picture)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":          strconv.FormatInt(int64(picture.ID), 10),
		"name":        picture.Name,
		"url":         picture.URL,
		"spaceId":     strconv.FormatInt(int64(picture.SpaceID), 10),
		"userId":      strconv.FormatInt(int64(picture.OwnerID), 10),
		"permissions": perms,
	})
}

func (s *Server) handleEditState(w http.ResponseWriter, r *http.Request, user schema.User) {
	picture, ok := s.viewablePicture(w, r, user)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.coord.Snapshot(picture.ID))
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request, user schema.User) {
	if s.presence == nil {
		writeError(w, http.StatusNotFound, errors.New("presence stream disabled"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	picture, ok := s.viewablePicture(w, r, user)
	if !ok {
		return
	}
	log := logx.WithPicture(logx.Ctx(r.Context()), picture.ID)
	ctx := sessionContext(r.Context())

	// Subscribe before the snapshot so no change falls between the two.
	ch, unsubscribe := s.presence.Subscribe(picture.ID)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	state := s.coord.Snapshot(picture.ID)
	_ = writeSSE(w, "state", 0, state)
	lastID := parseUint(r.Header.Get("Last-Event-ID"))
	if lastID > s.presence.LastSeq() {
		// The id predates this process; the state snapshot above replaces it.
		log.Debug("http presence stale last event id", "last_id", lastID)
		lastID = 0
	}
	replayCount := 0
	if lastID > 0 {
		replay := s.presence.Replay(picture.ID, lastID)
		replayCount = len(replay)
		for _, event := range replay {
			_ = writeSSE(w, "presence", event.Seq, event)
			lastID = event.Seq
		}
	}
	flusher.Flush()

	keepalive := time.NewTicker(presenceKeepalive)
	defer keepalive.Stop()
	log.Info("http presence stream opened", "last_id", lastID, "replay", replayCount, "sessions", state.Sessions)
	for {
		select {
		case <-ctx.Done():
			log.Info("http presence stream closed")
			return
		case <-r.Context().Done():
			log.Info("http presence stream closed")
			return
		case event, open := <-ch:
			if !open {
				return
			}
			if event.Seq <= lastID {
				continue
			}
			lastID = event.Seq
			if err := writeSSE(w, "presence", event.Seq, event); err != nil {
				log.Debug("http presence write failed", "err", err)
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// viewablePicture resolves the {id} route variable and checks picture:view.
func (s *Server) viewablePicture(w http.ResponseWriter, r *http.Request, user schema.User) (schema.Picture, bool) {
	pictureID, err := schema.ParsePictureID(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return schema.Picture{}, false
	}
	picture, herr := s.loadPicture(r.Context(), pictureID)
	if herr == nil {
		herr = s.requirePermission(r.Context(), user, schema.PermPictureView, picture)
	}
	if herr != nil {
		writeError(w, herr.status, herr.err)
		return schema.Picture{}, false
	}
	return picture, true
}

func (s *Server) requireSession(next func(http.ResponseWriter, *http.Request, schema.User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logx.Ctx(r.Context()).With("remote", clientIP(r))
		user, entry, ok := s.currentUser(r)
		if !ok {
			log.Warn("http session invalid")
			writeError(w, http.StatusUnauthorized, schema.ErrUnauthenticated)
			return
		}
		log = log.With("user", int64(user.ID), "http_session", entry.id)
		ctx := logx.ContextWithUserLogger(r.Context(), log, user.ID)
		ctx = withSessionContext(ctx, entry)
		next(w, r.WithContext(ctx), user)
	}
}

// currentSession returns the live login session carried by the request cookie.
func (s *Server) currentSession(r *http.Request) (session, bool) {
	token := s.sessionToken(r)
	if token == "" {
		return session{}, false
	}
	return s.sessions.get(token)
}

// currentUser resolves the request cookie to a user known to the auth store.
func (s *Server) currentUser(r *http.Request) (schema.User, session, bool) {
	entry, ok := s.currentSession(r)
	if !ok {
		return schema.User{}, session{}, false
	}
	user, err := s.auth.Lookup(entry.userID)
	if err != nil {
		logx.WithUser(r.Context(), entry.userID).Warn("http session user lookup failed", "err", err)
		return schema.User{}, session{}, false
	}
	return user, entry, true
}

type sessionContextKey struct{}

func withSessionContext(ctx context.Context, sess session) context.Context {
	if ctx == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

func sessionContext(ctx context.Context) context.Context {
	if ctx == nil {
		return nil
	}
	value := ctx.Value(sessionContextKey{})
	sess, ok := value.(session)
	if !ok || sess.ctx == nil {
		return ctx
	}
	logger := pslog.Ctx(ctx)
	return logx.CopyContextFields(pslog.ContextWithLogger(sess.ctx, logger), ctx)
}

func (s *Server) sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(s.cfg.SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (s *Server) lookupSession(r *http.Request) (schema.UserID, string) {
	if s == nil || r == nil {
		return 0, ""
	}
	entry, ok := s.currentSession(r)
	if !ok {
		return 0, ""
	}
	return entry.userID, entry.id
}

func decodeJSON(body io.Reader, target any) error {
	dec := json.NewDecoder(io.LimitReader(body, 1<<20))
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeSSE(w http.ResponseWriter, event string, id uint64, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if id > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", id); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
