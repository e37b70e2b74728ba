package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"pkt.systems/easelx/core"
	"pkt.systems/easelx/internal/logx"
	"pkt.systems/easelx/schema"
)

// handshakeError carries the HTTP status a rejected handshake answers with.
type handshakeError struct {
	status int
	err    error
}

func (e *handshakeError) Error() string { return e.err.Error() }

func (e *handshakeError) Unwrap() error { return e.err }

func reject(status int, err error) *handshakeError {
	return &handshakeError{status: status, err: err}
}

// admitEditor runs the handshake checks in order and returns the picture the
// caller may edit.
func (s *Server) admitEditor(ctx context.Context, r *http.Request) (schema.User, schema.Picture, *handshakeError) {
	pictureID, err := schema.ParsePictureID(r.URL.Query().Get("pictureId"))
	if err != nil {
		return schema.User{}, schema.Picture{}, reject(http.StatusBadRequest, err)
	}
	user, _, ok := s.currentUser(r)
	if !ok {
		return schema.User{}, schema.Picture{}, reject(http.StatusUnauthorized, schema.ErrUnauthenticated)
	}
	picture, herr := s.loadPicture(ctx, pictureID)
	if herr != nil {
		return user, schema.Picture{}, herr
	}
	if picture.SpaceID != 0 {
		space, err := s.catalog.Space(ctx, picture.SpaceID)
		if errors.Is(err, schema.ErrSpaceNotFound) {
			return user, picture, reject(http.StatusNotFound, err)
		}
		if err != nil {
			return user, picture, reject(http.StatusInternalServerError, err)
		}
		if space.Type != schema.SpaceTeam {
			return user, picture, reject(http.StatusForbidden, schema.ErrNotTeamSpace)
		}
	}
	if herr := s.requirePermission(ctx, user, schema.PermPictureEdit, picture); herr != nil {
		return user, picture, herr
	}
	return user, picture, nil
}

func (s *Server) loadPicture(ctx context.Context, pictureID schema.PictureID) (schema.Picture, *handshakeError) {
	picture, err := s.catalog.Picture(ctx, pictureID)
	if errors.Is(err, schema.ErrPictureNotFound) {
		return schema.Picture{}, reject(http.StatusNotFound, err)
	}
	if err != nil {
		return schema.Picture{}, reject(http.StatusInternalServerError, err)
	}
	return picture, nil
}

func (s *Server) requirePermission(ctx context.Context, user schema.User, perm schema.Permission, picture schema.Picture) *handshakeError {
	allowed, err := s.access.Allowed(ctx, user, perm, picture)
	if err != nil {
		return reject(http.StatusInternalServerError, err)
	}
	if !allowed {
		return reject(http.StatusForbidden, schema.ErrForbidden)
	}
	return nil
}

func (s *Server) handleEditSocket(w http.ResponseWriter, r *http.Request) {
	log := logx.Ctx(r.Context()).With("remote", clientIP(r))
	user, picture, herr := s.admitEditor(r.Context(), r)
	if herr != nil {
		log.Warn("edit handshake rejected", "user", int64(user.ID), "picture", r.URL.Query().Get("pictureId"), "status", herr.status, "err", herr.err)
		writeError(w, herr.status, herr.err)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("edit handshake upgrade failed", "user", int64(user.ID), "picture", int64(picture.ID), "err", err)
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	if entry, ok := s.currentSession(r); ok {
		// Logging out ends the user's open edit sockets.
		stop := context.AfterFunc(entry.ctx, cancel)
		defer stop()
	}
	s.serveEditSession(ctx, ws, user, picture)
}

// serveEditSession runs one edit connection until the peer leaves or ctx ends.
func (s *Server) serveEditSession(ctx context.Context, ws *websocket.Conn, user schema.User, picture schema.Picture) {
	log := logx.WithUserPicture(ctx, user.ID, picture.ID)
	conn := newWSConn(ws, s.ws, log)
	session := core.NewSession(user, picture.ID, conn)
	log = logx.WithSession(log, session.ID)
	conn.log = log
	ctx = logx.ContextWithUserPictureLogger(ctx, log, user.ID, picture.ID)

	go conn.writePump()
	defer conn.Close()

	s.coord.OnConnect(ctx, session)
	defer s.coord.OnDisconnect(context.WithoutCancel(ctx), session)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	err := conn.readLoop(func(data []byte) {
		req, kind, err := schema.DecodeEditRequest(data)
		if err != nil {
			log.Debug("edit frame rejected", "type", string(req.Type), "err", err)
			s.coord.SendError(session, err.Error())
			return
		}
		log.Trace("edit frame", "type", string(req.Type), "action", string(req.EditAction))
		if err := s.events.Publish(ctx, core.NewEvent(session, kind, req.EditAction)); err != nil {
			switch {
			case errors.Is(err, schema.ErrPipelineFull):
				log.Warn("edit event rejected", "err", err)
				s.coord.SendError(session, err.Error())
			case errors.Is(err, schema.ErrPipelineClosed):
				_ = conn.Close()
			default:
				log.Debug("edit event publish aborted", "err", err)
			}
		}
	})
	if err != nil {
		log.Warn("edit socket read failed", "err", err)
	}
}

func newUpgrader(cfg WebSocketConfig) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
}

// originChecker accepts same-host origins and any listed origin. A "*" entry
// accepts all origins.
func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" {
			set[strings.ToLower(origin)] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set["*"]; ok {
			return true
		}
		if _, ok := set[strings.ToLower(origin)]; ok {
			return true
		}
		parsed, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(parsed.Host, r.Host)
	}
}
