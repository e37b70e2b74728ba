package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"pkt.systems/easelx/schema"
	"pkt.systems/pslog"
)

func newCaptureLogger(capture *logCapture) pslog.Logger {
	return pslog.NewWithOptions(capture, pslog.Options{
		Mode:          pslog.ModeStructured,
		NoColor:       true,
		MinLevel:      pslog.InfoLevel,
		VerboseFields: true,
	})
}

func TestWithPictureAddsField(t *testing.T) {
	capture := &logCapture{}
	log := WithPicture(newCaptureLogger(capture), 42)
	log.Info("hello")

	entry := capture.firstEntry(t)
	if fmt.Sprint(entry["picture"]) != "42" {
		t.Fatalf("expected picture field, got %+v", entry)
	}
}

func TestWithPictureSkipsZero(t *testing.T) {
	capture := &logCapture{}
	log := WithPicture(newCaptureLogger(capture), 0)
	log.Info("hello")

	entry := capture.firstEntry(t)
	if _, ok := entry["picture"]; ok {
		t.Fatalf("did not expect picture field for zero id")
	}
}

func TestWithUserPictureAddsFields(t *testing.T) {
	capture := &logCapture{}
	ctx := pslog.ContextWithLogger(context.Background(), newCaptureLogger(capture))
	log := WithUserPicture(ctx, 7, 42)
	log.Info("hello")

	entry := capture.firstEntry(t)
	if fmt.Sprint(entry["user"]) != "7" {
		t.Fatalf("expected user field, got %+v", entry)
	}
	if fmt.Sprint(entry["picture"]) != "42" {
		t.Fatalf("expected picture field, got %+v", entry)
	}
}

func TestWithUserDeduplicatesContextMarker(t *testing.T) {
	capture := &logCapture{}
	logger := newCaptureLogger(capture).With("user", int64(7))
	ctx := ContextWithUserLogger(context.Background(), logger, schema.UserID(7))
	WithUser(ctx, 7).Info("hello")

	line := bytes.TrimSpace(capture.buf.Bytes())
	if bytes.Count(line, []byte(`"user"`)) != 1 {
		t.Fatalf("expected a single user field, got %s", line)
	}
}

func TestWithSessionAddsField(t *testing.T) {
	capture := &logCapture{}
	WithSession(newCaptureLogger(capture), "abc").Info("hello")
	entry := capture.firstEntry(t)
	if entry["session"] != "abc" {
		t.Fatalf("expected session field, got %+v", entry)
	}
}

func TestBoundLoggerRequiresMatchingMarkers(t *testing.T) {
	capture := &logCapture{}
	logger := newCaptureLogger(capture).With("remote", "peer")
	ctx := ContextWithUserPictureLogger(context.Background(), logger, 7, 42)

	log, ok := BoundLogger(ctx, 7, 42)
	if !ok {
		t.Fatalf("expected bound logger for matching markers")
	}
	log.Info("hello")
	if entry := capture.firstEntry(t); entry["remote"] != "peer" {
		t.Fatalf("expected context logger fields, got %+v", entry)
	}
	if _, ok := BoundLogger(ctx, 7, 43); ok {
		t.Fatalf("did not expect bound logger for another picture")
	}
	if _, ok := BoundLogger(context.Background(), 7, 42); ok {
		t.Fatalf("did not expect bound logger without markers")
	}
}

type logCapture struct {
	buf bytes.Buffer
}

func (c *logCapture) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

func (c *logCapture) firstEntry(t *testing.T) map[string]any {
	t.Helper()
	data := c.buf.Bytes()
	idx := bytes.IndexByte(data, '\n')
	if idx == -1 {
		idx = len(data)
	}
	line := bytes.TrimSpace(data[:idx])
	entry := map[string]any{}
	if err := json.Unmarshal(line, &entry); err != nil {
		t.Fatalf("parse log entry: %v", err)
	}
	return entry
}
