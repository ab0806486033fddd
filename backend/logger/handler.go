package logger

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/PhilHem/secureone/backend/models"

	"gorm.io/gorm"
)

// DBHandler writes every record as JSON to out and, when db is set, also
// stores it as a models.LogEntry. The "source" and "user_email" attributes
// get their own columns.
type DBHandler struct {
	db          *gorm.DB
	jsonHandler slog.Handler
	level       slog.Leveler
	attrs       []slog.Attr
}

func NewDBHandler(db *gorm.DB, out io.Writer, level slog.Leveler) *DBHandler {
	if level == nil {
		level = slog.LevelInfo
	}
	return &DBHandler{
		db:          db,
		jsonHandler: slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level}),
		level:       level,
		attrs:       []slog.Attr{},
	}
}

// ParseLevel maps debug/info/warn/error to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (h *DBHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *DBHandler) Handle(ctx context.Context, r slog.Record) error {
	_ = h.jsonHandler.Handle(ctx, r)

	if h.db == nil {
		return nil
	}

	attrs := make(map[string]any)
	var source, userEmail string

	collect := func(a slog.Attr) {
		switch a.Key {
		case "source":
			source = a.Value.String()
		case "user_email":
			userEmail = a.Value.String()
		default:
			attrs[a.Key] = a.Value.Any()
		}
	}

	for _, a := range h.attrs {
		collect(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(a)
		return true
	})

	var data string
	if len(attrs) > 0 {
		b, _ := json.Marshal(attrs)
		data = string(b)
	}

	entry := models.LogEntry{
		CreatedAt: r.Time,
		Level:     r.Level.String(),
		Message:   r.Message,
		Source:    source,
		UserEmail: userEmail,
		Data:      data,
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	return h.db.WithContext(context.WithoutCancel(ctx)).Create(&entry).Error
}

func (h *DBHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	copy(newAttrs[len(h.attrs):], attrs)
	return &DBHandler{
		db:          h.db,
		jsonHandler: h.jsonHandler.WithAttrs(attrs),
		level:       h.level,
		attrs:       newAttrs,
	}
}

func (h *DBHandler) WithGroup(name string) slog.Handler {
	return h
}

// CleanupOldLogs removes persisted logs older than maxAge once an hour until
// ctx is cancelled.
func CleanupOldLogs(ctx context.Context, db *gorm.DB, maxAge time.Duration) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			PurgeBefore(ctx, db, time.Now().Add(-maxAge))
		}
	}
}

// PurgeBefore deletes log entries created before cutoff and returns how many
// were removed.
func PurgeBefore(ctx context.Context, db *gorm.DB, cutoff time.Time) int64 {
	res := db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.LogEntry{})
	return res.RowsAffected
}
