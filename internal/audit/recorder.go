package audit

import (
	"context"
	"log/slog"

	"github.com/rodolfodiegosilva/iot-system-api/internal/auth"
)

// Recorder writes audit entries without failing the caller. Write errors
// are logged.
type Recorder struct {
	repo   Repository
	logger *slog.Logger
}

// NewRecorder creates a recorder. A nil repo makes every call a no-op.
func NewRecorder(repo Repository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, logger: logger}
}

// Record stores entry. The write uses a context detached from ctx's
// cancellation so entries survive client disconnects.
func (r *Recorder) Record(ctx context.Context, entry AuditLog) {
	if r == nil || r.repo == nil {
		return
	}
	if err := r.repo.Create(context.WithoutCancel(ctx), &entry); err != nil {
		r.logger.Error("audit write failed", "action", entry.Action, "error", err)
	}
}

// List returns entries for callers holding PermAuditRead.
func (r *Recorder) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if err := auth.RequirePermission(auth.PrincipalFrom(ctx), auth.PermAuditRead); err != nil {
		return nil, err
	}
	return r.repo.List(ctx, filter)
}
