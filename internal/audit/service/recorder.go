// Package service writes the chat audit trail. Writes are buffered and
// best-effort: a full buffer or a failed insert drops the entry with a log
// line, never an error on the request path.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/vylinhq/vylin/internal/audit/domain"
	"github.com/vylinhq/vylin/internal/clock"
	obscontext "github.com/vylinhq/vylin/internal/observability/context"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const bufferSize = 256

type Params struct {
	fx.In

	LC    fx.Lifecycle
	DB    *gorm.DB
	Log   *zap.Logger
	Clock clock.Clock
	GenID *snowflake.Node
}

type Recorder struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	genID *snowflake.Node

	entries chan auditdomain.ChatAuditLog
	done    chan struct{}

	// mu guards closed so Record never sends on a closed channel during
	// shutdown.
	mu     sync.RWMutex
	closed bool
}

func NewRecorder(p Params) auditdomain.Recorder {
	r := &Recorder{
		db:      p.DB,
		log:     p.Log.Named("audit.recorder"),
		clock:   p.Clock,
		genID:   p.GenID,
		entries: make(chan auditdomain.ChatAuditLog, bufferSize),
		done:    make(chan struct{}),
	}
	go r.run()

	p.LC.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			r.mu.Lock()
			r.closed = true
			close(r.entries)
			r.mu.Unlock()
			select {
			case <-r.done:
			case <-ctx.Done():
			}
			return nil
		},
	})
	return r
}

func (r *Recorder) Record(ctx context.Context, entry auditdomain.Entry) {
	now := r.clock.Now().UTC()

	metadata := map[string]any{}
	for key, value := range entry.Metadata {
		if key == "" {
			continue
		}
		metadata[key] = value
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		metadata["request_id"] = requestID
	}

	correlationID := entry.CorrelationID
	if correlationID == "" {
		correlationID = ulid.Make().String()
	}

	row := auditdomain.ChatAuditLog{
		ID:             r.genID.Generate(),
		CorrelationID:  correlationID,
		Identity:       entry.Identity,
		Mode:           entry.Mode,
		Allowed:        entry.Allowed,
		Cost:           entry.Cost,
		Remaining:      entry.Remaining,
		Degraded:       entry.Degraded,
		Refused:        entry.Refused,
		QuestionLength: entry.QuestionLength,
		Metadata:       datatypes.JSONMap(metadata),
		CreatedAt:      now,
	}
	if entry.Reason != "" {
		reason := entry.Reason
		row.Reason = &reason
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.entries <- row:
	default:
		r.log.Warn("audit buffer full, dropping entry",
			zap.String("identity", entry.Identity),
			zap.String("mode", entry.Mode),
		)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for row := range r.entries {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
			r.log.Warn("failed to write audit log",
				zap.String("correlation_id", row.CorrelationID),
				zap.Error(err),
			)
		}
		cancel()
	}
}
