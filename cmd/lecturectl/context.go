package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lecturely/backend/config"
	"github.com/lecturely/backend/internal/admin"
	"github.com/lecturely/backend/internal/audit"
	"github.com/lecturely/backend/internal/auth"
	"github.com/lecturely/backend/internal/models"
	"github.com/lecturely/backend/internal/pipeline"
	"github.com/lecturely/backend/internal/recordings"
	"github.com/lecturely/backend/internal/tasks"
	"github.com/lecturely/backend/pkg/database"
	"github.com/lecturely/backend/pkg/queue"
	"github.com/lecturely/backend/pkg/redis"
)

// backend is what commands need from the service layer.
type backend interface {
	Snapshot(ctx context.Context, limits tasks.Limits) (*tasks.View, error)
	Detail(ctx context.Context, actor admin.Actor, id uuid.UUID) (*admin.RecordingDetail, error)
	Reprocess(ctx context.Context, actor admin.Actor, id uuid.UUID, kind pipeline.Kind, opts admin.Options) (*admin.Result, error)
	Retry(ctx context.Context, actor admin.Actor, id uuid.UUID, kind pipeline.Kind, opts admin.Options) (*admin.Result, error)
	Transfer(ctx context.Context, actor admin.Actor, id, target uuid.UUID, opts admin.Options) (*admin.Result, error)
	Delete(ctx context.Context, actor admin.Actor, id uuid.UUID, opts admin.Options) error
	Metrics(ctx context.Context, actor admin.Actor) (*admin.Metrics, error)
	AuditLog(ctx context.Context, actor admin.Actor, limit int) ([]models.AuditLogEntry, error)
	Actor(ctx context.Context, email string) (admin.Actor, error)
	Close()
}

type opener func(ctx context.Context) (backend, error)

type commandContext struct {
	open     opener
	asFlag   *string
	jsonFlag *bool

	once sync.Once
	be   backend
	err  error
}

func newCommandContext(open opener, asFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{open: open, asFlag: asFlag, jsonFlag: jsonFlag}
}

func (c *commandContext) backend(ctx context.Context) (backend, error) {
	c.once.Do(func() {
		c.be, c.err = c.open(ctx)
	})
	return c.be, c.err
}

func (c *commandContext) close() {
	if c.be != nil {
		c.be.Close()
	}
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// actor resolves --as to an operator identity. Role checks happen in the admin service.
func (c *commandContext) actor(ctx context.Context, be backend) (admin.Actor, error) {
	email := ""
	if c.asFlag != nil {
		email = strings.TrimSpace(*c.asFlag)
	}
	if email == "" {
		return admin.Actor{}, errors.New("--as <email> is required for this command")
	}
	return be.Actor(ctx, email)
}

type serviceBackend struct {
	*admin.Service
	tasks   *tasks.Service
	users   *auth.Repository
	closers []func()
}

func (b *serviceBackend) Snapshot(ctx context.Context, limits tasks.Limits) (*tasks.View, error) {
	return b.tasks.Snapshot(ctx, limits)
}

func (b *serviceBackend) Actor(ctx context.Context, email string) (admin.Actor, error) {
	u, err := b.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return admin.Actor{}, fmt.Errorf("no user with email %s", email)
		}
		return admin.Actor{}, err
	}
	return admin.Actor{UserID: u.ID, Email: u.Email, Role: u.Role, UserAgent: "lecturectl"}, nil
}

func (b *serviceBackend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// openServices wires the same services as the API server, without HTTP or tracing.
func openServices(ctx context.Context) (backend, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := zap.NewNop()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{MaxConns: 4}, logger)
	if err != nil {
		return nil, err
	}
	b := &serviceBackend{closers: []func(){pool.Close}}

	var spool audit.Spool
	if rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger); err == nil {
		spool = queue.NewQueue(rdb.Client, logger)
		b.closers = append(b.closers, func() { _ = rdb.Close() })
	}

	recordingRepo := recordings.NewRepository(pool)
	auditRepo := audit.NewRepository(pool)
	b.users = auth.NewRepository(pool)

	auditLogger := audit.NewLogger(auditRepo, spool, logger)
	auditLogger.SetWriteTimeout(cfg.Admin.AuditWriteTimeout)

	b.Service = admin.NewService(recordingRepo, b.users, auditLogger, logger)
	b.Service.SetTimeout(cfg.Admin.OpTimeout)
	b.Service.SetAuditReader(auditRepo)

	b.tasks = tasks.NewService(recordingRepo, cfg.Admin.OpTimeout, logger)
	b.tasks.SetDefaults(tasks.Limits{Pending: cfg.Admin.PendingLimit, Recent: cfg.Admin.RecentLimit})
	return b, nil
}
