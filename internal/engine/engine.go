package engine

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ShovalB85/RasApp/internal/config"
	"github.com/ShovalB85/RasApp/internal/domain"
	"github.com/ShovalB85/RasApp/internal/events"
	"github.com/ShovalB85/RasApp/internal/logging"
	"github.com/ShovalB85/RasApp/internal/repo"
)

// SystemActor is recorded on events written by bootstrap code.
const SystemActor = "system"

type Engine struct {
	Store  repo.Store
	Config *config.Config
	Log    *logrus.Logger
	Now    func() time.Time
}

func New(store repo.Store, cfg *config.Config, log *logrus.Logger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		Store:  store,
		Config: cfg,
		Log:    log,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *logrus.Logger {
	if e.Log == nil {
		return logging.Discard()
	}
	return e.Log
}

func (e Engine) cfg() *config.Config {
	if e.Config == nil {
		return config.Default()
	}
	return e.Config
}

func newID() string { return uuid.NewString() }

// mutate runs fn in one transaction with the actor loaded inside it.
func (e Engine) mutate(ctx context.Context, op, actorID string, fields logrus.Fields, fn func(tx repo.Tx, actor domain.Person) error) error {
	err := e.Store.InTx(ctx, func(tx repo.Tx) error {
		actor, err := loadActor(ctx, tx, actorID)
		if err != nil {
			return err
		}
		return fn(tx, actor)
	})
	entry := e.logger().WithFields(logrus.Fields{"op": op, "actor": actorID}).WithFields(fields)
	if err != nil {
		entry.WithError(err).Debug("rejected")
		return err
	}
	entry.Debug("committed")
	return nil
}

func (e Engine) view(ctx context.Context, actorID string, fn func(tx repo.Tx, actor domain.Person) error) error {
	return e.Store.View(ctx, func(tx repo.Tx) error {
		actor, err := loadActor(ctx, tx, actorID)
		if err != nil {
			return err
		}
		return fn(tx, actor)
	})
}

func loadActor(ctx context.Context, tx repo.Tx, actorID string) (domain.Person, error) {
	if actorID == "" {
		return domain.Person{}, domain.Unauthenticated("actor required")
	}
	actor, err := tx.GetPerson(ctx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Person{}, domain.Unauthenticated("unknown actor")
	}
	return actor, err
}

func (e Engine) emit(ctx context.Context, tx repo.Tx, evtType, deploymentID, entityKind, entityID, actorID string, payload events.Payload) error {
	return tx.AppendEvent(ctx, events.New(e.now(), evtType, deploymentID, entityKind, entityID, actorID, payload))
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// ListEvents reads the custody log, newest first. Managers and admins only.
func (e Engine) ListEvents(ctx context.Context, actorID string, f repo.EventFilter) ([]domain.Event, error) {
	var out []domain.Event
	err := e.view(ctx, actorID, func(tx repo.Tx, actor domain.Person) error {
		if !actor.Role.Elevated() {
			return domain.PermissionDenied("events.read")
		}
		var err error
		out, err = tx.ListEvents(ctx, f)
		return err
	})
	return out, err
}
