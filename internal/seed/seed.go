// Package seed makes the configuration keys and well-known person rows the
// application depends on exist, without ever duplicating or overwriting them.
package seed

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/R3E-Network/datamigrations/internal/app/domain/person"
	"github.com/R3E-Network/datamigrations/internal/app/storage"
	"github.com/R3E-Network/datamigrations/internal/app/storage/postgres"
	"github.com/R3E-Network/datamigrations/internal/appconfig"
	"github.com/R3E-Network/datamigrations/internal/database"
	"github.com/R3E-Network/datamigrations/pkg/logger"
)

// Rows runs fn against a seeder bound to one transaction. Implementations may
// run fn more than once; each run starts from a clean transaction.
type Rows interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context, s storage.PersonSeeder) error) error
}

// SQLRows runs seeding transactions on PostgreSQL under an execution strategy.
type SQLRows struct {
	strategy *database.ExecutionStrategy
	store    *postgres.Store
}

// NewSQLRows binds the people store to strategy.
func NewSQLRows(strategy *database.ExecutionStrategy) *SQLRows {
	return &SQLRows{strategy: strategy, store: postgres.New(strategy.DB())}
}

func (r *SQLRows) InTransaction(ctx context.Context, fn func(ctx context.Context, s storage.PersonSeeder) error) error {
	return r.strategy.InTransaction(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		return fn(ctx, r.store.WithTx(tx))
	})
}

// DirectRows runs fn once against a seeder that applies each batch atomically
// on its own, such as storage.Memory.
type DirectRows struct {
	Seeder storage.PersonSeeder
}

func (r DirectRows) InTransaction(ctx context.Context, fn func(ctx context.Context, s storage.PersonSeeder) error) error {
	return fn(ctx, r.Seeder)
}

// RowsResult summarizes one EnsureRows call.
type RowsResult struct {
	// GeneratedID is the per-run row id.
	GeneratedID uuid.UUID
	// Existing counts well-known ids that were already stored.
	Existing int
	// Inserted counts rows written, including the generated one.
	Inserted int64
}

// Coordinator seeds the configuration store and the people table.
type Coordinator struct {
	config appconfig.Client
	rows   Rows
	log    *logger.Logger
	newID  func() uuid.UUID
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithIDGenerator replaces uuid.New for the per-run row.
func WithIDGenerator(fn func() uuid.UUID) Option {
	return func(c *Coordinator) { c.newID = fn }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(c *Coordinator) { c.log = l }
}

// NewCoordinator returns a Coordinator writing settings to config and rows to rows.
func NewCoordinator(config appconfig.Client, rows Rows, opts ...Option) *Coordinator {
	c := &Coordinator{config: config, rows: rows, newID: uuid.New}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.NewDefault("seed")
	}
	return c
}

// EnsureConfigDefaults adds every key of defaults under label unless a setting
// for (key, label) already exists. Existing values are never changed. The
// first failure aborts and names the key.
func (c *Coordinator) EnsureConfigDefaults(ctx context.Context, defaults map[string]string, label string) error {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	added := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		wrote, err := c.ensureSetting(ctx, key, defaults[key], label)
		if err != nil {
			return fmt.Errorf("error checking existing configuration for key %q: %w", key, err)
		}
		if wrote {
			added++
		}
	}

	c.log.WithFields(logrus.Fields{
		"label":   label,
		"keys":    len(keys),
		"added":   added,
		"present": len(keys) - added,
	}).Info("configuration defaults ensured")
	return nil
}

func (c *Coordinator) ensureSetting(ctx context.Context, key, value, label string) (bool, error) {
	exists, err := anySetting(c.config.List(ctx, escapeFilter(key), escapeFilter(label)))
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	_, err = c.config.Add(ctx, appconfig.Setting{Key: key, Value: value, Label: label})
	if errors.Is(err, appconfig.ErrAlreadyExists) {
		// Another writer created it between the list and the add.
		c.log.WithField("key", key).Debug("setting appeared concurrently")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	c.log.WithFields(logrus.Fields{"key": key, "label": label}).Info("added default setting")
	return true, nil
}

func anySetting(seq iter.Seq2[appconfig.Setting, error]) (bool, error) {
	for _, err := range seq {
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// escapeFilter makes a literal key or label safe to use as a filter.
func escapeFilter(v string) string {
	if v == "" {
		return `\0`
	}
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `,`, `\,`)
	return r.Replace(v)
}

// EnsureRows makes every well-known id exist exactly once and inserts one new
// row with a fresh id. The lookup and the inserts share one transaction, so a
// retried attempt recomputes what is missing and the batch commits entirely
// or not at all.
func (c *Coordinator) EnsureRows(ctx context.Context, wellKnown []uuid.UUID, factory person.Factory) (RowsResult, error) {
	if factory == nil {
		factory = person.NewFactory(nil)
	}

	generated := c.newID()
	candidates := make([]person.Person, 0, len(wellKnown)+1)
	ids := make([]uuid.UUID, 0, len(wellKnown)+1)
	seen := make(map[uuid.UUID]struct{}, len(wellKnown)+1)
	for _, id := range append(append([]uuid.UUID{}, wellKnown...), generated) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
		candidates = append(candidates, factory(id))
	}

	var result RowsResult
	err := c.rows.InTransaction(ctx, func(ctx context.Context, s storage.PersonSeeder) error {
		existing, err := s.ExistingPersonIDs(ctx, ids)
		if err != nil {
			return err
		}

		missing := make([]person.Person, 0, len(candidates))
		for _, p := range candidates {
			if _, ok := existing[p.ID]; !ok {
				missing = append(missing, p)
			}
		}

		inserted := int64(0)
		if len(missing) > 0 {
			if inserted, err = s.InsertPeople(ctx, missing); err != nil {
				return err
			}
		}
		result = RowsResult{GeneratedID: generated, Existing: len(existing), Inserted: inserted}
		return nil
	})
	if err != nil {
		return RowsResult{}, fmt.Errorf("seed people: %w", err)
	}

	c.log.WithFields(logrus.Fields{
		"generated_id": result.GeneratedID.String(),
		"existing":     result.Existing,
		"inserted":     result.Inserted,
	}).Info("people rows ensured")
	return result, nil
}
