// Package rotation decides which secrets are due for rotation, regenerates
// their values, and runs the background schedule that keeps the vault fresh.
package rotation

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/allisson/vaultd/internal/audit"
	"github.com/allisson/vaultd/internal/crypto"
	"github.com/allisson/vaultd/internal/vault"
)

// DueForRotation reports whether a secret needs rotation: true if its expiry
// has passed, otherwise true if its age has reached the rotation period.
func DueForRotation(meta vault.SecretMeta, now time.Time, rotationDays int) bool {
	if meta.ExpiresAt != nil {
		return !now.Before(*meta.ExpiresAt)
	}
	return now.Sub(meta.CreatedAt) >= time.Duration(rotationDays)*24*time.Hour
}

// InferSecretType guesses a secret's semantic category from substrings in
// its name. Best-effort only: an explicit type on creation is authoritative
// and this is just the fallback for secrets stored without one.
func InferSecretType(name string) crypto.SecretType {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "jwt"), strings.Contains(lower, "signing"):
		return crypto.TypeSigningKey
	case strings.Contains(lower, "postgres"),
		strings.Contains(lower, "mysql"),
		strings.Contains(lower, "password"):
		return crypto.TypeDatabasePassword
	case strings.Contains(lower, "encryption"), strings.Contains(lower, "backup"):
		return crypto.TypeEncryptionKey
	default:
		return crypto.TypeAPIKey
	}
}

// rotationConcurrency bounds how many secrets rotate at once; each rotation
// rewrites the vault file, so there is no point in unbounded parallelism.
const rotationConcurrency = 4

// Engine rotates secrets in the vault store and records the outcomes.
type Engine struct {
	store    *vault.Store
	auditLog *audit.Log
	logger   *slog.Logger
}

// NewEngine creates a rotation engine bound to the process's single vault store.
func NewEngine(store *vault.Store, auditLog *audit.Log, logger *slog.Logger) *Engine {
	return &Engine{store: store, auditLog: auditLog, logger: logger}
}

// RotateIfDue rotates the explicitly named secrets, or, when names is empty,
// every secret satisfying DueForRotation. Secrets rotate independently: a
// failure rotating one never aborts rotation of the others; each failure is
// logged and the scan continues. Returns the names actually rotated, sorted.
func (e *Engine) RotateIfDue(names []string) []string {
	if len(names) == 0 {
		now := time.Now().UTC()
		rotationDays := e.store.RotationDays()
		for _, info := range e.store.ListSecrets() {
			if DueForRotation(info.Meta, now, rotationDays) {
				names = append(names, info.Name)
			}
		}
	}

	var (
		mu      sync.Mutex
		rotated = make([]string, 0, len(names))
	)

	var g errgroup.Group
	g.SetLimit(rotationConcurrency)
	for _, name := range names {
		g.Go(func() error {
			if err := e.store.RotateSecret(name, InferSecretType(name)); err != nil {
				e.logger.Error("secret rotation failed",
					slog.String("secret", name),
					slog.Any("error", err),
				)
				e.auditLog.LogError("rotate_secret", "", name, "rotation failed")
				return nil
			}

			e.auditLog.LogSuccess("rotate_secret", "", name)
			mu.Lock()
			rotated = append(rotated, name)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(rotated)
	return rotated
}

// Scheduler wakes on a fixed interval and rotates whatever is due. It runs
// for the lifetime of the process: only context cancellation stops it, never
// a transient rotation failure.
type Scheduler struct {
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a scheduler that runs the engine every interval.
func NewScheduler(engine *Engine, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{engine: engine, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled, scanning for due secrets on each tick
// and logging a summary of what was rotated.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("starting rotation scheduler", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stopping rotation scheduler")
			return ctx.Err()
		case <-ticker.C:
			rotated := s.engine.RotateIfDue(nil)
			s.logger.Info("rotation scan complete",
				slog.Int("rotated", len(rotated)),
				slog.Any("secrets", rotated),
			)
		}
	}
}
