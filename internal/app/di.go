// Package app provides the dependency injection container assembling the
// vault's components. Exactly one VaultStore, AuditLog, Policy, and
// Detector instance exists per process, shared by the request layer and the
// rotation scheduler.
package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/allisson/go-pwdhash"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/allisson/vaultd/internal/audit"
	"github.com/allisson/vaultd/internal/config"
	"github.com/allisson/vaultd/internal/crypto"
	vaulthttp "github.com/allisson/vaultd/internal/http"
	"github.com/allisson/vaultd/internal/intrusion"
	"github.com/allisson/vaultd/internal/metrics"
	"github.com/allisson/vaultd/internal/policy"
	"github.com/allisson/vaultd/internal/rotation"
	"github.com/allisson/vaultd/internal/vault"
)

// Container holds all application dependencies and provides methods to
// access them. Components are created lazily on first access.
type Container struct {
	config  *config.Config
	version string

	logger          *slog.Logger
	masterKey       *crypto.MasterKey
	store           *vault.Store
	pol             *policy.Policy
	auditLog        *audit.Log
	detector        *intrusion.Detector
	engine          *rotation.Engine
	scheduler       *rotation.Scheduler
	metricsProvider *metrics.Provider
	business        *metrics.Business
	hasher          *pwdhash.PasswordHasher
	httpServer      *vaulthttp.Server
	metricsServer   *vaulthttp.MetricsServer

	loggerInit          sync.Once
	masterKeyInit       sync.Once
	storeInit           sync.Once
	policyInit          sync.Once
	auditLogInit        sync.Once
	detectorInit        sync.Once
	engineInit          sync.Once
	schedulerInit       sync.Once
	metricsProviderInit sync.Once
	businessInit        sync.Once
	hasherInit          sync.Once
	httpServerInit      sync.Once
	metricsServerInit   sync.Once

	mu         sync.Mutex
	initErrors map[string]error
}

// NewContainer creates a new dependency injection container.
func NewContainer(cfg *config.Config, version string) *Container {
	return &Container{
		config:     cfg,
		version:    version,
		initErrors: make(map[string]error),
	}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the configured logger instance.
func (c *Container) Logger() *slog.Logger {
	c.loggerInit.Do(func() {
		var logLevel slog.Level
		switch c.config.LogLevel {
		case "debug":
			logLevel = slog.LevelDebug
		case "info":
			logLevel = slog.LevelInfo
		case "warn":
			logLevel = slog.LevelWarn
		case "error":
			logLevel = slog.LevelError
		default:
			logLevel = slog.LevelInfo
		}

		c.logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		}))
	})
	return c.logger
}

func (c *Container) storeInitError(name string, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.initErrors[name] = err
	}
	return c.initErrors[name]
}

// MasterKey returns the process's single master key, loading or creating
// the key file on first access.
func (c *Container) MasterKey() (*crypto.MasterKey, error) {
	var err error
	c.masterKeyInit.Do(func() {
		c.masterKey, err = crypto.LoadOrCreateMasterKey(c.config.MasterKeyPath)
	})
	if stored := c.storeInitError("masterKey", err); stored != nil {
		return nil, stored
	}
	return c.masterKey, nil
}

// VaultStore returns the process's single vault store.
func (c *Container) VaultStore() (*vault.Store, error) {
	var err error
	c.storeInit.Do(func() {
		var masterKey *crypto.MasterKey
		masterKey, err = c.MasterKey()
		if err != nil {
			return
		}

		alg := crypto.ParseAlgorithm(c.config.AEADAlgorithm)
		var cipher crypto.Cipher
		cipher, err = crypto.NewCipher(masterKey.Bytes(), alg)
		if err != nil {
			return
		}

		c.store, err = vault.LoadOrInit(
			c.config.VaultFilePath,
			cipher,
			alg,
			c.config.RotationDays,
			c.config.GraceDays,
		)
	})
	if stored := c.storeInitError("vaultStore", err); stored != nil {
		return nil, stored
	}
	return c.store, nil
}

// Policy returns the policy engine. A missing or unparsable policy document
// degrades to the fail-closed policy with a logged warning.
func (c *Container) Policy() *policy.Policy {
	c.policyInit.Do(func() {
		pol, err := policy.Load(c.config.PolicyFilePath)
		if err != nil {
			c.Logger().Warn("policy file unusable, failing closed",
				slog.String("path", c.config.PolicyFilePath),
				slog.Any("error", err),
			)
		}
		c.pol = pol
	})
	return c.pol
}

// AuditLog returns the process's single audit log.
func (c *Container) AuditLog() (*audit.Log, error) {
	var err error
	c.auditLogInit.Do(func() {
		c.auditLog, err = audit.Init(c.config.AuditLogPath, c.Logger())
	})
	if stored := c.storeInitError("auditLog", err); stored != nil {
		return nil, stored
	}
	return c.auditLog, nil
}

// Detector returns the intrusion detector.
func (c *Container) Detector() *intrusion.Detector {
	c.detectorInit.Do(func() {
		var canaries []string
		for _, name := range strings.Split(c.config.CanarySecrets, ",") {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				canaries = append(canaries, trimmed)
			}
		}
		c.detector = intrusion.NewDetector(
			c.config.IntrusionThreshold,
			c.config.IntrusionBanDuration,
			canaries,
		)
	})
	return c.detector
}

// RotationEngine returns the rotation engine bound to the shared vault store.
func (c *Container) RotationEngine() (*rotation.Engine, error) {
	var err error
	c.engineInit.Do(func() {
		var store *vault.Store
		store, err = c.VaultStore()
		if err != nil {
			return
		}

		var auditLog *audit.Log
		auditLog, err = c.AuditLog()
		if err != nil {
			return
		}

		c.engine = rotation.NewEngine(store, auditLog, c.Logger())
	})
	if stored := c.storeInitError("rotationEngine", err); stored != nil {
		return nil, stored
	}
	return c.engine, nil
}

// RotationScheduler returns the background rotation scheduler.
func (c *Container) RotationScheduler() (*rotation.Scheduler, error) {
	var err error
	c.schedulerInit.Do(func() {
		var engine *rotation.Engine
		engine, err = c.RotationEngine()
		if err != nil {
			return
		}

		c.scheduler = rotation.NewScheduler(engine, c.config.RotationInterval, c.Logger())
	})
	if stored := c.storeInitError("rotationScheduler", err); stored != nil {
		return nil, stored
	}
	return c.scheduler, nil
}

// MetricsProvider returns the metrics provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	var err error
	c.metricsProviderInit.Do(func() {
		if !c.config.MetricsEnabled {
			return
		}
		c.metricsProvider, err = metrics.NewProvider(c.config.MetricsNamespace)
	})
	if stored := c.storeInitError("metricsProvider", err); stored != nil {
		return nil, stored
	}
	return c.metricsProvider, nil
}

// BusinessMetrics returns the vault business counters, or nil when metrics
// are disabled.
func (c *Container) BusinessMetrics() (*metrics.Business, error) {
	var err error
	c.businessInit.Do(func() {
		var provider *metrics.Provider
		provider, err = c.MetricsProvider()
		if err != nil || provider == nil {
			return
		}
		c.business, err = metrics.NewBusiness(provider.MeterProvider(), c.config.MetricsNamespace)
	})
	if stored := c.storeInitError("businessMetrics", err); stored != nil {
		return nil, stored
	}
	return c.business, nil
}

// Hasher returns the Argon2id hasher used to verify client tokens.
func (c *Container) Hasher() (*pwdhash.PasswordHasher, error) {
	var err error
	c.hasherInit.Do(func() {
		c.hasher, err = pwdhash.New(pwdhash.WithPolicy(pwdhash.PolicyModerate))
	})
	if stored := c.storeInitError("hasher", err); stored != nil {
		return nil, stored
	}
	return c.hasher, nil
}

// HTTPServer returns the vault API server, initializing all dependencies.
func (c *Container) HTTPServer() (*vaulthttp.Server, error) {
	var err error
	c.httpServerInit.Do(func() {
		var store *vault.Store
		store, err = c.VaultStore()
		if err != nil {
			return
		}

		var auditLog *audit.Log
		auditLog, err = c.AuditLog()
		if err != nil {
			return
		}

		var engine *rotation.Engine
		engine, err = c.RotationEngine()
		if err != nil {
			return
		}

		var business *metrics.Business
		business, err = c.BusinessMetrics()
		if err != nil {
			return
		}
		if business != nil {
			auditLog.SetFailureHook(func() {
				business.RecordAuditFailure(context.Background())
			})
		}

		var hasher *pwdhash.PasswordHasher
		hasher, err = c.Hasher()
		if err != nil {
			return
		}

		pol := c.Policy()
		detector := c.Detector()
		logger := c.Logger()

		handler := vaulthttp.NewSecretHandler(
			store,
			pol,
			detector,
			auditLog,
			engine,
			business,
			logger,
			c.version,
		)

		onAuthFailure := func(client string) {
			detector.ReportFailure(client, "authentication failed")
		}

		serverCfg := vaulthttp.ServerConfig{
			Host:                    c.config.ServerHost,
			Port:                    c.config.ServerPort,
			RateLimitEnabled:        c.config.RateLimitEnabled,
			RateLimitRequestsPerSec: c.config.RateLimitRequestsPerSec,
			RateLimitBurst:          c.config.RateLimitBurst,
			CORSEnabled:             c.config.CORSEnabled,
			CORSAllowOrigins:        c.config.CORSAllowOrigins,
			MetricsNamespace:        c.config.MetricsNamespace,
		}

		var provider *metrics.Provider
		provider, err = c.MetricsProvider()
		if err != nil {
			return
		}

		var meterProvider otelmetric.MeterProvider
		if provider != nil {
			meterProvider = provider.MeterProvider()
		}

		c.httpServer = vaulthttp.NewServer(
			serverCfg, handler, pol, hasher, onAuthFailure, meterProvider, logger,
		)
	})
	if stored := c.storeInitError("httpServer", err); stored != nil {
		return nil, stored
	}
	return c.httpServer, nil
}

// MetricsServer returns the Prometheus metrics server, or nil when metrics
// are disabled.
func (c *Container) MetricsServer() (*vaulthttp.MetricsServer, error) {
	var err error
	c.metricsServerInit.Do(func() {
		var provider *metrics.Provider
		provider, err = c.MetricsProvider()
		if err != nil || provider == nil {
			return
		}

		c.metricsServer = vaulthttp.NewMetricsServer(
			c.config.ServerHost,
			c.config.MetricsPort,
			c.Logger(),
			provider,
		)
	})
	if stored := c.storeInitError("metricsServer", err); stored != nil {
		return nil, stored
	}
	return c.metricsServer, nil
}

// Shutdown releases resources: zeroizes the master key, closes the audit
// log, and flushes the metrics provider.
func (c *Container) Shutdown(ctx context.Context) error {
	if c.masterKey != nil {
		c.masterKey.Close()
	}

	var errs []error
	if c.auditLog != nil {
		if err := c.auditLog.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.metricsProvider != nil {
		if err := c.metricsProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
