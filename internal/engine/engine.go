// Package engine assembles the session-trust components over one set of repositories.
package engine

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"session-trust-engine/internal/audit"
	auditrepo "session-trust-engine/internal/audit/repository"
	"session-trust-engine/internal/challenge"
	challengerepo "session-trust-engine/internal/challenge/repository"
	"session-trust-engine/internal/device"
	devicerepo "session-trust-engine/internal/device/repository"
	"session-trust-engine/internal/devotp"
	"session-trust-engine/internal/login"
	loginrepo "session-trust-engine/internal/login/repository"
	"session-trust-engine/internal/metrics"
	"session-trust-engine/internal/risk"
	riskrepo "session-trust-engine/internal/risk/repository"
	"session-trust-engine/internal/session"
	sessionrepo "session-trust-engine/internal/session/repository"
	"session-trust-engine/internal/telemetry"
)

// Repositories is one storage backend for every component.
type Repositories struct {
	Devices    devicerepo.Repository
	Sessions   sessionrepo.Repository
	Challenges challengerepo.Repository
	Pending    loginrepo.Repository
	Flags      riskrepo.Repository
	Audit      auditrepo.Repository
}

// MemoryRepositories keeps everything in process. State is lost on restart and not shared across replicas.
func MemoryRepositories() Repositories {
	return Repositories{
		Devices:    devicerepo.NewMemoryRepository(),
		Sessions:   sessionrepo.NewMemoryRepository(),
		Challenges: challengerepo.NewMemoryRepository(),
		Pending:    loginrepo.NewMemoryRepository(),
		Flags:      riskrepo.NewMemoryRepository(),
		Audit:      auditrepo.NewMemoryRepository(),
	}
}

// PostgresRepositories stores everything in db. The schema comes from internal/db migrations.
func PostgresRepositories(db *sql.DB) Repositories {
	return Repositories{
		Devices:    devicerepo.NewPostgresRepository(db),
		Sessions:   sessionrepo.NewPostgresRepository(db),
		Challenges: challengerepo.NewPostgresRepository(db),
		Pending:    loginrepo.NewPostgresRepository(db),
		Flags:      riskrepo.NewPostgresRepository(db),
		Audit:      auditrepo.NewPostgresRepository(db),
	}
}

// RedisRepositories stores engine state in Redis under prefix. Audit entries go to auditRepo, or
// memory when nil, since Redis keeps no audit trail.
func RedisRepositories(client redis.UniversalClient, prefix string, auditRepo auditrepo.Repository) Repositories {
	if auditRepo == nil {
		auditRepo = auditrepo.NewMemoryRepository()
	}
	return Repositories{
		Devices:    devicerepo.NewRedisRepository(client, prefix),
		Sessions:   sessionrepo.NewRedisRepository(client, prefix),
		Challenges: challengerepo.NewRedisRepository(client, prefix),
		Pending:    loginrepo.NewRedisRepository(client, prefix),
		Flags:      riskrepo.NewRedisRepository(client, prefix),
		Audit:      auditRepo,
	}
}

// Options tunes the engine. Zero values fall back to component defaults; every collaborator is optional.
type Options struct {
	MaxSessions  int
	SessionTTL   time.Duration
	ChallengeTTL time.Duration
	MaxAttempts  int
	OTPDigits    int

	Classifier  risk.Classifier
	Notifier    challenge.Notifier
	DevOTP      devotp.Store
	Tokens      login.TokenIssuer
	Events      telemetry.EventEmitter
	Metrics     *metrics.Recorder
	IPExtractor audit.IPExtractor
}

// Engine holds the wired components.
type Engine struct {
	Repos      Repositories
	Audit      *audit.Logger
	Devices    *device.Registry
	Sessions   *session.Store
	Revocation *session.RevocationService
	Challenges *challenge.Service
	Risk       *risk.Evaluator
	Validator  *login.Validator
}

// New wires the components over repos.
func New(repos Repositories, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	auditLogger := audit.NewLogger(repos.Audit, opts.IPExtractor, logger)
	devices := device.NewRegistry(repos.Devices, logger)
	sessions := session.NewStore(repos.Sessions, session.Options{
		MaxSessions: opts.MaxSessions,
		TTL:         opts.SessionTTL,
	}, logger).WithMetrics(opts.Metrics)
	revocation := session.NewRevocationService(sessions, auditLogger, logger)
	challenges := challenge.NewService(repos.Challenges, opts.Notifier, challenge.Options{
		TTL:         opts.ChallengeTTL,
		MaxAttempts: opts.MaxAttempts,
		Digits:      opts.OTPDigits,
	}, logger)
	if opts.DevOTP != nil {
		challenges = challenges.WithDevStore(opts.DevOTP)
	}
	evaluator := risk.NewEvaluator(devices, sessions, repos.Flags, opts.Classifier, logger)

	validator := login.NewValidator(login.Deps{
		Devices:    devices,
		Risk:       evaluator,
		Challenges: challenges,
		Sessions:   sessions,
		Revocation: revocation,
		Pending:    repos.Pending,
		Tokens:     opts.Tokens,
		Audit:      auditLogger,
		Events:     opts.Events,
		Metrics:    opts.Metrics,
	}, logger)

	return &Engine{
		Repos:      repos,
		Audit:      auditLogger,
		Devices:    devices,
		Sessions:   sessions,
		Revocation: revocation,
		Challenges: challenges,
		Risk:       evaluator,
		Validator:  validator,
	}
}
