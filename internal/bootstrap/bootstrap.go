// Package bootstrap builds the repositories and publishers selected by
// configuration, shared by the server, the cron runner and ledgerctl.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"library-ledger-backend/internal/config"
	"library-ledger-backend/internal/events"
	"library-ledger-backend/internal/idempotency"
	"library-ledger-backend/internal/logger"
	"library-ledger-backend/internal/repository"
	"library-ledger-backend/internal/repository/memory"
	mongorepo "library-ledger-backend/internal/repository/mongo"
	"library-ledger-backend/internal/repository/postgres"
	"library-ledger-backend/internal/service"
)

// Stores holds the configured repositories. Close releases their
// connections.
type Stores struct {
	Units   repository.ResourceRepository
	Ledger  repository.LedgerRepository
	Members repository.MemberRepository
	DB      *sql.DB

	closers []func(context.Context) error
}

// Ping checks the backing database, if any.
func (s *Stores) Ping(ctx context.Context) error {
	if s.DB == nil {
		return nil
	}
	return s.DB.PingContext(ctx)
}

func (s *Stores) Close(ctx context.Context) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			logger.Warn("Error closing store", "error", err)
		}
	}
}

// OpenStores connects the ledger backend and the member directory named in
// cfg. now stamps the in-memory store and may be nil.
func OpenStores(ctx context.Context, cfg *config.Config, now func() time.Time) (*Stores, error) {
	s := &Stores{}

	switch cfg.Database.Backend {
	case "memory":
		logger.Warn("Using in-memory ledger; data is lost on exit")
		mem := memory.NewStore(now)
		s.Units, s.Ledger, s.Members = mem.ResourceRepository, mem.LedgerRepository, mem.MemberRepository
	default:
		logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database)
		db, err := postgres.Open(ctx, cfg.GetDatabaseConnectionString())
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		s.closers = append(s.closers, func(context.Context) error { return db.Close() })
		logger.Info("Database connection established")

		store := postgres.NewStore(db)
		if cfg.Database.Migrate {
			if err := store.Migrate(ctx); err != nil {
				s.Close(ctx)
				return nil, fmt.Errorf("migrate: %w", err)
			}
			logger.Info("Database schema is up to date")
		}
		s.DB = db
		s.Units, s.Ledger, s.Members = store.ResourceRepository, store.LedgerRepository, store.MemberRepository
	}

	if cfg.Identity.Backend == "mongo" {
		logger.Info("Using MongoDB member directory", "database", cfg.Identity.MongoDatabase)
		client, db, err := mongorepo.Connect(ctx, cfg.Identity.MongoURI, cfg.Identity.MongoDatabase)
		if err != nil {
			s.Close(ctx)
			return nil, fmt.Errorf("connect to mongo: %w", err)
		}
		s.closers = append(s.closers, client.Disconnect)
		s.Members = mongorepo.NewMemberRepository(db)
	}
	return s, nil
}

// Publisher returns a Kafka publisher when brokers are configured.
func Publisher(cfg *config.Config) events.Publisher {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Info("No Kafka brokers configured; ledger events are not published")
		return events.Nop()
	}
	logger.Info("Publishing ledger events", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	return events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
}

// IdempotencyStore returns the Redis-backed key store, or an in-process one
// when Redis is not configured.
func IdempotencyStore(ctx context.Context, cfg *config.Config) (idempotency.Store, func() error, error) {
	ttl := time.Duration(cfg.Redis.IdempotencyTTLHours) * time.Hour
	if cfg.Redis.Addr == "" {
		return idempotency.NewMemoryStore(ttl), func() error { return nil }, nil
	}
	client, err := idempotency.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	return idempotency.NewRedisStore(client, ttl), client.Close, nil
}

// EmailService returns the SendGrid sender, or a logging one without an
// API key.
func EmailService(cfg *config.Config) service.EmailService {
	if cfg.Email.SendGridAPIKey == "" {
		logger.Info("No SendGrid API key configured; emails are logged only")
		return service.NewLogEmailService()
	}
	return service.NewSendGridEmailService(cfg.Email.SendGridAPIKey, cfg.Email.From, cfg.Email.FromName)
}
