package main

import (
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"

	"clinic/backend/internal/config"
	"clinic/backend/internal/directory"
	"clinic/backend/internal/mail"
	"clinic/backend/internal/store"
	"clinic/backend/internal/store/memory"
	"clinic/backend/internal/store/postgres"
)

type repository interface {
	store.ReservationRepository
	store.DoctorRepository
	store.NurseRepository
	store.SettingsRepository
	store.ScheduleRepository
	store.ReminderRepository
	store.TemplateRepository
}

// openStore returns the configured repository and a close func. The memory
// driver keeps state only for the life of the process.
func openStore(cfg config.Config, log *slog.Logger) (repository, func(), error) {
	if cfg.StorageDriver == config.StorageMemory {
		log.Warn("using in-memory storage; data is lost on exit")
		return memory.New(), func() {}, nil
	}

	db, err := openDB(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := postgres.Close(db); err != nil {
			log.Warn("database close failed", slog.Any("err", err))
		}
	}
	return postgres.New(db), closeFn, nil
}

func openDB(cfg config.Config, log *slog.Logger) (*bun.DB, error) {
	log.Info("connecting to database", databaseLogArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		args := append([]any{slog.Any("err", err)}, databaseLogArgs(cfg.DatabaseURL)...)
		log.Error("database connection failed", args...)
		return nil, fmt.Errorf("open database: %w", err)
	}
	return db, nil
}

func newResolver(cfg config.Config, log *slog.Logger) (directory.Resolver, error) {
	if cfg.DirectoryMode == config.DirectoryLive {
		live, err := directory.NewHTTP(directory.HTTPConfig{
			BaseURL: cfg.DirectoryBaseURL,
			Token:   cfg.DirectoryToken,
			Timeout: cfg.DirectoryTimeout,
		})
		if err != nil {
			return nil, err
		}
		log.Info("employee directory: live", slog.String("base_url", cfg.DirectoryBaseURL))
		return directory.NewCached(live, cfg.DirectoryCacheSize, cfg.DirectoryCacheTTL), nil
	}

	if cfg.DirectoryFile == "" {
		log.Warn("employee directory: static roster is empty; every booking will fail employee lookup")
		return directory.NewStatic(nil), nil
	}
	roster, err := directory.LoadStatic(cfg.DirectoryFile)
	if err != nil {
		return nil, err
	}
	log.Info("employee directory: static", slog.String("file", cfg.DirectoryFile))
	return roster, nil
}

func newSender(cfg config.Config, log *slog.Logger) (mail.Sender, error) {
	if cfg.MailMode == config.MailSMTP {
		sender, err := mail.NewSMTPSender(mail.SMTPConfig{
			Addr:     cfg.SMTPAddr,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
		if err != nil {
			return nil, err
		}
		return sender, nil
	}
	return mail.NewLogSender(log), nil
}
