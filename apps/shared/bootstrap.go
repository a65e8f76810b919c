package shared

import (
	"context"
	"log"
	"os"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	"github.com/chaima229/fraisScolaire-backend-sub000/core/invoice"
	emailsvc "github.com/chaima229/fraisScolaire-backend-sub000/services/email"
	locksvc "github.com/chaima229/fraisScolaire-backend-sub000/services/lock"
	webhooksvc "github.com/chaima229/fraisScolaire-backend-sub000/services/webhook"
	"github.com/chaima229/fraisScolaire-backend-sub000/storage/database"
	inmemdb "github.com/chaima229/fraisScolaire-backend-sub000/storage/database/inmem"
)

// Bootstrap connects to the configured backends and returns the dependencies of NewServices.
// The returned func releases them.
func Bootstrap(conf *core.Config, logger, dbLogger core.Logger) (Deps, func(), error) {
	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				logger.Error("releasing resources", err)
			}
		}
	}

	store, closeDB, err := openStore(conf, dbLogger)
	if err != nil {
		return Deps{}, cleanup, err
	}
	closers = append(closers, closeDB)

	var locker core.Locker
	if conf.Redis.Address != "" {
		client := locksvc.NewRedisClient(conf)
		closers = append(closers, client.Close)
		if err = client.Ping(context.Background()).Err(); err != nil {
			return Deps{}, cleanup, errors.Wrap(err, "connecting to redis")
		}
		locker = locksvc.NewRedisLocker(client, conf.Redis.LockTTL, conf.Redis.LockWait, logger)
	} else {
		logger.Warn("no redis configured, payment locks only hold within this process")
		locker = locksvc.NewMemoryLocker(conf.Redis.LockWait)
	}

	var mailer core.EmailService
	if conf.Debug {
		mailer = emailsvc.NewConsoleService(conf, logger, log.New(os.Stdout, "MAIL : ", log.LstdFlags))
	} else {
		mailer = emailsvc.NewSendgridService(conf, logger)
	}

	numbers, err := invoice.NewNumberNode(1)
	if err != nil {
		return Deps{}, cleanup, errors.Wrap(err, "creating invoice number generator")
	}

	return Deps{
		Conf:    conf,
		Logger:  logger,
		Store:   store,
		Locker:  locker,
		Mailer:  mailer,
		Sender:  webhooksvc.NewHTTPSender(conf, logger),
		Numbers: numbers,
	}, cleanup, nil
}

func openStore(conf *core.Config, logger core.Logger) (Store, func() error, error) {
	if conf.UseInMemoryStore() {
		logger.Warn("no database host configured, data is kept in memory")
		return NewMemoryStore(inmemdb.NewDB()), func() error { return nil }, nil
	}

	db, err := OpenDB(conf)
	if err != nil {
		return Store{}, func() error { return nil }, err
	}
	logger.Info("connected to database " + conf.Database.Name + " at " + conf.Database.Address())
	return NewPostgresStore(db), db.Close, nil
}

// OpenDB creates the database if needed, opens it and applies pending migrations.
func OpenDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
