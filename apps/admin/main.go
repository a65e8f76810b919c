package main

import (
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/chaima229/fraisScolaire-backend-sub000/apps/shared"
	"github.com/chaima229/fraisScolaire-backend-sub000/core"
	logsvc "github.com/chaima229/fraisScolaire-backend-sub000/services/logger"
	"github.com/chaima229/fraisScolaire-backend-sub000/storage/database"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	validate, _ := shared.NewValidator()

	var cleanups []func()
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	var svcs *shared.Services
	cli := commandLine{
		conf:     conf,
		logger:   logger,
		out:      os.Stdout,
		validate: validate,
		// goose runs the migrations itself: no auto-migrate here
		openDB: func() (*sqlx.DB, error) {
			if err := database.CreateIfNotExist(conf); err != nil {
				return nil, err
			}
			db, err := database.Open(conf)
			if err != nil {
				return nil, err
			}
			cleanups = append(cleanups, func() { _ = db.Close() })
			return db, nil
		},
		services: func() (*shared.Services, error) {
			if svcs != nil {
				return svcs, nil
			}
			deps, cleanup, err := shared.Bootstrap(conf, logger, logger)
			cleanups = append(cleanups, cleanup)
			if err != nil {
				return nil, err
			}
			svcs = shared.NewServices(deps)
			return svcs, nil
		},
	}

	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
		os.Exit(1)
	}
}
