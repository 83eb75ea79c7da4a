package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"wagateway/internal/migrations"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

func main() {
	dbPath := flag.String("db", "./wagateway.db", "Path to the database file")
	list := flag.Bool("list", false, "List embedded migrations and exit")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if *list {
		all, err := migrations.All()
		if err != nil {
			logger.Fatalf("Failed to read migrations: %v", err)
		}
		for _, m := range all {
			fmt.Printf("%03d  %s\n", m.Version, m.Name)
		}
		return
	}

	if _, err := os.Stat(*dbPath); os.IsNotExist(err) {
		logger.WithField("path", *dbPath).Info("Database file not found, it will be created")
	}

	db, err := sql.Open("sqlite3", "file:"+*dbPath+"?_foreign_keys=on")
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	applied, err := migrations.Apply(context.Background(), db)
	if err != nil {
		logger.WithField("applied", applied).Fatalf("Migration failed: %v", err)
	}

	if len(applied) == 0 {
		logger.Info("Schema is up to date, nothing to apply")
		return
	}
	logger.WithField("versions", applied).Info("Migrations applied successfully")
}
