// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"codeberg.org/oliverandrich/qr-checkin/internal/config"
	"codeberg.org/oliverandrich/qr-checkin/internal/database"
	"codeberg.org/oliverandrich/qr-checkin/internal/server"
	"github.com/urfave/cli/v3"
	"github.com/vinovest/sqlx"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cmd := &cli.Command{
		Name:    "qr-checkin",
		Usage:   "Issue and verify QR check-in codes for events",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the check-in server",
				Flags:  config.Flags(),
				Action: server.Run,
			},
			migrateCommand(),
			staffCommand(),
			issueCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

// openDB configures logging and opens the database named by the flags.
func openDB(cmd *cli.Command) (*sqlx.DB, error) {
	server.SetupLogger(cmd.String("log-level"), cmd.String("log-format"))

	db, err := database.Open(cmd.String("database-dsn"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}
