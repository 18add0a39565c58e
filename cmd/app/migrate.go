// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"database/sql"
	"fmt"

	"codeberg.org/oliverandrich/qr-checkin/internal/config"
	"codeberg.org/oliverandrich/qr-checkin/internal/database"
	"github.com/urfave/cli/v3"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the database schema",
		Flags: config.DatabaseFlags(),
		Commands: []*cli.Command{
			{Name: "up", Usage: "Apply pending migrations", Action: migrateAction(database.RunMigrations)},
			{Name: "down", Usage: "Roll back the last migration", Action: migrateAction(database.MigrateDown)},
			{Name: "reset", Usage: "Roll back all migrations", Action: migrateAction(database.MigrateReset)},
			{
				Name:  "version",
				Usage: "Print the current schema version",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					db, err := openDB(cmd)
					if err != nil {
						return err
					}
					defer db.Close()

					version, err := database.MigrationVersion(ctx, db.DB)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.Root().Writer, version)
					return nil
				},
			},
		},
	}
}

func migrateAction(run func(context.Context, *sql.DB) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		db, err := openDB(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := run(ctx, db.DB); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		version, err := database.MigrationVersion(ctx, db.DB)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.Root().Writer, "schema version %d\n", version)
		return nil
	}
}
