// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"fmt"

	"codeberg.org/oliverandrich/qr-checkin/internal/config"
	"codeberg.org/oliverandrich/qr-checkin/internal/models"
	"codeberg.org/oliverandrich/qr-checkin/internal/repository"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/auth"
	"github.com/urfave/cli/v3"
)

func staffCommand() *cli.Command {
	return &cli.Command{
		Name:  "staff",
		Usage: "Manage staff accounts",
		Flags: config.DatabaseFlags(),
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a staff account that can register and check in participants",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "email", Required: true, Usage: "Sign-in email"},
					&cli.StringFlag{Name: "username", Usage: "Display name (defaults to the email local part)"},
					&cli.StringFlag{
						Name:     "password",
						Required: true,
						Usage:    "Initial password",
						Sources:  cli.EnvVars("STAFF_PASSWORD"),
					},
					&cli.StringFlag{
						Name:  "role",
						Value: models.RoleVolunteer,
						Usage: "Role (volunteer, admin)",
					},
				},
				Action: createStaff,
			},
		},
	}
}

func createStaff(ctx context.Context, cmd *cli.Command) error {
	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	staff, err := auth.NewService(repository.New(db)).CreateStaff(ctx, auth.CreateStaffParams{
		Email:    cmd.String("email"),
		Username: cmd.String("username"),
		Password: cmd.String("password"),
		Role:     cmd.String("role"),
	})
	if err != nil {
		return fmt.Errorf("failed to create staff: %w", err)
	}

	fmt.Fprintf(cmd.Root().Writer, "created %s %s (id %d)\n", staff.Role, staff.Email, staff.ID)
	return nil
}
