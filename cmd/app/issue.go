// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"codeberg.org/oliverandrich/qr-checkin/internal/config"
	"codeberg.org/oliverandrich/qr-checkin/internal/i18n"
	"codeberg.org/oliverandrich/qr-checkin/internal/metrics"
	"codeberg.org/oliverandrich/qr-checkin/internal/repository"
	"codeberg.org/oliverandrich/qr-checkin/internal/server"
	"codeberg.org/oliverandrich/qr-checkin/internal/services/issuance"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"
)

func issueCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{Name: "owner-id", Usage: "Owner identifier (defaults to a new UUID)"},
		&cli.StringFlag{Name: "name", Required: true, Usage: "Owner name mixed into the token and shown in the email"},
		&cli.StringFlag{Name: "recipient", Usage: "Email address to deliver the QR code to"},
		&cli.StringFlag{Name: "out", Usage: "Write the QR code PNG to this file"},
	}
	flags = append(flags, config.DatabaseFlags()...)
	flags = append(flags, config.IssuanceFlags()...)

	return &cli.Command{
		Name:   "issue",
		Usage:  "Issue a token without registering a participant",
		Flags:  flags,
		Action: issueToken,
	}
}

func issueToken(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if cmd.String("recipient") == "" && cmd.String("out") == "" {
		return errors.New("either --recipient or --out is required")
	}

	db, err := openDB(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := i18n.Init(); err != nil {
		return fmt.Errorf("failed to init i18n: %w", err)
	}
	sender, err := server.NewSender(&cfg.SMTP)
	if err != nil {
		return fmt.Errorf("failed to configure email: %w", err)
	}

	ownerID := cmd.String("owner-id")
	if ownerID == "" {
		ownerID = uuid.NewString()
	}
	req := issuance.Request{
		OwnerID:    ownerID,
		OwnerLabel: cmd.String("name"),
		Recipient:  cmd.String("recipient"),
	}

	coordinator := server.NewCoordinator(cfg, repository.New(db), sender, metrics.NoOp{})

	var iss *issuance.Issuance
	if req.Recipient == "" {
		iss, err = coordinator.Mint(ctx, repository.New(db), req)
	} else {
		iss, err = coordinator.Issue(ctx, req)
	}
	if iss == nil {
		return err
	}
	if err != nil {
		slog.Warn("token_issued_not_delivered", "owner_id", ownerID, "error", err)
	}

	if out := cmd.String("out"); out != "" {
		if writeErr := os.WriteFile(out, iss.Image, 0o600); writeErr != nil {
			return fmt.Errorf("failed to write QR code: %w", writeErr)
		}
	}

	fmt.Fprintf(cmd.Root().Writer, "owner %s token %s\n", ownerID, iss.Token.TokenValue)
	return err
}
