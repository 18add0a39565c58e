// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package templates

import (
	"context"
	"strings"

	"codeberg.org/oliverandrich/qr-checkin/internal/i18n"
)

// CID returns the src reference for an inline attachment.
func CID(contentID string) string {
	return "cid:" + contentID
}

// QRCodeEmailText renders the plain-text part of the QR code email.
func QRCodeEmailText(ctx context.Context, data map[string]any) string {
	parts := []string{
		i18n.TData(ctx, "email_qr_greeting", data),
		i18n.TData(ctx, "email_qr_intro", data),
		i18n.TData(ctx, "email_qr_details", data),
		i18n.T(ctx, "email_qr_single_use"),
		i18n.T(ctx, "email_qr_closing"),
	}
	return strings.Join(parts, "\n\n") + "\n"
}
