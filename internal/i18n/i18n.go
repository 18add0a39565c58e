// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package i18n

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed translations/*.toml
var translationFS embed.FS

var bundle *i18n.Bundle

// Supported lists the languages with a translation file, default first.
var Supported = []language.Tag{
	language.English,
	language.German,
}

var matcher = language.NewMatcher(Supported)

type contextKey struct{}

// locale is the per-request translation state.
type locale struct {
	localizer *i18n.Localizer
	code      string
}

// Init loads the embedded translation files. It must run before any
// request is translated.
func Init() error {
	b := i18n.NewBundle(Supported[0])
	b.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := fs.Glob(translationFS, "translations/active.*.toml")
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no translation files embedded")
	}
	for _, file := range files {
		if _, err := b.LoadMessageFileFS(translationFS, file); err != nil {
			return fmt.Errorf("loading %s: %w", file, err)
		}
	}

	bundle = b
	return nil
}

// WithLocale returns ctx translating into lang. Regions are dropped, so
// de-AT and de-DE share the German messages.
func WithLocale(ctx context.Context, lang language.Tag) context.Context {
	base, _ := lang.Base()
	code := base.String()
	return context.WithValue(ctx, contextKey{}, locale{
		code:      code,
		localizer: i18n.NewLocalizer(bundle, code),
	})
}

// GetLocale returns the language code carried by ctx, "en" by default.
func GetLocale(ctx context.Context) string {
	if l, ok := ctx.Value(contextKey{}).(locale); ok {
		return l.code
	}
	return Supported[0].String()
}

// T translates a message by ID.
func T(ctx context.Context, messageID string) string {
	return TData(ctx, messageID, nil)
}

// TData translates a message with template data. Unknown IDs are
// returned unchanged.
func TData(ctx context.Context, messageID string, data map[string]any) string {
	localizer := localizerFor(ctx)
	if localizer == nil {
		return messageID
	}
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID
	}
	return msg
}

// MatchLanguage picks the best supported language for an
// Accept-Language header.
func MatchLanguage(acceptLanguage string) language.Tag {
	tag, _ := language.MatchStrings(matcher, acceptLanguage)
	return tag
}

func localizerFor(ctx context.Context) *i18n.Localizer {
	if l, ok := ctx.Value(contextKey{}).(locale); ok && l.localizer != nil {
		return l.localizer
	}
	if bundle == nil {
		return nil
	}
	return i18n.NewLocalizer(bundle, Supported[0].String())
}
