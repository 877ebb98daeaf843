// Package i18n localizes the small set of user-facing strings the API and
// CLI emit. JSON payload keys are never translated.
package i18n

import (
	"context"
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultLang is the fallback language
var DefaultLang = language.English

// SupportedLangs are the languages we support
var SupportedLangs = []language.Tag{
	language.English,
	language.German,
}

var matcher = language.NewMatcher(SupportedLangs)

// Message keys shared by the API and CLI.
const (
	MsgControlPlaneDown  = "Control plane disconnected"
	MsgAuthRequired      = "Authentication required"
	MsgInvalidCreds      = "Invalid API key or secret"
	MsgInvalidBody       = "Invalid request body: %v"
	MsgSettingsLoad      = "Failed to load settings: %v"
	MsgSettingsSave      = "Failed to save settings: %v"
	MsgConnectFailed     = "Failed to connect to control plane: %v"
	MsgIsDaemonRunning   = "Is the control plane running? Start it with: rnsgate ctl"
	MsgUnknownSubcommand = "Unknown subcommand: %s"
	MsgTooManyAttempts   = "Too many failed attempts, retry in %d seconds"
)

var german = map[string]string{
	MsgControlPlaneDown:  "Steuerungsebene nicht verbunden",
	MsgAuthRequired:      "Authentifizierung erforderlich",
	MsgInvalidCreds:      "Ungültiger API-Schlüssel oder ungültiges Geheimnis",
	MsgInvalidBody:       "Ungültiger Anfragetext: %v",
	MsgSettingsLoad:      "Einstellungen konnten nicht geladen werden: %v",
	MsgSettingsSave:      "Einstellungen konnten nicht gespeichert werden: %v",
	MsgConnectFailed:     "Verbindung zur Steuerungsebene fehlgeschlagen: %v",
	MsgIsDaemonRunning:   "Läuft die Steuerungsebene? Starten mit: rnsgate ctl",
	MsgUnknownSubcommand: "Unbekannter Unterbefehl: %s",
	MsgTooManyAttempts:   "Zu viele Fehlversuche, erneut versuchen in %d Sekunden",
}

func init() {
	for key, msg := range german {
		_ = message.SetString(language.German, key, msg)
	}
}

type contextKey struct{}

var printerKey = contextKey{}

// MatchLanguage returns the best matching language for an Accept-Language value
func MatchLanguage(acceptLang string) language.Tag {
	tags, _, _ := language.ParseAcceptLanguage(acceptLang)
	tag, _, _ := matcher.Match(tags...)
	base, _ := tag.Base()
	return language.Make(base.String())
}

// NewPrinter returns a message printer for the given language
func NewPrinter(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag)
}

// WithPrinter returns a new context with the printer injected
func WithPrinter(ctx context.Context, p *message.Printer) context.Context {
	return context.WithValue(ctx, printerKey, p)
}

// GetPrinter returns the printer from the context, or a default one
func GetPrinter(ctx context.Context) *message.Printer {
	p, ok := ctx.Value(printerKey).(*message.Printer)
	if !ok {
		return message.NewPrinter(DefaultLang)
	}
	return p
}

// NewCLIPrinter returns a printer for the locale in LC_ALL or LANG.
func NewCLIPrinter() *message.Printer {
	lang := os.Getenv("LC_ALL")
	if lang == "" {
		lang = os.Getenv("LANG")
	}
	if lang == "" || lang == "C" || lang == "POSIX" {
		return message.NewPrinter(DefaultLang)
	}

	// en_US.UTF-8 -> en-US
	if i := strings.Index(lang, "."); i != -1 {
		lang = lang[:i]
	}
	lang = strings.ReplaceAll(lang, "_", "-")

	return message.NewPrinter(MatchLanguage(lang))
}
