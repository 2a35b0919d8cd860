package middleware

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"fluxstudio/internal/i18n"
)

type localeContextKey struct{}

// LocaleKey stores the negotiated language.Tag in the request context.
var LocaleKey = localeContextKey{}

// I18N negotiates the response locale. Precedence: ?lang= query parameter,
// X-Locale header, Accept-Language header, then defaultLocale.
func I18N(defaultLocale string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tag := detectLocale(r, defaultLocale)
			w.Header().Set("Content-Language", tag.String())
			ctx := context.WithValue(r.Context(), LocaleKey, tag)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func detectLocale(r *http.Request, fallback string) language.Tag {
	for _, pref := range []string{
		r.URL.Query().Get("lang"),
		r.Header.Get("X-Locale"),
		r.Header.Get("Accept-Language"),
	} {
		if strings.TrimSpace(pref) != "" {
			return i18n.Match(pref)
		}
	}
	return i18n.Match(fallback)
}

// LocaleFromContext returns the negotiated locale, English when unset.
func LocaleFromContext(ctx context.Context) language.Tag {
	if v, ok := ctx.Value(LocaleKey).(language.Tag); ok {
		return v
	}
	return language.English
}

// PrinterFromContext returns a message printer for the negotiated locale.
func PrinterFromContext(ctx context.Context) *message.Printer {
	return i18n.Printer(LocaleFromContext(ctx))
}
