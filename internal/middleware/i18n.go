package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeContextKey struct{}
type countryContextKey struct{}

var (
	LocaleKey  = localeContextKey{}
	CountryKey = countryContextKey{}
)

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// Locales negotiates the prompt locale for a request against the locales the
// backend can generate copy in. The first supported locale is the fallback.
type Locales struct {
	tags    []language.Tag
	matcher language.Matcher
}

// NewLocales builds a negotiator. Unparseable entries are skipped; with no
// valid entry the negotiator only knows English.
func NewLocales(supported ...string) *Locales {
	var tags []language.Tag
	for _, s := range supported {
		tag, err := language.Parse(strings.TrimSpace(s))
		if err != nil {
			continue
		}
		base, _ := tag.Base()
		tags = append(tags, language.Make(base.String()))
	}
	if len(tags) == 0 {
		tags = []language.Tag{language.English}
	}
	return &Locales{tags: tags, matcher: language.NewMatcher(tags)}
}

// Default returns the fallback locale.
func (l *Locales) Default() string {
	return l.tags[0].String()
}

// Match maps any BCP 47 tag onto the closest supported locale. ok is false
// when nothing but the fallback matches.
func (l *Locales) Match(raw string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", false
	}
	tag, err := language.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return l.pick(tag)
}

// MatchAccept applies an Accept-Language header, honouring q-values.
func (l *Locales) MatchAccept(header string) (string, bool) {
	if strings.TrimSpace(header) == "" {
		return "", false
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return "", false
	}
	return l.pick(tags...)
}

// MatchCountry picks the supported locale most likely spoken in an ISO
// country, e.g. ID -> id.
func (l *Locales) MatchCountry(country string) (string, bool) {
	if strings.TrimSpace(country) == "" {
		return "", false
	}
	region, err := language.ParseRegion(strings.TrimSpace(country))
	if err != nil {
		return "", false
	}
	tag, err := language.Compose(language.Und, region)
	if err != nil {
		return "", false
	}
	return l.pick(tag)
}

func (l *Locales) pick(tags ...language.Tag) (string, bool) {
	_, idx, conf := l.matcher.Match(tags...)
	if conf == language.No {
		return "", false
	}
	return l.tags[idx].String(), true
}

// Negotiate resolves the request locale: X-Locale, then Accept-Language,
// then the language of the caller's country, then the fallback.
func (l *Locales) Negotiate(r *http.Request, country string) string {
	if v, ok := l.Match(r.Header.Get("X-Locale")); ok {
		return v
	}
	if v, ok := l.MatchAccept(r.Header.Get("Accept-Language")); ok {
		return v
	}
	if v, ok := l.MatchCountry(country); ok {
		return v
	}
	return l.Default()
}

// baseLanguage reduces a tag to its language subtag, e.g. id-ID -> id.
func baseLanguage(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	tag, err := language.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	base, _ := tag.Base()
	return base.String()
}

// I18N stores the negotiated locale and the caller's country in the request
// context.
func I18N(locales *Locales, lookup CountryLookup) func(http.Handler) http.Handler {
	if locales == nil {
		locales = NewLocales()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			country := ResolveCountry(r, lookup)
			ctx := context.WithValue(r.Context(), LocaleKey, locales.Negotiate(r, country))
			if country != "" {
				ctx = context.WithValue(ctx, CountryKey, country)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP returns the best-effort client IP address for the request.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		first, _, _ := strings.Cut(xf, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// LocaleFromContext returns the negotiated locale, or "" outside I18N.
func LocaleFromContext(ctx context.Context) string {
	v, _ := ctx.Value(LocaleKey).(string)
	return v
}

// CountryFromContext returns the ISO country code stored in the request context.
func CountryFromContext(ctx context.Context) string {
	v, _ := ctx.Value(CountryKey).(string)
	return v
}

var countryHeaders = []string{"X-Country-Code", "CF-IPCountry", "X-Appengine-Country"}

// ResolveCountry resolves a best-effort ISO country code from proxy headers,
// the region of the requested locale, and finally the GeoIP lookup.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	if r == nil {
		return ""
	}
	for _, key := range countryHeaders {
		if val := strings.TrimSpace(r.Header.Get(key)); len(val) == 2 {
			return strings.ToUpper(val)
		}
	}
	if region := tagRegion(r.Header.Get("X-Locale")); region != "" {
		return region
	}
	if region := tagRegion(r.Header.Get("Accept-Language")); region != "" {
		return region
	}
	if lookup == nil {
		return ""
	}
	ip := ClientIP(r)
	if ip == "" {
		return ""
	}
	country, err := lookup(ip)
	if err != nil {
		return ""
	}
	return strings.ToUpper(country)
}

// tagRegion returns the explicit region of the first tag in a locale or
// Accept-Language value.
func tagRegion(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(value)
	if err != nil || len(tags) == 0 {
		return ""
	}
	if region, conf := tags[0].Region(); conf == language.Exact {
		return region.String()
	}
	return ""
}
