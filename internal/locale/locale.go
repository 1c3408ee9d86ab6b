// Package locale matches user language preferences against the languages
// promo copy can be written in.
package locale

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Default is used when nothing in the request matches.
const Default = "en"

// Supported lists the language codes accepted for generated copy.
var Supported = []string{"en", "id", "zh", "ja", "ko", "es", "fr", "de"}

var (
	tags = []language.Tag{
		language.English,
		language.Indonesian,
		language.Chinese,
		language.Japanese,
		language.Korean,
		language.Spanish,
		language.French,
		language.German,
	}
	matcher = language.NewMatcher(tags)

	countryLanguages = map[string]string{
		"ID": "id",
		"CN": "zh", "TW": "zh", "HK": "zh", "SG": "zh",
		"JP": "ja",
		"KR": "ko",
		"ES": "es", "MX": "es", "AR": "es", "CO": "es", "CL": "es", "PE": "es",
		"FR": "fr", "BE": "fr", "LU": "fr",
		"DE": "de", "AT": "de", "CH": "de",
	}

	names = map[string]string{
		"en": "English", "id": "Indonesian", "zh": "Chinese", "ja": "Japanese",
		"ko": "Korean", "es": "Spanish", "fr": "French", "de": "German",
	}
)

// IsSupported reports whether code is one of Supported.
func IsSupported(code string) bool {
	_, ok := names[code]
	return ok
}

// Match resolves an Accept-Language style header or a single tag to a
// supported code. The boolean is false when nothing matched with confidence.
func Match(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	prefs, _, err := language.ParseAcceptLanguage(raw)
	if err != nil || len(prefs) == 0 {
		return "", false
	}
	_, idx, conf := matcher.Match(prefs...)
	if conf == language.No {
		return "", false
	}
	return Supported[idx], true
}

// ForCountry maps an ISO country code to its promo language, falling back to English.
func ForCountry(country string) string {
	if lang, ok := countryLanguages[strings.ToUpper(strings.TrimSpace(country))]; ok {
		return lang
	}
	return Default
}

// Name returns the English name of a supported language code.
func Name(code string) string {
	if n, ok := names[code]; ok {
		return n
	}
	return names[Default]
}

// Title title-cases s using the rules of the given language.
func Title(code, s string) string {
	tag := language.English
	for i, c := range Supported {
		if c == code {
			tag = tags[i]
			break
		}
	}
	return cases.Title(tag).String(s)
}
