// Package lang maps the many ways a language gets named (ISO codes, English
// names, French names as shown in the chat client, language model labels) to
// ISO-639-1 codes.
package lang

import "strings"

var names = map[string]string{
	"english":    "en",
	"anglais":    "en",
	"french":     "fr",
	"français":   "fr",
	"francais":   "fr",
	"spanish":    "es",
	"espagnol":   "es",
	"español":    "es",
	"german":     "de",
	"allemand":   "de",
	"italian":    "it",
	"italien":    "it",
	"portuguese": "pt",
	"portugais":  "pt",
	"dutch":      "nl",
	"polish":     "pl",
	"russian":    "ru",
	"russe":      "ru",
	"japanese":   "ja",
	"korean":     "ko",
	"chinese":    "zh",
	"arabic":     "ar",
	"arabe":      "ar",
	"hindi":      "hi",
	"turkish":    "tr",
}

var english = map[string]string{
	"en": "English",
	"fr": "French",
	"es": "Spanish",
	"de": "German",
	"it": "Italian",
	"pt": "Portuguese",
	"nl": "Dutch",
	"pl": "Polish",
	"ru": "Russian",
	"ja": "Japanese",
	"ko": "Korean",
	"zh": "Chinese",
	"ar": "Arabic",
	"hi": "Hindi",
	"tr": "Turkish",
}

// Normalize converts a language name or code to its ISO-639-1 code. Region
// suffixes ("fr-FR", "en_US") are dropped. Unknown names are returned
// lower-cased so callers can still use them as map keys.
func Normalize(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	if s == "" {
		return ""
	}
	if i := strings.IndexAny(s, "-_"); i == 2 {
		s = s[:2]
	}
	if len(s) == 2 {
		return s
	}
	if code, ok := names[s]; ok {
		return code
	}
	return s
}

// Name returns the English name of a language, accepting anything Normalize
// accepts. Unknown languages are returned unchanged.
func Name(language string) string {
	if n, ok := english[Normalize(language)]; ok {
		return n
	}
	return language
}
