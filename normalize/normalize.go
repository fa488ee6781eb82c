// Package normalize implements the canonicalization functions of spec
// §4.10: prompt, location, date and language code normalization, applied
// before hashing (cache keys) and before planning (keyword router, LLM
// prompt construction).
//
// Every normalizer is a pure total function: defined for every input,
// nullable input returns nil, and normalize(normalize(x)) == normalize(x)
// (spec §8 invariant 7). Go has no null string, so "nullable" is modeled
// with *string: a nil pointer in, a nil pointer out.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// stopWords is the shared stop-word list used by prompt normalization and
// by fallback.Engine's keyword extraction (spec §4.9).
var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"to": {}, "of": {}, "in": {}, "on": {}, "at": {}, "for": {}, "and": {},
	"or": {}, "but": {}, "do": {}, "does": {}, "did": {}, "will": {}, "would": {},
	"can": {}, "could": {}, "should": {}, "i": {}, "you": {}, "it": {}, "me": {},
	"my": {}, "your": {}, "please": {}, "with": {}, "about": {}, "what": {},
	"how": {}, "this": {}, "that": {},
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// NormalizePrompt trims, collapses internal whitespace, lowercases, and
// strips stop words from s.
func NormalizePrompt(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	collapsed := whitespaceRE.ReplaceAllString(trimmed, " ")
	lower := strings.ToLower(collapsed)

	words := strings.Split(lower, " ")
	kept := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,!?;:'\"")
		if w == "" {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		kept = append(kept, w)
	}
	result := strings.Join(kept, " ")
	return &result
}

var locationPairRE = regexp.MustCompile(`^([A-Za-z .'\-]+?)\s*,\s*([A-Za-z .]+)$`)
var twoLetterRE = regexp.MustCompile(`^[A-Za-z]{2}$`)
var iataRE = regexp.MustCompile(`^[A-Za-z]{3}$`)

var countryNameToCode = map[string]string{
	"fr": "FR", "france": "FR",
	"gb": "GB", "uk": "GB", "united kingdom": "GB", "great britain": "GB",
	"us": "US", "usa": "US", "united states": "US", "united states of america": "US",
	"de": "DE", "germany": "DE",
	"jp": "JP", "japan": "JP",
	"it": "IT", "italy": "IT",
	"es": "ES", "spain": "ES",
	"ca": "CA", "canada": "CA",
	"au": "AU", "australia": "AU",
	"cn": "CN", "china": "CN",
}

// iataToCity maps well-known 3-letter airport codes to canonical "City,CC".
var iataToCity = map[string]string{
	"NCE": "Nice,FR",
	"CDG": "Paris,FR",
	"ORY": "Paris,FR",
	"LHR": "London,GB",
	"LGW": "London,GB",
	"JFK": "New York,US",
	"LAX": "Los Angeles,US",
	"NRT": "Tokyo,JP",
	"HND": "Tokyo,JP",
	"FCO": "Rome,IT",
	"BER": "Berlin,DE",
	"MAD": "Madrid,ES",
	"YYZ": "Toronto,CA",
	"SYD": "Sydney,AU",
	"PEK": "Beijing,CN",
}

// cityAliases maps a lowercase bare city name to its canonical "City,CC".
var cityAliases = map[string]string{
	"london":    "London,GB",
	"paris":     "Paris,FR",
	"nice":      "Nice,FR",
	"new york":  "New York,US",
	"nyc":       "New York,US",
	"tokyo":     "Tokyo,JP",
	"rome":      "Rome,IT",
	"berlin":    "Berlin,DE",
	"madrid":    "Madrid,ES",
	"toronto":   "Toronto,CA",
	"sydney":    "Sydney,AU",
	"beijing":   "Beijing,CN",
	"los angeles": "Los Angeles,US",
}

var titleCaser = cases.Title(language.English)

func titleCase(s string) string {
	return titleCaser.String(strings.ToLower(s))
}

// NormalizeLocation recognizes "City,CC", "City, Country", IATA 3-letter
// codes, and well-known city aliases, producing canonical "City,CC".
// Unrecognized input is returned trimmed but otherwise unchanged.
func NormalizeLocation(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)

	if m := locationPairRE.FindStringSubmatch(trimmed); m != nil {
		city := strings.TrimSpace(m[1])
		countryPart := strings.TrimSpace(m[2])
		var code string
		if twoLetterRE.MatchString(countryPart) {
			code = strings.ToUpper(countryPart)
		} else if mapped, ok := countryNameToCode[strings.ToLower(countryPart)]; ok {
			code = mapped
		} else {
			code = strings.ToUpper(countryPart)
		}
		result := titleCase(city) + "," + code
		return &result
	}

	if iataRE.MatchString(trimmed) {
		if mapped, ok := iataToCity[strings.ToUpper(trimmed)]; ok {
			return &mapped
		}
	}

	if mapped, ok := cityAliases[strings.ToLower(trimmed)]; ok {
		return &mapped
	}

	return &trimmed
}

// dateLayouts is the fixed list of formats NormalizeDate tries before
// falling through to araddon/dateparse's flexible parser.
var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"02/01/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2006/01/02",
}

// NormalizeDate parses a fixed list of formats (falling back to
// araddon/dateparse for anything looser) and outputs ISO YYYY-MM-DD.
// Unparsable input passes through unchanged (spec §4.10).
func NormalizeDate(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return &trimmed
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			iso := t.Format("2006-01-02")
			return &iso
		}
	}

	if t, err := dateparse.ParseAny(trimmed); err == nil {
		iso := t.Format("2006-01-02")
		return &iso
	}

	return &trimmed
}

var languageNameToISO = map[string]string{
	"english": "en", "french": "fr", "spanish": "es", "german": "de",
	"italian": "it", "japanese": "ja", "chinese": "zh", "portuguese": "pt",
	"russian": "ru", "korean": "ko", "dutch": "nl", "arabic": "ar",
}

// NormalizeLanguage outputs an ISO 639-1 lowercase two-letter code. Full
// English language names ("english", "french", ...) are mapped directly;
// everything else is parsed as a BCP-47 tag via golang.org/x/text/language
// and reduced to its base language subtag. Unparsable input passes through
// lowercased and unchanged otherwise.
func NormalizeLanguage(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.ToLower(strings.TrimSpace(*s))
	if trimmed == "" {
		return &trimmed
	}

	if code, ok := languageNameToISO[trimmed]; ok {
		return &code
	}

	if tag, err := language.Parse(trimmed); err == nil {
		base, _ := tag.Base()
		code := base.String()
		if code != "" {
			return &code
		}
	}

	return &trimmed
}

// Keywords extracts up to max lowercase, punctuation-stripped, deduplicated,
// stop-word-free tokens from prompt, in first-seen order. Used by the
// fallback engine for both match scoring and rule-learning keyword
// extraction (spec §4.9).
func Keywords(prompt string, max int) []string {
	lower := strings.ToLower(strings.TrimSpace(prompt))
	fields := strings.Fields(lower)

	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, max)
	for _, w := range fields {
		w = strings.Trim(w, ".,!?;:'\"()")
		if w == "" {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
		if len(out) >= max {
			break
		}
	}
	return out
}

// NormalizeInt64 parses s, with surrounding whitespace trimmed, as a
// base-10 int64.
func NormalizeInt64(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}
