package normalizer

import (
	"regexp"
	"strings"
	"time"

	"github.com/lk2023060901/llm-field-extractor/internal/extraction/types"
)

// Options for Normalize.
type Options struct {
	DateFields   []string
	DateFormat   string // dd/mm/YYYY style pattern
	UnknownValue string
}

// OptionsFrom reads normalizer options off a run config.
func OptionsFrom(cfg types.RunConfig) Options {
	return Options{
		DateFields:   cfg.DateFields,
		DateFormat:   cfg.DateFormat,
		UnknownValue: cfg.UnknownValue,
	}
}

// inputLayouts are tried in order after the target layout.
var inputLayouts = []string{
	"2/1/2006",
	"1/2/2006",
	"2006-1-2",
	"2-1-2006",
	"1-2-2006",
	"2.1.2006",
	"1.2.2006",
	"January 2, 2006",
	"2 January 2006",
	"2 January, 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"2 Jan, 2006",
	"Jan 2 2006",
	"January 2 2006",
	"2006/1/2",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

var (
	ordinalSuffix = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
	ofWord        = regexp.MustCompile(`(?i)\s+of\s+`)
	spaces        = regexp.MustCompile(`\s+`)

	patternTokens = strings.NewReplacer(
		"YYYY", "2006", "yyyy", "2006",
		"MMMM", "January", "MMM", "Jan",
		"YY", "06", "yy", "06",
		"DD", "02", "dd", "02",
		"MM", "01", "mm", "01",
	)
)

// Layout converts a dd/mm/YYYY style pattern to a Go time layout.
func Layout(pattern string) string {
	return patternTokens.Replace(pattern)
}

// ParseDate parses value with the target layout first, then the known layouts.
func ParseDate(value, targetLayout string) (time.Time, bool) {
	s := cleanDate(value)
	if s == "" {
		return time.Time{}, false
	}
	layouts := inputLayouts
	if targetLayout != "" {
		layouts = append([]string{targetLayout}, inputLayouts...)
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatDate reformats value to pattern. ok is false when value is not a recognizable date.
func FormatDate(value, pattern string) (string, bool) {
	layout := Layout(pattern)
	t, ok := ParseDate(value, layout)
	if !ok {
		return value, false
	}
	return t.Format(layout), true
}

func cleanDate(value string) string {
	s := strings.TrimSpace(value)
	s = ordinalSuffix.ReplaceAllString(s, "$1")
	s = ofWord.ReplaceAllString(s, " ")
	return spaces.ReplaceAllString(s, " ")
}

// Normalize turns a merged result into the final record. Every requested field
// gets a string value; missing values become the unknown sentinel. Date fields
// are reformatted, and kept as-is with a warning when they cannot be parsed.
// Normalize is pure and idempotent through ToMerged.
func Normalize(merged *types.MergedResult, opts Options) *types.Result {
	if opts.UnknownValue == "" {
		opts.UnknownValue = types.DefaultUnknownValue
	}
	if opts.DateFormat == "" {
		opts.DateFormat = types.DefaultDateFormat
	}
	dateFields := make(map[string]bool, len(opts.DateFields))
	for _, f := range opts.DateFields {
		dateFields[f] = true
	}

	result := &types.Result{
		Order:      append([]string(nil), merged.Order...),
		Values:     make(map[string]string, len(merged.Order)),
		Provenance: make(map[string]types.Provenance, len(merged.Order)),
		Failures:   append([]types.Failure(nil), merged.Failures...),
	}

	for _, field := range merged.Order {
		mf, ok := merged.Fields[field]
		prov := mf.Provenance
		prov.DateParseFailed = false
		if prov.ContributingChunks == nil {
			prov.ContributingChunks = []int{}
		}

		value := strings.TrimSpace(types.Stringify(mf.Value))
		if !ok || mf.Unknown || types.IsUnknown(value, opts.UnknownValue) {
			if prov.Strategy == "" {
				prov.Strategy = types.StrategyUnknown
			}
			result.Values[field] = opts.UnknownValue
			result.Provenance[field] = prov
			continue
		}

		if dateFields[field] {
			formatted, parsed := FormatDate(value, opts.DateFormat)
			if parsed {
				value = formatted
			} else {
				prov.DateParseFailed = true
				result.Warnings = append(result.Warnings, types.DateParseWarning{Field: field, Value: value})
			}
		}

		result.Values[field] = value
		result.Provenance[field] = prov
	}
	return result
}

// ToMerged turns a final record back into merger output so it can be normalized again.
func ToMerged(r *types.Result, unknown string) *types.MergedResult {
	if unknown == "" {
		unknown = types.DefaultUnknownValue
	}
	merged := &types.MergedResult{
		Order:    append([]string(nil), r.Order...),
		Fields:   make(map[string]types.MergedField, len(r.Order)),
		Failures: append([]types.Failure(nil), r.Failures...),
	}
	for _, f := range r.Order {
		v := r.Values[f]
		merged.Fields[f] = types.MergedField{
			Value:      v,
			Unknown:    types.IsUnknown(v, unknown),
			Provenance: r.Provenance[f],
		}
	}
	return merged
}
