package merger

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/lk2023060901/llm-field-extractor/internal/extraction/types"
)

// Options controls how conflicting values are resolved.
type Options struct {
	UnknownValue  string
	ListFields    []string
	ListSeparator string
}

// OptionsFrom reads merge options off a run config.
func OptionsFrom(cfg types.RunConfig) Options {
	return Options{
		UnknownValue:  cfg.UnknownValue,
		ListFields:    cfg.ListFields,
		ListSeparator: cfg.ListSeparator,
	}
}

type candidate struct {
	chunk int
	value string
}

// Merge combines per-chunk outcomes into one value per field. The result does
// not depend on the order of outcomes. Failed chunks contribute nothing and are
// listed in MergedResult.Failures.
func Merge(outcomes []types.Outcome, fields []string, opts Options) *types.MergedResult {
	if opts.UnknownValue == "" {
		opts.UnknownValue = types.DefaultUnknownValue
	}
	if opts.ListSeparator == "" {
		opts.ListSeparator = types.DefaultListSeparator
	}
	listFields := make(map[string]bool, len(opts.ListFields))
	for _, f := range opts.ListFields {
		listFields[f] = true
	}

	results := make([]*types.PartialResult, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Result != nil {
			results = append(results, o.Result)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].ChunkIndex < results[j].ChunkIndex
	})

	merged := &types.MergedResult{
		Order:    append([]string(nil), fields...),
		Fields:   make(map[string]types.MergedField, len(fields)),
		Failures: types.FailuresOf(outcomes),
	}

	for _, f := range fields {
		var cands []candidate
		for _, r := range results {
			v, ok := r.Fields[f]
			if !ok {
				continue
			}
			for _, s := range values(v, listFields[f]) {
				if types.IsUnknown(s, opts.UnknownValue) {
					continue
				}
				cands = append(cands, candidate{chunk: r.ChunkIndex, value: strings.TrimSpace(s)})
			}
		}

		if listFields[f] {
			merged.Fields[f] = mergeList(cands, opts)
		} else {
			merged.Fields[f] = mergeScalar(cands, opts)
		}
	}
	return merged
}

// values flattens an oracle value into candidate strings. List fields split
// arrays and JSON-encoded arrays into one candidate per item.
func values(v any, list bool) []string {
	if !list {
		return []string{types.Stringify(v)}
	}
	switch val := v.(type) {
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, types.Stringify(item))
		}
		return out
	case []string:
		return val
	case string:
		s := strings.TrimSpace(val)
		if strings.HasPrefix(s, "[") {
			var items []any
			if err := json.Unmarshal([]byte(s), &items); err == nil {
				return values(items, true)
			}
		}
		return []string{val}
	default:
		return []string{types.Stringify(v)}
	}
}

func unknownField(opts Options) types.MergedField {
	return types.MergedField{
		Value:   opts.UnknownValue,
		Unknown: true,
		Provenance: types.Provenance{
			Strategy:           types.StrategyUnknown,
			ContributingChunks: []int{},
		},
	}
}

func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func mergeScalar(cands []candidate, opts Options) types.MergedField {
	if len(cands) == 0 {
		return unknownField(opts)
	}

	chosen := cands[0]
	contributing := []int{}
	var alternatives []types.Alternative
	agree := true
	for _, c := range cands {
		if fold(c.value) == fold(chosen.value) {
			contributing = appendChunk(contributing, c.chunk)
			continue
		}
		agree = false
		alternatives = append(alternatives, types.Alternative{ChunkIndex: c.chunk, Value: c.value})
	}

	strategy := types.StrategyAgreement
	if !agree {
		strategy = types.StrategyEarliestChunk
	}
	return types.MergedField{
		Value: chosen.value,
		Provenance: types.Provenance{
			Strategy:           strategy,
			ContributingChunks: contributing,
			Alternatives:       alternatives,
		},
	}
}

func mergeList(cands []candidate, opts Options) types.MergedField {
	if len(cands) == 0 {
		return unknownField(opts)
	}

	seen := make(map[string]bool, len(cands))
	var items []string
	contributing := []int{}
	var duplicates []types.Alternative
	for _, c := range cands {
		key := fold(c.value)
		if seen[key] {
			duplicates = append(duplicates, types.Alternative{ChunkIndex: c.chunk, Value: c.value})
			contributing = appendChunk(contributing, c.chunk)
			continue
		}
		seen[key] = true
		items = append(items, c.value)
		contributing = appendChunk(contributing, c.chunk)
	}

	strategy := types.StrategyConcatenate
	if len(items) == 1 {
		strategy = types.StrategyAgreement
	}
	return types.MergedField{
		Value: strings.Join(items, opts.ListSeparator),
		Provenance: types.Provenance{
			Strategy:           strategy,
			ContributingChunks: contributing,
			Alternatives:       duplicates,
		},
	}
}

// appendChunk adds idx unless it is already the last element. Candidates arrive
// in chunk order, so this keeps the list sorted and unique.
func appendChunk(list []int, idx int) []int {
	if n := len(list); n > 0 && list[n-1] == idx {
		return list
	}
	return append(list, idx)
}
