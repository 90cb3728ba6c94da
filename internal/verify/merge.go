package verify

import (
	"encoding/json"
	"time"

	"github.com/longbox-labs/entity-verify/internal/model"
)

// contribution is one source's value for one field.
type contribution struct {
	source     string
	confidence float64
	value      any
}

// merge folds the returned source records into one consensus record. Records
// must be non-empty and arrive in adapter registration order; within a field,
// the highest-confidence contributor wins a disagreement, with ties broken
// lexicographically by source name so the outcome never depends on
// registration order.
func merge(records []*model.SourceRecord, now time.Time) *model.VerifiedRecord {
	rec := &model.VerifiedRecord{
		VerifiedFields:      make(map[string]any),
		DataSourceBreakdown: make(map[string][]string),
		VerifiedAt:          now,
	}

	fieldSet := make(map[string]bool)
	for _, sr := range records {
		for field := range sr.Fields {
			fieldSet[field] = true
		}
	}

	for field := range fieldSet {
		var contribs []contribution
		for _, sr := range records {
			v, ok := sr.Fields[field]
			if !ok || isEmptyValue(v) {
				continue
			}
			contribs = append(contribs, contribution{source: sr.Source, confidence: sr.Confidence, value: v})
		}
		if len(contribs) == 0 {
			continue
		}

		if agreed(contribs) {
			rec.VerifiedFields[field] = contribs[0].value
			sources := make([]string, len(contribs))
			for i, c := range contribs {
				sources[i] = c.source
			}
			rec.DataSourceBreakdown[field] = sources
			continue
		}

		// Disagreement: every contributor's value goes into the conflict
		// map and the breakdown still lists every contributor, so the
		// provenance survives even for fields the winner overrode.
		winner := contribs[0]
		values := make(map[string]any, len(contribs))
		sources := make([]string, len(contribs))
		for i, c := range contribs {
			values[c.source] = c.value
			sources[i] = c.source
			if c.confidence > winner.confidence ||
				(c.confidence == winner.confidence && c.source < winner.source) {
				winner = c
			}
		}
		if rec.SourceConflicts == nil {
			rec.SourceConflicts = make(map[string]map[string]any)
		}
		rec.SourceConflicts[field] = values
		rec.VerifiedFields[field] = winner.value
		rec.DataSourceBreakdown[field] = sources
	}

	rec.PrimaryDataSource = primarySource(records)
	rec.DataCompleteness = completeness(rec.VerifiedFields)
	rec.Status = model.StatusVerified
	if rec.Disputed() {
		rec.Status = model.StatusDisputed
	}
	return rec
}

// agreed reports whether all contributions carry the same value, compared by
// canonical JSON encoding so maps and slices compare structurally.
func agreed(contribs []contribution) bool {
	if len(contribs) < 2 {
		return true
	}
	first := canonicalJSON(contribs[0].value)
	for _, c := range contribs[1:] {
		if canonicalJSON(c.value) != first {
			return false
		}
	}
	return true
}

// primarySource picks the highest-confidence source among all records that
// contributed any data, breaking ties lexicographically.
func primarySource(records []*model.SourceRecord) string {
	best := records[0]
	for _, sr := range records[1:] {
		if sr.Confidence > best.Confidence ||
			(sr.Confidence == best.Confidence && sr.Source < best.Source) {
			best = sr
		}
	}
	return best.Source
}

// completeness is the fraction of the normalized field set present in the
// merged record.
func completeness(fields map[string]any) float64 {
	n := 0
	for _, f := range model.CoreFields {
		if _, ok := fields[f]; ok {
			n++
		}
	}
	return float64(n) / float64(len(model.CoreFields))
}

func canonicalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func isEmptyValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []string:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
