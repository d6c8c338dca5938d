// Package history merges freshly fetched courier records into a shipment's
// append-only status history.
package history

import (
	"sort"

	"github.com/BearBump/ShipSync/internal/models"
	"github.com/BearBump/ShipSync/internal/services/classifier"
)

// SkippedRecord is a batch record that could not become an event.
type SkippedRecord struct {
	Index     int
	Timestamp string
	Reason    string
}

type Result struct {
	History models.StatusHistory
	Current models.CurrentStatus
	// Added holds events that were not already in the existing history, in feed order.
	Added   models.StatusHistory
	Skipped []SkippedRecord
}

// Merge is idempotent and never removes events from existing.
// prior is returned as Current when the merged history is empty.
func Merge(prior models.CurrentStatus, existing models.StatusHistory, batch models.TrackingBatch) Result {
	merged := existing.Clone()
	seen := make(map[models.EventKey]struct{}, len(existing)+len(batch.Records))
	for _, e := range existing {
		seen[e.Key()] = struct{}{}
	}

	var res Result
	for i, rec := range batch.Records {
		ev, err := toEvent(rec)
		if err != nil {
			res.Skipped = append(res.Skipped, SkippedRecord{Index: i, Timestamp: rec.Timestamp, Reason: err.Error()})
			continue
		}
		k := ev.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		merged = append(merged, ev)
		res.Added = append(res.Added, ev)
	}

	// existing уже упорядочена, новые события дописаны в порядке ленты:
	// стабильная сортировка сохраняет этот порядок для равных времён.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp.Before(merged[j].Timestamp)
	})

	res.History = merged
	res.Current = currentOf(prior, merged)
	return res
}

func toEvent(rec models.RawStatus) (models.StatusEvent, error) {
	ts, err := ParseTimestamp(rec.Timestamp)
	if err != nil {
		return models.StatusEvent{}, err
	}
	label := rec.Label
	if label == "" {
		label = rec.Code
	}
	return models.StatusEvent{
		Timestamp: ts,
		Category:  classifier.Classify(rec),
		RawLabel:  label,
		Location:  models.StrPtr(rec.Location),
	}, nil
}

// currentOf picks the latest event; on equal timestamps the later one in history order wins.
func currentOf(prior models.CurrentStatus, h models.StatusHistory) models.CurrentStatus {
	if len(h) == 0 {
		return prior
	}
	latest := 0
	for i := 1; i < len(h); i++ {
		if !h[i].Timestamp.Before(h[latest].Timestamp) {
			latest = i
		}
	}
	e := h[latest]
	at := e.Timestamp
	cur := models.CurrentStatus{
		Category: e.Category,
		Text:     e.RawLabel,
		At:       &at,
	}
	if e.Location != nil {
		loc := *e.Location
		cur.Location = &loc
	}
	return cur
}
