package wallpaperconfig

import "reflect"

// Diff is what Config Ingest emits to the Core Orchestrator after
// comparing a newly-parsed set of Entries against the previously ingested
// set, keyed by output selector.
type Diff struct {
	Added   []Entry
	Removed []OutputSelector
	Updated []Update
}

// Update pairs an old and new Entry for the same output selector so the
// Orchestrator/Wallpaper can decide whether the source descriptor changed
// (rebuild the Frame Source) or only parameters did (update in place).
type Update struct {
	Output OutputSelector
	Old    Entry
	New    Entry
}

// SourceChanged reports whether the source descriptor differs between Old
// and New, which per spec.md section 4.7 determines whether
// Wallpaper.update_config rebuilds the Frame Source or mutates in place.
func (u Update) SourceChanged() bool {
	return !reflect.DeepEqual(u.Old.Source, u.New.Source)
}

// Compute diffs a new set of Entries against the current set. Testable
// property 4 (diff minimality) requires that an unrelated output's Entry
// never appears in Updated/Removed/Added when only one output's Entry
// changed — Compute achieves this by keying strictly on OutputSelector and
// doing field-by-field comparison only within a matching key.
func Compute(current, next []Entry) Diff {
	currentByOutput := indexByOutput(current)
	nextByOutput := indexByOutput(next)

	var diff Diff

	for output, newEntry := range nextByOutput {
		oldEntry, existed := currentByOutput[output]
		if !existed {
			diff.Added = append(diff.Added, newEntry)
			continue
		}
		if !reflect.DeepEqual(oldEntry, newEntry) {
			diff.Updated = append(diff.Updated, Update{Output: output, Old: oldEntry, New: newEntry})
		}
	}

	for output := range currentByOutput {
		if _, stillPresent := nextByOutput[output]; !stillPresent {
			diff.Removed = append(diff.Removed, output)
		}
	}

	return diff
}

// IsEmpty reports whether a Diff carries no changes at all.
func (d Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Updated) == 0
}

func indexByOutput(entries []Entry) map[OutputSelector]Entry {
	m := make(map[OutputSelector]Entry, len(entries))
	for _, e := range entries {
		m[e.Output] = e
	}
	return m
}
