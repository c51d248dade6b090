package build

import "slices"

// ChangedFiles returns the paths of current that need recompiling: every
// path when the baseline is empty, otherwise paths missing from the
// baseline or whose hash differs. The result follows the order of current.
func ChangedFiles(current Fingerprints, baseline FingerprintCache) []string {
	changed := make([]string, 0)

	for _, fp := range current {
		if len(baseline) == 0 {
			changed = append(changed, fp.Path)
			continue
		}

		cached, exists := baseline[fp.Path]
		if !exists || cached != fp.Hash {
			changed = append(changed, fp.Path)
		}
	}

	return changed
}

// ChangeSummary classifies the discovered sources against a baseline
type ChangeSummary struct {
	Added     []string
	Modified  []string
	Unchanged []string
	// Removed lists baseline entries that were not discovered. They do not
	// trigger compilation.
	Removed []string
}

// IsEmpty reports whether nothing needs recompiling
func (s *ChangeSummary) IsEmpty() bool {
	return len(s.Added) == 0 && len(s.Modified) == 0
}

// Summarize classifies current against baseline. Added and Modified
// together hold exactly the paths ChangedFiles returns for a non-empty
// baseline; with an empty baseline every path is Added.
func Summarize(current Fingerprints, baseline FingerprintCache) *ChangeSummary {
	summary := &ChangeSummary{
		Added:     make([]string, 0),
		Modified:  make([]string, 0),
		Unchanged: make([]string, 0),
		Removed:   make([]string, 0),
	}

	seen := make(map[string]struct{}, len(current))
	for _, fp := range current {
		seen[fp.Path] = struct{}{}

		cached, exists := baseline[fp.Path]
		switch {
		case !exists:
			summary.Added = append(summary.Added, fp.Path)
		case cached != fp.Hash:
			summary.Modified = append(summary.Modified, fp.Path)
		default:
			summary.Unchanged = append(summary.Unchanged, fp.Path)
		}
	}

	for path := range baseline {
		if _, ok := seen[path]; !ok {
			summary.Removed = append(summary.Removed, path)
		}
	}
	slices.Sort(summary.Removed)

	return summary
}
