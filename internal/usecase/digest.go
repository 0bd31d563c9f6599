package usecase

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"NewsBot/internal/domain"
)

// buildDigestMessage renders a run summary as a short plain-text report.
func buildDigestMessage(run domain.RunSummary) string {
	var b strings.Builder

	status := "finished"
	if run.Interrupted {
		status = "interrupted"
	}
	fmt.Fprintf(&b, "Crawl run %s %s in %s\n", shortID(run.RunID), status, run.Duration.Round(time.Second))

	t := run.Totals
	fmt.Fprintf(&b, "Discovered %d, succeeded %d, failed %d, persisted %d (merged %d)\n\n",
		t.Discovered, t.Succeeded, t.Failed(), t.Persisted, t.Merged)

	for _, s := range run.Sources {
		if s.Skipped {
			fmt.Fprintf(&b, "- %s: skipped (%s)\n", s.Source, s.SkipReason)
			continue
		}
		fmt.Fprintf(&b, "- %s: %d/%d ok", s.Source, s.Succeeded, s.Discovered)
		if s.Failed() > 0 {
			fmt.Fprintf(&b, ", failed %s", formatKinds(s.FailuresByKind))
		}
		if s.PersistFailed > 0 {
			fmt.Fprintf(&b, ", %d not saved", s.PersistFailed)
		}
		if s.NotDispatched > 0 {
			fmt.Fprintf(&b, ", %d not dispatched", s.NotDispatched)
		}
		if len(s.DiscoveryIssues) > 0 {
			fmt.Fprintf(&b, ", %d discovery issues", len(s.DiscoveryIssues))
		}
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func formatKinds(kinds map[domain.FailureKind]int) string {
	keys := make([]string, 0, len(kinds))
	for kind := range kinds {
		keys = append(keys, string(kind))
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, kinds[domain.FailureKind(k)]))
	}
	return strings.Join(parts, " ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
