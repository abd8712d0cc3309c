package app

import (
	"fmt"
	"strings"
	"time"

	"wardenbot/internal/storage"
)

func formatIdentities(idents []storage.Identity) string {
	if len(idents) == 0 {
		return "No identities."
	}
	var b strings.Builder
	var current storage.IdentityStatus
	for _, id := range idents {
		if id.Status != current {
			if current != "" {
				b.WriteByte('\n')
			}
			current = id.Status
			fmt.Fprintf(&b, "%s:\n", strings.ToUpper(string(current)))
		}
		fmt.Fprintf(&b, "  %s %s", id.Kind, id.ExternalID)
		if id.DisplayName != "" {
			fmt.Fprintf(&b, " (%s)", id.DisplayName)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatJobs(list []storage.Job) string {
	if len(list) == 0 {
		return "No jobs."
	}
	var b strings.Builder
	for i, j := range list {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s %s due %s", j.ID, j.Status, j.Description, j.DueAt.Format(time.RFC3339))
		if j.Recur != "" {
			fmt.Fprintf(&b, " (cron %s)", j.Recur)
		}
		if j.ExecutedAt != nil {
			fmt.Fprintf(&b, " ran %s", j.ExecutedAt.Format(time.RFC3339))
		}
	}
	return b.String()
}
