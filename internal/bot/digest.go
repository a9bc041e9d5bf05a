package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/zulandar/switchboard/internal/models"
	"github.com/zulandar/switchboard/internal/store"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateCron reports whether expr is a valid 5-field cron expression.
func ValidateCron(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("bot: digest cron %q: %w", expr, err)
	}
	return nil
}

// BuildDigest summarizes chat activity since the given time. It returns ""
// when nothing happened and no requests are waiting.
func BuildDigest(ctx context.Context, src StatsSource, since time.Time) (string, error) {
	st, err := src.Stats(ctx, since)
	if err != nil {
		return "", fmt.Errorf("bot: digest: %w", err)
	}
	if st.Created == 0 && st.Queued == 0 && st.Messages == 0 {
		return "", nil
	}
	return FormatDigest(st), nil
}

// FormatDigest renders stats as a plain-text report.
func FormatDigest(st store.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Support digest since %s\n", st.Since.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Chats requested: %d\n", st.Created)
	for _, status := range []string{models.ChatActive, models.ChatClosed, models.ChatRejected, models.ChatPending} {
		if n := st.ByStatus[status]; n > 0 {
			fmt.Fprintf(&b, "  %s: %d\n", status, n)
		}
	}
	fmt.Fprintf(&b, "Messages relayed: %d\n", st.Messages)
	if st.Rated > 0 {
		fmt.Fprintf(&b, "Average rating: %.1f (%d rated)\n", st.AvgRating, st.Rated)
	}
	fmt.Fprintf(&b, "Waiting in queue: %d", st.Queued)
	return b.String()
}
