package digest

import (
	"fmt"
	"strings"
	"time"
)

func renderPlainText(now time.Time, total int, sections []Section) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s - %s\n", Title, FormatDate(now))
	fmt.Fprintf(&b, "Total Notifications: %d\n", total)
	b.WriteString("\n")

	if total == 0 {
		b.WriteString(NoNotifications)
		return b.String()
	}

	for _, sec := range sections {
		fmt.Fprintf(&b, "=== %s (%s) ===\n\n", DisplayName(sec.Source), countLabel(len(sec.Messages)))

		for _, m := range sec.Messages {
			fmt.Fprintf(&b, "• %s - %s (%s)\n", m.SenderDetail, m.Sender, FormatTimestamp(m.Timestamp))
			fmt.Fprintf(&b, "  %s\n\n", m.Content)
		}

		b.WriteString("\n")
	}

	return b.String()
}
