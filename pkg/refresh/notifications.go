package refresh

import (
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/steam-monitor/pkg/notify"
	"github.com/Sternrassler/steam-monitor/pkg/tracker"
)

// summaryNamesLimit is the number of characters of joined names kept in a
// summary body.
const summaryNamesLimit = 50

// UpdateNotification announces new activity for a single app. The tag is
// unique per app and activity timestamp.
func UpdateNotification(e tracker.Entity) notify.Notification {
	posted := time.Unix(e.LastActivityAt, 0).UTC().Format("2006-01-02 15:04 MST")
	return notify.Notification{
		Title: fmt.Sprintf("%s has a new update!", e.Name),
		Body:  fmt.Sprintf("Latest news posted %s", posted),
		Icon:  e.ImageURL,
		Tag:   fmt.Sprintf("game-update-%s-%d", e.ID, e.LastActivityAt),
	}
}

// SummaryNotification announces new activity for several apps at once. The
// icon is the first app's image; the tag carries the newest timestamp.
func SummaryNotification(updated []tracker.Entity) notify.Notification {
	names := make([]string, len(updated))
	var newest int64
	for i, e := range updated {
		names[i] = e.Name
		newest = max(newest, e.LastActivityAt)
	}

	n := notify.Notification{
		Title: fmt.Sprintf("%d games have new updates!", len(updated)),
		Body:  "Updated: " + truncate(strings.Join(names, ", "), summaryNamesLimit),
		Tag:   fmt.Sprintf("game-update-summary-%d", newest),
	}
	if len(updated) > 0 {
		n.Icon = updated[0].ImageURL
	}
	return n
}

// truncate cuts s to limit characters and marks the cut with "...".
func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
