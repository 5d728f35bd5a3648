package notify

import (
	"sort"

	"github.com/nhle/paddledesk/internal/model"
)

// sortNewestFirst orders list by timestamp, newest first. Entries with equal
// timestamps keep their relative order.
func sortNewestFirst(list []model.Notification) []model.Notification {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Timestamp.After(list[j].Timestamp)
	})
	return list
}
