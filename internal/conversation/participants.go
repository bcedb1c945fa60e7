package conversation

import (
	"strings"

	"github.com/vdavid/threadsync/internal/models"
)

// MergeParticipants appends the addresses in add that are not yet in
// existing, comparing lowercased email addresses. A known address without a
// display name picks up the first name seen for it.
func MergeParticipants(existing []models.Address, add ...models.Address) []models.Address {
	index := make(map[string]int, len(existing)+len(add))
	result := make([]models.Address, 0, len(existing)+len(add))

	for _, addr := range append(append([]models.Address(nil), existing...), add...) {
		key := strings.ToLower(strings.TrimSpace(addr.Email))
		if key == "" {
			continue
		}
		if i, ok := index[key]; ok {
			if result[i].Name == "" && addr.Name != "" {
				result[i].Name = addr.Name
			}
			continue
		}
		index[key] = len(result)
		result = append(result, addr)
	}
	return result
}

// messageParticipants returns the sender and visible recipients of msg.
func messageParticipants(msg *models.Message) []models.Address {
	all := make([]models.Address, 0, 1+len(msg.To)+len(msg.Cc))
	all = append(all, msg.From)
	all = append(all, msg.To...)
	all = append(all, msg.Cc...)
	return all
}
