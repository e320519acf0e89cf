package query

import (
	"fmt"
	"net/url"

	"github.com/kingrea/opex/internal/api"
	"github.com/kingrea/opex/internal/domain"
)

// Key prefixes, one per entity.
const (
	PrefixInitiatives  = "initiatives:"
	PrefixInitiative   = "initiative:"
	PrefixTransactions = "transactions:"
	PrefixPending      = "pending:"
	PrefixProgress     = "progress:"
	PrefixMonitoring   = "monitoring:"
	PrefixTimeline     = "timeline:"
	PrefixUsers        = "users:"
	PrefixFiles        = "files:"
)

// InitiativesKey identifies a filtered initiative listing.
func InitiativesKey(filter domain.InitiativeFilter) string {
	return PrefixInitiatives + "list:" + filters(map[string]string{
		"site":   filter.Site,
		"status": filter.Status,
		"search": filter.Search,
	})
}

// InitiativeKey identifies one initiative.
func InitiativeKey(id int64) string { return fmt.Sprintf("%s%d", PrefixInitiative, id) }

// TransactionsKey identifies an initiative's visible transactions.
func TransactionsKey(id int64) string { return fmt.Sprintf("%s%d", PrefixTransactions, id) }

// PendingKey identifies an initiative's current pending transaction.
func PendingKey(id int64) string { return fmt.Sprintf("%s%d", PrefixPending, id) }

// ProgressKey identifies an initiative's progress percentage.
func ProgressKey(id int64) string { return fmt.Sprintf("%s%d", PrefixProgress, id) }

// MonitoringKey identifies an initiative's monitoring entries.
func MonitoringKey(id int64) string { return fmt.Sprintf("%s%d", PrefixMonitoring, id) }

// TimelineKey identifies an initiative's timeline entries.
func TimelineKey(id int64) string { return fmt.Sprintf("%s%d", PrefixTimeline, id) }

// TimelineCompletedKey identifies the all-completed check.
func TimelineCompletedKey(id int64) string {
	return fmt.Sprintf("%s%d:all-completed", PrefixTimeline, id)
}

// UsersKey identifies a filtered user listing.
func UsersKey(filter api.UserFilter) string {
	return PrefixUsers + "list:" + filters(map[string]string{
		"role": string(filter.Role),
		"site": filter.Site,
	})
}

// FilesKey identifies an initiative's attachments.
func FilesKey(id int64) string { return fmt.Sprintf("%s%d", PrefixFiles, id) }

// MutationKeys lists what a workflow action on initiative id makes stale.
func MutationKeys(id int64) []string {
	return []string{
		TransactionsKey(id),
		PendingKey(id),
		ProgressKey(id),
		InitiativeKey(id),
	}
}

// filters renders a stable query-string form; url.Values sorts by key.
func filters(values map[string]string) string {
	q := url.Values{}
	for key, value := range values {
		if value != "" {
			q.Set(key, value)
		}
	}
	return q.Encode()
}
