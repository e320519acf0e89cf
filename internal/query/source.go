package query

import (
	"context"
	"errors"

	"github.com/kingrea/opex/internal/api"
	"github.com/kingrea/opex/internal/domain"
)

// Reader is the read side of the backend. *api.Client satisfies it.
type Reader interface {
	ListInitiatives(ctx context.Context, filter domain.InitiativeFilter) ([]domain.Initiative, error)
	GetInitiative(ctx context.Context, id int64) (domain.Initiative, error)
	VisibleTransactions(ctx context.Context, initiativeID int64) ([]domain.WorkflowTransaction, error)
	CurrentPending(ctx context.Context, initiativeID int64) (domain.WorkflowTransaction, bool, error)
	Progress(ctx context.Context, initiativeID int64) (domain.Progress, error)
	MonitoringEntries(ctx context.Context, initiativeID int64) ([]domain.MonitoringEntry, error)
	TimelineEntries(ctx context.Context, initiativeID int64) ([]domain.TimelineEntry, error)
	TimelineAllCompleted(ctx context.Context, initiativeID int64) (bool, error)
	ListUsers(ctx context.Context, filter api.UserFilter) ([]domain.User, error)
	ListFiles(ctx context.Context, initiativeID int64) ([]domain.InitiativeFile, error)
}

// Source serves reads through the cache.
type Source struct {
	reader Reader
	cache  *Cache
}

// NewSource wraps reader with cache.
func NewSource(reader Reader, cache *Cache) *Source {
	return &Source{reader: reader, cache: cache}
}

// Cache exposes the underlying cache for invalidation.
func (s *Source) Cache() *Cache {
	return s.cache
}

func (s *Source) ttls() TTLs {
	if s.cache == nil {
		return DefaultTTLs()
	}
	return s.cache.ttls
}

// ListInitiatives is cached under InitiativesKey.
func (s *Source) ListInitiatives(ctx context.Context, filter domain.InitiativeFilter) ([]domain.Initiative, error) {
	return Fetch(s.cache, InitiativesKey(filter), s.ttls().Initiatives, func() ([]domain.Initiative, error) {
		return s.reader.ListInitiatives(ctx, filter)
	})
}

// GetInitiative is cached under InitiativeKey.
func (s *Source) GetInitiative(ctx context.Context, id int64) (domain.Initiative, error) {
	return Fetch(s.cache, InitiativeKey(id), s.ttls().Initiative, func() (domain.Initiative, error) {
		return s.reader.GetInitiative(ctx, id)
	})
}

// VisibleTransactions is cached under TransactionsKey.
func (s *Source) VisibleTransactions(ctx context.Context, initiativeID int64) ([]domain.WorkflowTransaction, error) {
	return Fetch(s.cache, TransactionsKey(initiativeID), s.ttls().Transactions, func() ([]domain.WorkflowTransaction, error) {
		return s.reader.VisibleTransactions(ctx, initiativeID)
	})
}

type pendingResult struct {
	tx domain.WorkflowTransaction
	ok bool
}

// CurrentPending is cached under PendingKey.
func (s *Source) CurrentPending(ctx context.Context, initiativeID int64) (domain.WorkflowTransaction, bool, error) {
	result, err := Fetch(s.cache, PendingKey(initiativeID), s.ttls().Transactions, func() (pendingResult, error) {
		tx, ok, err := s.reader.CurrentPending(ctx, initiativeID)
		return pendingResult{tx: tx, ok: ok}, err
	})
	return result.tx, result.ok, err
}

// Progress is cached under ProgressKey. When the endpoint fails and the
// initiative's transactions are cached, progress is computed from them.
// An expired session is always returned as is.
func (s *Source) Progress(ctx context.Context, initiativeID int64) (domain.Progress, error) {
	progress, err := Fetch(s.cache, ProgressKey(initiativeID), s.ttls().Transactions, func() (domain.Progress, error) {
		return s.reader.Progress(ctx, initiativeID)
	})
	if err == nil || errors.Is(err, api.ErrUnauthorized) {
		return progress, err
	}
	if txs, ok := Peek[[]domain.WorkflowTransaction](s.cache, TransactionsKey(initiativeID)); ok {
		return domain.ComputeProgress(initiativeID, txs), nil
	}
	return progress, err
}

// MonitoringEntries is cached under MonitoringKey.
func (s *Source) MonitoringEntries(ctx context.Context, initiativeID int64) ([]domain.MonitoringEntry, error) {
	return Fetch(s.cache, MonitoringKey(initiativeID), s.ttls().Monitoring, func() ([]domain.MonitoringEntry, error) {
		return s.reader.MonitoringEntries(ctx, initiativeID)
	})
}

// TimelineEntries is cached under TimelineKey.
func (s *Source) TimelineEntries(ctx context.Context, initiativeID int64) ([]domain.TimelineEntry, error) {
	return Fetch(s.cache, TimelineKey(initiativeID), s.ttls().Monitoring, func() ([]domain.TimelineEntry, error) {
		return s.reader.TimelineEntries(ctx, initiativeID)
	})
}

// TimelineAllCompleted is cached under TimelineCompletedKey.
func (s *Source) TimelineAllCompleted(ctx context.Context, initiativeID int64) (bool, error) {
	return Fetch(s.cache, TimelineCompletedKey(initiativeID), s.ttls().Monitoring, func() (bool, error) {
		return s.reader.TimelineAllCompleted(ctx, initiativeID)
	})
}

// ListUsers is cached under UsersKey.
func (s *Source) ListUsers(ctx context.Context, filter api.UserFilter) ([]domain.User, error) {
	return Fetch(s.cache, UsersKey(filter), s.ttls().Users, func() ([]domain.User, error) {
		return s.reader.ListUsers(ctx, filter)
	})
}

// ListFiles is cached under FilesKey.
func (s *Source) ListFiles(ctx context.Context, initiativeID int64) ([]domain.InitiativeFile, error) {
	return Fetch(s.cache, FilesKey(initiativeID), s.ttls().Initiative, func() ([]domain.InitiativeFile, error) {
		return s.reader.ListFiles(ctx, initiativeID)
	})
}
