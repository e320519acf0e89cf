package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/opex/internal/api"
	"github.com/kingrea/opex/internal/domain"
)

func TestFetchCachesValues(t *testing.T) {
	c := New(TTLs{})
	calls := 0
	load := func() (int, error) {
		calls++
		return 42, nil
	}
	for i := 0; i < 3; i++ {
		got, err := Fetch(c, "answer", time.Minute, load)
		require.NoError(t, err)
		assert.Equal(t, 42, got)
	}
	assert.Equal(t, 1, calls)
}

func TestFetchDoesNotCacheErrors(t *testing.T) {
	c := New(TTLs{})
	calls := 0
	boom := errors.New("boom")
	_, err := Fetch(c, "k", time.Minute, func() (string, error) {
		calls++
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
	got, err := Fetch(c, "k", time.Minute, func() (string, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
}

func TestFetchExpires(t *testing.T) {
	c := New(TTLs{})
	_, err := Fetch(c, "short", 10*time.Millisecond, func() (int, error) { return 1, nil })
	require.NoError(t, err)
	time.Sleep(25 * time.Millisecond)
	_, ok := Peek[int](c, "short")
	assert.False(t, ok)
}

func TestConcurrentFetchSharesOneLoad(t *testing.T) {
	c := New(TTLs{})
	var calls atomic.Int32
	release := make(chan struct{})
	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = Fetch(c, "shared", time.Minute, func() (int, error) {
				calls.Add(1)
				<-release
				return 7, nil
			})
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	for _, got := range results {
		assert.Equal(t, 7, got)
	}
	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestInvalidatePrefix(t *testing.T) {
	c := New(TTLs{})
	for _, key := range []string{InitiativesKey(domain.InitiativeFilter{}), InitiativesKey(domain.InitiativeFilter{Site: "A"}), InitiativeKey(1)} {
		_, err := Fetch(c, key, time.Minute, func() (int, error) { return 1, nil })
		require.NoError(t, err)
	}
	c.InvalidatePrefix(PrefixInitiatives)
	assert.Equal(t, 1, c.Len())
	_, ok := Peek[int](c, InitiativeKey(1))
	assert.True(t, ok)
}

func TestKeysAreStable(t *testing.T) {
	assert.Equal(t, "transactions:9", TransactionsKey(9))
	assert.Equal(t, "progress:9", ProgressKey(9))
	assert.Equal(t, "initiatives:list:search=trap&site=A", InitiativesKey(domain.InitiativeFilter{Search: "trap", Site: "A"}))
	assert.Equal(t, "users:list:role=IL&site=A", UsersKey(api.UserFilter{Role: domain.RoleInitiativeLead, Site: "A"}))
	assert.Equal(t, "timeline:9:all-completed", TimelineCompletedKey(9))
}

type countingReader struct {
	Reader
	transactions int
	progressErr  error
}

func (r *countingReader) Progress(context.Context, int64) (domain.Progress, error) {
	return domain.Progress{}, r.progressErr
}

func (r *countingReader) VisibleTransactions(context.Context, int64) ([]domain.WorkflowTransaction, error) {
	r.transactions++
	return []domain.WorkflowTransaction{{ID: int64(r.transactions), ApproveStatus: domain.StatusPending}}, nil
}

func TestSourceCachesUntilInvalidated(t *testing.T) {
	reader := &countingReader{}
	source := NewSource(reader, New(TTLs{}))
	ctx := context.Background()

	first, err := source.VisibleTransactions(ctx, 3)
	require.NoError(t, err)
	second, err := source.VisibleTransactions(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, reader.transactions)

	source.Cache().Invalidate(MutationKeys(3)...)
	third, err := source.VisibleTransactions(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), third[0].ID)
}

func TestProgressFallsBackToCachedTransactions(t *testing.T) {
	reader := &countingReader{progressErr: errors.New("progress endpoint down")}
	source := NewSource(reader, New(TTLs{}))
	ctx := context.Background()

	_, err := source.Progress(ctx, 3)
	require.Error(t, err, "nothing cached to fall back on")

	txs, err := source.VisibleTransactions(ctx, 3)
	require.NoError(t, err)
	progress, err := source.Progress(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, domain.ComputeProgress(3, txs), progress)

	reader.progressErr = api.ErrUnauthorized
	_, err = source.Progress(ctx, 3)
	assert.ErrorIs(t, err, api.ErrUnauthorized)
}
