package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-binder/internal/binder"
)

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := New(binder.JobCollection{OutputRoot: "/out", Jobs: []binder.Job{{SourceURL: "https://a"}}})
	coll, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "/out", coll.OutputRoot)

	done, err := coll.Jobs[0].MarkComplete("/out/a/a.pdf")
	require.NoError(t, err)
	require.NoError(t, store.UpdateJob(context.Background(), 0, done))
	require.Error(t, store.UpdateJob(context.Background(), 3, done))

	coll, err = store.Load(context.Background())
	require.NoError(t, err)
	require.True(t, coll.Jobs[0].IsComplete)
	require.Len(t, store.Updates(), 1)
}

func TestStoreFailUpdate(t *testing.T) {
	t.Parallel()

	store := New(binder.JobCollection{Jobs: []binder.Job{{SourceURL: "https://a"}}})
	boom := errors.New("disk full")
	store.FailUpdate(0, boom)
	require.ErrorIs(t, store.UpdateJob(context.Background(), 0, binder.Job{}), boom)
	require.Empty(t, store.Updates())
}
