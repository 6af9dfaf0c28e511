package runner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-binder/internal/binder"
)

func TestStartClassifiesJobs(t *testing.T) {
	t.Parallel()

	require.Equal(t, StageSkipped, Start(binder.Job{SourceURL: "https://a", IsComplete: true}).Stage)
	require.Equal(t, StageSkipped, Start(binder.Job{SourceURL: "  "}).Stage)
	require.Equal(t, StagePending, Start(binder.Job{SourceURL: "https://a"}).Stage)
}

func TestHappyPathTransitions(t *testing.T) {
	t.Parallel()

	s := Start(binder.Job{SourceURL: "https://a"})
	var err error
	for _, next := range []Stage{StageFetching, StageConverting, StageMerging} {
		s, err = s.Advance(next)
		require.NoError(t, err)
		require.Equal(t, next, s.Stage)
	}

	done, err := s.Complete("/out/T/T.pdf")
	require.NoError(t, err)
	require.Equal(t, StageComplete, done.Stage)
	require.True(t, done.Job.IsComplete)
	require.Equal(t, "/out/T/T.pdf", done.Job.OutputPath)

	// The previous value is untouched.
	require.False(t, s.Job.IsComplete)
	require.Equal(t, done, done.Abort())
}

func TestInvalidTransitions(t *testing.T) {
	t.Parallel()

	s := Start(binder.Job{SourceURL: "https://a"})
	_, err := s.Advance(StageMerging)
	require.Error(t, err)
	_, err = s.Complete("/x.pdf")
	require.Error(t, err)

	skipped := Start(binder.Job{IsComplete: true, SourceURL: "https://a"})
	_, err = skipped.Advance(StageFetching)
	require.Error(t, err)

	merging := JobState{Job: binder.Job{SourceURL: "https://a"}, Stage: StageMerging}
	_, err = merging.Complete("")
	require.Error(t, err)
}

func TestAbortReturnsToPending(t *testing.T) {
	t.Parallel()

	s := JobState{Job: binder.Job{SourceURL: "https://a"}, Stage: StageConverting}
	require.Equal(t, StagePending, s.Abort().Stage)
	require.Equal(t, "converting", s.Stage.String())
	require.Equal(t, "stage(42)", Stage(42).String())
}
