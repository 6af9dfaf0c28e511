package binder

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResourceDescriptorFileName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		desc ResourceDescriptor
		want string
	}{
		{name: "format hint", desc: ResourceDescriptor{Ordinal: 3, Format: "png"}, want: "3.png"},
		{name: "uppercase hint", desc: ResourceDescriptor{Ordinal: 4, Format: "JPEG"}, want: "4.jpeg"},
		{name: "missing hint", desc: ResourceDescriptor{Ordinal: 7}, want: "7.jpg"},
		{name: "path in hint", desc: ResourceDescriptor{Ordinal: 8, Format: "../x"}, want: "8.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, tt.desc.FileName("jpg"))
		})
	}
	require.Equal(t, "9.pdf", ResourceDescriptor{Ordinal: 9}.PageName())
}

func TestParseOrdinal(t *testing.T) {
	t.Parallel()

	n, ok := ParseOrdinal("/tmp/article/12.pdf")
	require.True(t, ok)
	require.Equal(t, 12, n)

	for _, name := range []string{"title.pdf", "0.pdf", "-1.jpg", ".part1.pdf", "3a.png"} {
		_, ok := ParseOrdinal(name)
		require.False(t, ok, name)
	}
}

func TestJobMarkCompleteReturnsCopy(t *testing.T) {
	t.Parallel()

	job := Job{SourceURL: "https://example.com/a"}
	done, err := job.MarkComplete("/out/a/a.pdf")
	require.NoError(t, err)
	require.True(t, done.IsComplete)
	require.Equal(t, "/out/a/a.pdf", done.OutputPath)
	require.False(t, job.IsComplete)

	_, err = job.MarkComplete(" ")
	require.Error(t, err)
}

func TestJobRoot(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/default", Job{}.Root("/default"))
	require.Equal(t, "/override", Job{OutputRoot: "/override"}.Root("/default"))
}

func TestFetchErrorTemporary(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	require.True(t, (&FetchError{URL: "u", Err: cause}).Temporary())
	require.True(t, (&FetchError{URL: "u", StatusCode: http.StatusBadGateway, Err: cause}).Temporary())
	require.True(t, (&FetchError{URL: "u", StatusCode: http.StatusTooManyRequests, Err: cause}).Temporary())
	require.False(t, (&FetchError{URL: "u", StatusCode: http.StatusNotFound, Err: cause}).Temporary())
	require.ErrorIs(t, &FetchError{URL: "u", Err: cause}, cause)
}

func TestPreconditionErrors(t *testing.T) {
	t.Parallel()

	for _, err := range []error{ErrNoContainerName, ErrEmptyMergeInput, ErrDuplicateOrdinal} {
		require.ErrorIs(t, err, ErrPrecondition)
	}
	mergeErr := &MergeError{Chunk: 2, Err: errors.New("disk full")}
	require.NotErrorIs(t, mergeErr, ErrPrecondition)
	require.Contains(t, mergeErr.Error(), "chunk 2")
	require.Contains(t, (&MergeError{Chunk: -1, Err: errors.New("x")}).Error(), "final")
}
