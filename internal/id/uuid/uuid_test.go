package uuid

import (
	"errors"
	"testing"

	goUUID "github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	id1, err := gen.NewID()
	require.NoError(t, err)
	id2, err := gen.NewID()
	require.NoError(t, err)
	require.NotEqual(t, id1, id2)

	parsed, err := goUUID.Parse(id1)
	require.NoError(t, err)
	require.Equal(t, goUUID.Version(7), parsed.Version())
}

func TestGeneratorFallsBackToV4(t *testing.T) {
	t.Parallel()

	want := goUUID.MustParse("9b2f7e6c-1d2a-4c3b-8e4f-5a6b7c8d9e0f")
	gen := &Generator{
		v7: func() (goUUID.UUID, error) { return goUUID.Nil, errors.New("clock unavailable") },
		v4: func() (goUUID.UUID, error) { return want, nil },
	}
	id, err := gen.NewID()
	require.NoError(t, err)
	require.Equal(t, want.String(), id)
}

func TestGeneratorReportsBothFailures(t *testing.T) {
	t.Parallel()

	errV7 := errors.New("clock unavailable")
	errV4 := errors.New("entropy exhausted")
	gen := &Generator{
		v7: func() (goUUID.UUID, error) { return goUUID.Nil, errV7 },
		v4: func() (goUUID.UUID, error) { return goUUID.Nil, errV4 },
	}
	_, err := gen.NewID()
	require.ErrorIs(t, err, errV7)
	require.ErrorIs(t, err, errV4)
}
