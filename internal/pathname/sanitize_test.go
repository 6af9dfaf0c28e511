package pathname

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-binder/internal/binder"
)

func TestSanitize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Weekly Notes", want: "Weekly Notes"},
		{name: "invalid chars", in: `a/b\c:d*e?f"g<h>i|j`, want: "a_b_c_d_e_f_g_h_i_j"},
		{name: "trim dots and spaces", in: " ..title.. ", want: "title"},
		{name: "dot runs", in: "v1...2", want: "v1.2"},
		{name: "control chars", in: "line\tbreak\n", want: "linebreak"},
		{name: "empty", in: " . ", want: DefaultName},
		{name: "cjk kept", in: "周报：第一期", want: "周报_第一期"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Sanitize(tt.in, "_")
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSanitizeReservedNames(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"CON", "nul", "Com3", "LPT9"} {
		_, err := Sanitize(name, "_")
		require.ErrorIs(t, err, binder.ErrPrecondition, name)
	}
}

func TestSanitizeLength(t *testing.T) {
	t.Parallel()

	got, err := Sanitize(strings.Repeat("a", 300), "_")
	require.NoError(t, err)
	require.Len(t, []rune(got), MaxLength)
}
