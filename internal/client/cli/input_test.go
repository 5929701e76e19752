package cli

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSimpleText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "full line", input: "  ann@example.com \n", want: "ann@example.com"},
		{name: "last line without newline", input: "ann@example.com", want: "ann@example.com"},
		{name: "only first line", input: "a\nb\n", want: "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			got, err := GetSimpleText(bufio.NewReader(strings.NewReader(tt.input)), "Email", &out)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "Email: ", out.String())
		})
	}
}

func TestGetSimpleText_EmptyInput(t *testing.T) {
	_, err := GetSimpleText(bufio.NewReader(strings.NewReader("")), "Email", io.Discard)
	require.ErrorIs(t, err, io.EOF)
}

func TestGetPassword(t *testing.T) {
	orig := readPassword
	t.Cleanup(func() { readPassword = orig })

	readPassword = func(int) ([]byte, error) { return []byte("correct horse"), nil }
	var out bytes.Buffer
	pw, err := GetPassword(&out)
	require.NoError(t, err)
	assert.Equal(t, []byte("correct horse"), pw)
	assert.Equal(t, "Password: \n", out.String())

	boom := errors.New("not a terminal")
	readPassword = func(int) ([]byte, error) { return nil, boom }
	_, err = GetPassword(io.Discard)
	require.ErrorIs(t, err, boom)
}
