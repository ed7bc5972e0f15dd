package shell

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	err := New().Run(context.Background(), `echo "$1 $2" > result.txt; echo "$GREETING"`, Options{
		Dir:    dir,
		Env:    []string{"GREETING=hello"},
		Args:   []string{"-x", "value"},
		Stdout: &out,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out.String())

	content, err := os.ReadFile(filepath.Join(dir, "result.txt"))
	require.NoError(t, err)
	assert.Equal(t, "-x value\n", string(content))
}

func TestRunExitStatus(t *testing.T) {
	err := New().Run(context.Background(), "echo broken >&2; exit 3", Options{})
	assert.ErrorIs(t, err, errors.ErrCommandFailed)
	assert.Contains(t, err.Error(), "exit status 3")
	assert.Contains(t, err.Error(), "broken")
}

func TestRunParseError(t *testing.T) {
	err := New().Run(context.Background(), "if then fi (", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}

func TestQuote(t *testing.T) {
	q, err := Quote("/home/me/My Apps/it's.deb")
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, New().Run(context.Background(), "printf '%s' "+q, Options{Stdout: &out}))
	assert.Equal(t, "/home/me/My Apps/it's.deb", out.String())
}

func TestTail(t *testing.T) {
	assert.Equal(t, "c; d; e", tail("a\nb\nc\nd\ne\n"))
	assert.Equal(t, "only", tail("only"))
}
