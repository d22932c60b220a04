package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKVQueriesAreTagged(t *testing.T) {
	l := newLinter()
	require.NoError(t, l.lintPath(filepath.Join("..", "..", "sqlinline")))
	assert.Empty(t, l.violations)
	assert.Len(t, l.seen, 5)
}

func TestLintReportsMissingAndDuplicateMarkers(t *testing.T) {
	dir := t.TempDir()
	src := "package q\n\n" +
		"const QOne = `--sql 3d0c8f4e-6b1a-4f52-9c7e-1a2b8e4d5f60\nselect 1;`\n\n" +
		"const QTwo = `--sql 3d0c8f4e-6b1a-4f52-9c7e-1a2b8e4d5f60\nselect 2;`\n\n" +
		"const QBare = \"delete from kv_entries\"\n\n" +
		"const Greeting = \"hello\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "q.go"), []byte(src), 0o644))

	l := newLinter()
	require.NoError(t, l.lintPath(dir))
	require.Len(t, l.violations, 2)
	assert.Equal(t, "QTwo", l.violations[0].name)
	assert.Contains(t, l.violations[0].message, "already used by QOne")
	assert.Equal(t, "QBare", l.violations[1].name)
	assert.Equal(t, 9, l.violations[1].line)
}
