package spawn

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shCommand(t *testing.T) (command string, argsPrefix []string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell-based spawn fixtures are POSIX-only")
	}
	return "/bin/sh", []string{"-c"}
}

func TestRun_StreamsStdoutLinesAndCapturesExitStatus(t *testing.T) {
	command, prefix := shCommand(t)
	dir := t.TempDir()
	logPath := filepath.Join(dir, "run.jsonl")

	var mu sync.Mutex
	var lines []string
	var childSeen, childCleared bool

	result, err := Run(RunOptions{
		Prompt:  "hello\n",
		Command: command,
		Args:    append(prefix, `cat; echo done; exit 3`),
		LogPath: logPath,
		OnChildChange: func(h ChildHandle) {
			if h != nil {
				childSeen = true
			} else {
				childCleared = true
			}
		},
		OnStdoutLine: func(line string) {
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
		},
	})

	require.NoError(t, err)
	require.NotNil(t, result.Status)
	assert.Equal(t, 3, *result.Status)
	assert.True(t, childSeen)
	assert.True(t, childCleared)
	assert.Contains(t, lines, "hello")
	assert.Contains(t, lines, "done")
}

func TestRun_OnFirstResponseFiresOnce(t *testing.T) {
	command, prefix := shCommand(t)
	dir := t.TempDir()

	var firstResponses int
	_, err := Run(RunOptions{
		Prompt:  "",
		Command: command,
		Args:    append(prefix, `echo one; echo two; echo three`),
		LogPath: filepath.Join(dir, "run.jsonl"),
		OnFirstResponse: func() {
			firstResponses++
		},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, firstResponses)
}

func TestRun_AppendsVerbatimLog(t *testing.T) {
	command, prefix := shCommand(t)
	dir := t.TempDir()
	logPath := filepath.Join(dir, "nested", "run.jsonl")

	_, err := Run(RunOptions{
		Command: command,
		Args:    append(prefix, `echo from-stdout; echo from-stderr 1>&2`),
		LogPath: logPath,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "from-stdout"))
	assert.True(t, strings.Contains(string(data), "from-stderr"))
}

func TestRun_SpawnErrorForMissingExecutable(t *testing.T) {
	dir := t.TempDir()
	_, err := Run(RunOptions{
		Command: "definitely-not-a-real-binary-xyz",
		LogPath: filepath.Join(dir, "run.jsonl"),
	})
	require.Error(t, err)
	var spawnErr *SpawnError
	assert.ErrorAs(t, err, &spawnErr)
}
