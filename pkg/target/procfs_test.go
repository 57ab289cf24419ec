package target

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatComm(t *testing.T) {
	comm, err := parseStatComm(1234, []byte("1234 (my (odd) prog) S 1 1234 1234 0 -1"))
	require.NoError(t, err)
	assert.Equal(t, "my (odd) prog", comm)

	_, err = parseStatComm(1234, []byte("99 (other) S"))
	assert.Error(t, err)
}

func TestProcSelf(t *testing.T) {
	if _, err := os.Stat("/proc/self"); err != nil {
		t.Skip("no procfs")
	}
	pid := os.Getpid()
	assert.True(t, checkPid(pid))
	assert.False(t, checkPid(0))
	assert.False(t, checkPid(-1))

	comm, err := readProcComm(pid)
	require.NoError(t, err)
	assert.NotEmpty(t, comm)

	exe, err := readProcExe(pid)
	require.NoError(t, err)
	self, err := os.Executable()
	require.NoError(t, err)
	assert.Equal(t, self, exe)
}
