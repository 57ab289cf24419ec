package logflags

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bgdb.log")
	require.NoError(t, Setup("debug", path))
	defer Setup("warn", "stderr")

	log := Logger("target")
	assert.Equal(t, logrus.DebugLevel, log.Logger.Level)
	log.WithField("pid", 42).Debug("peek")

	dat, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(dat), "layer=target"), string(dat))
	assert.True(t, strings.Contains(string(dat), "pid=42"), string(dat))
}

func TestSetupInvalidLevel(t *testing.T) {
	assert.Error(t, Setup("loud", ""))
}
