package utils

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLogLevel(" DEBUG "))
	assert.Equal(t, logrus.WarnLevel, ParseLogLevel("warning"))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel(""))
	assert.Equal(t, logrus.InfoLevel, ParseLogLevel("nonsense"))
}

func TestLog4jFormatter(t *testing.T) {
	f := &Log4jFormatter{LoggerName: "DATABASE", NameWidth: 10}
	entry := &logrus.Entry{
		Time:    time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC),
		Level:   logrus.InfoLevel,
		Message: "Scope committed",
		Data:    logrus.Fields{"scope": "abc", "attempt": 1},
	}
	out, err := f.Format(entry)
	require.NoError(t, err)

	line := string(out)
	assert.True(t, strings.HasPrefix(line, "2025-01-02 15:04:05.000    INFO"))
	assert.Contains(t, line, "  DATABASE : Scope committed attempt=1 scope=abc")
	assert.True(t, strings.HasSuffix(line, "\n"))
}

func TestRegistryLevels(t *testing.T) {
	var buf bytes.Buffer
	SetConsoleOutput(&buf)
	defer SetConsoleOutput(os.Stdout)

	l := NewLogger("REGTEST")
	assert.Same(t, l, GetLogger("REGTEST"))

	require.True(t, SetLoggerLevel("REGTEST", "error"))
	assert.Equal(t, logrus.ErrorLevel, l.GetLevel())
	assert.False(t, SetLoggerLevel("MISSING", "debug"))

	l.Info("hidden")
	l.Error("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("DOCSTORE_TEST_BOOL", "true")
	t.Setenv("DOCSTORE_TEST_BAD", "maybe")
	t.Setenv("DOCSTORE_TEST_STR", "value")

	assert.True(t, EnvDefaultBool("DOCSTORE_TEST_BOOL", false))
	assert.True(t, EnvDefaultBool("DOCSTORE_TEST_BAD", true))
	assert.False(t, EnvDefaultBool("DOCSTORE_TEST_UNSET", false))
	assert.Equal(t, "value", EnvDefaultString("DOCSTORE_TEST_STR", "x"))
	assert.Equal(t, "x", EnvDefaultString("DOCSTORE_TEST_UNSET", "x"))
}
