package logger

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogrusFields(t *testing.T) {
	buf := &bytes.Buffer{}
	l := logrus.New()
	l.Out = buf
	l.Level = logrus.DebugLevel
	l.Formatter = &logrus.JSONFormatter{}

	NewLogrus(l).Debug("split", "page", 12, "height", 2, "dangling")
	require.Contains(t, buf.String(), `"page":12`)
	require.Contains(t, buf.String(), `"height":2`)
	require.Contains(t, buf.String(), `"msg":"split"`)
}

func TestZap(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	NewZap(zap.New(core)).Warn("underflow", "page", 3)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	require.Equal(t, "underflow", entry.Message)
	require.Equal(t, int64(3), entry.ContextMap()["page"])
}

func TestSetLevel(t *testing.T) {
	defer L.SetLevel(logrus.InfoLevel)

	require.NoError(t, SetLevel("debug"))
	require.Equal(t, logrus.DebugLevel, L.GetLevel())
	require.Error(t, SetLevel("loud"))

	var d Discard
	d.Error("ignored", "k", "v")
}
