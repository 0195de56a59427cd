package logger

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestLogRegistry(t *testing.T) {
	r, err := NewLogRegistry("*=warning,Resolver=debug")
	require.NoError(t, err)
	require.Equal(t, logrus.DebugLevel, r.GetLogLevel("Resolver"))
	require.Equal(t, logrus.WarnLevel, r.GetLogLevel("Store"))

	factory := makeLogrusLogFactory(r, nil, &logrus.TextFormatter{}, true)
	log := factory("Store").(*LogrusLogger)
	require.Equal(t, logrus.WarnLevel, log.Logger.GetLevel())

	r.SetDefaultLevel(logrus.TraceLevel)
	require.Equal(t, logrus.TraceLevel, log.Logger.GetLevel())
	require.Equal(t, logrus.DebugLevel, r.GetLogLevel("Resolver"))

	r.SetLogLevel("Store", logrus.ErrorLevel)
	require.Equal(t, logrus.ErrorLevel, log.Logger.GetLevel())
}

func TestLogRegistryInvalidConfig(t *testing.T) {
	_, err := NewLogRegistry("Store")
	require.Error(t, err)
	_, err = NewLogRegistry("Store=loud")
	require.Error(t, err)
}
