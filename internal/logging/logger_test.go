package logging

import (
	"testing"

	"github.com/ctrlpath/evalcore/internal/flagconfig"
	"github.com/stretchr/testify/require"
)

func TestNewAcceptsKnownLevelsAndFormats(t *testing.T) {
	logger, err := New(flagconfig.LoggingConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(flagconfig.LoggingConfig{Level: "verbose"})
	require.Error(t, err)
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := New(flagconfig.LoggingConfig{Format: "binary"})
	require.Error(t, err)
}

func TestSubDerivesComponentLogger(t *testing.T) {
	base, err := New(flagconfig.LoggingConfig{})
	require.NoError(t, err)
	sub := Sub(base, "resolver")
	require.NotNil(t, sub)
}
