package app

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/charlesng35/waitlist/pkg/logger"
)

func TestConfigureLogging(t *testing.T) {
	t.Cleanup(logger.Replace(logger.Logger()))

	require.NoError(t, ConfigureLogging(""))
	require.True(t, logger.Logger().Core().Enabled(zapcore.InfoLevel))
	require.False(t, logger.Logger().Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, ConfigureLoggingWithEncoding("warn", "console"))
	require.False(t, logger.Logger().Core().Enabled(zapcore.InfoLevel))
	require.True(t, logger.Logger().Core().Enabled(zapcore.WarnLevel))
}
