package log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "github.com/YuminosukeSato/xgbport/pkg/errors"
)

func TestLoggerLevels(t *testing.T) {
	testLogger, buffer := NewTestLogger(LevelDebug)

	testLogger.Debug("debug message", "key1", "value1", "number", 42)
	testLogger.Info("info message", OperationKey, OperationDecode)
	testLogger.Warn("warning message", "warning_code", "UNUSED_FEATURE")
	testLogger.Error("error message", xerrors.NewStructuralError("prune", "default child collision"))

	require.NotEmpty(t, buffer.String())
	assert.True(t, testLogger.ContainsMessage("debug message"))
	assert.True(t, testLogger.ContainsMessage("info message"))
	assert.True(t, testLogger.ContainsMessage("warning message"))
	assert.True(t, testLogger.ContainsMessage("error message"))

	assert.True(t, testLogger.ContainsField("key1", "value1"))
	assert.True(t, testLogger.ContainsField("number", 42.0))
	assert.True(t, testLogger.ContainsField(OperationKey, OperationDecode))
	assert.True(t, testLogger.ContainsField("error", "xgbport: prune: default child collision"))
}

func TestLoggerWith(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelDebug)

	contextLogger := testLogger.With(
		ModelFormatKey, "ubjson",
		ComponentKey, "xgboost.decoder",
	)
	contextLogger.Info("learner decoded", TreesKey, 3)

	assert.True(t, testLogger.ContainsField(ModelFormatKey, "ubjson"))
	assert.True(t, testLogger.ContainsField(ComponentKey, "xgboost.decoder"))
	assert.True(t, testLogger.ContainsField(TreesKey, 3.0))
}

func TestLoggerEnabled(t *testing.T) {
	testLogger, _ := NewTestLogger(LevelInfo)
	ctx := context.Background()

	assert.True(t, testLogger.Enabled(ctx, LevelInfo))
	assert.True(t, testLogger.Enabled(ctx, LevelError))
	assert.False(t, testLogger.Enabled(ctx, LevelDebug))

	testLogger.Debug("this should not appear")
	testLogger.Info("this should appear")

	assert.False(t, testLogger.ContainsMessage("this should not appear"))
	assert.True(t, testLogger.ContainsMessage("this should appear"))
}

func TestProvider(t *testing.T) {
	p, _ := NewTestLoggerProvider(LevelInfo)
	SetProvider(p)
	defer SetProvider(newZerologProvider(nil, LevelWarn))

	GetLoggerWithName("pmml.treeopt").Info("tree compacted", NodesKey, 7)
	assert.True(t, p.Logger().ContainsField(ComponentKey, "pmml.treeopt"))

	SetLevel(LevelError)
	GetLogger().Info("suppressed")
	assert.False(t, p.Logger().ContainsMessage("suppressed"))
}

func TestToLogLevel(t *testing.T) {
	testCases := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{input: "debug", want: LevelDebug},
		{input: "INFO", want: LevelInfo},
		{input: "warn", want: LevelWarn},
		{input: "error", want: LevelError},
		{input: "verbose", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ToLogLevel(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.NotEqual(t, "UNKNOWN", got.String())
		})
	}
}
