package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
		level      string
		wantErr    bool
	}{
		{name: "JSON output mode", jsonOutput: true, level: "info"},
		{name: "Console output mode", jsonOutput: false, level: ""},
		{name: "Debug level", jsonOutput: false, level: "DEBUG"},
		{name: "Unknown level", jsonOutput: false, level: "chatty", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			previous := Logger
			t.Cleanup(func() {
				Logger = previous
				JSONOutput = false
			})

			err := Initialize(tt.jsonOutput, tt.level)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)
		})
	}
}

func TestFieldsFromContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, FieldsFromContext(ctx))

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithComponent(ctx, "server")

	fields := FieldsFromContext(ctx)
	assert.Equal(t, []interface{}{FieldRequestID, "req-1", FieldComponent, "server"}, fields)
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
}

func TestLoggerFromContextFallsBackToGlobal(t *testing.T) {
	assert.Same(t, Logger, LoggerFromContext(context.Background()))
	assert.NotNil(t, LoggerFromContext(WithRequestID(context.Background(), "abc")))
}

func TestComponentLogger(t *testing.T) {
	assert.NotNil(t, ComponentLogger("syncer"))
}
