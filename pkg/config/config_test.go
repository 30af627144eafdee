package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/delivery"
	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/trace"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, trace.DefaultBodyCap, cfg.BodyCap)
	assert.Equal(t, delivery.DefaultQueueCapacity, cfg.QueueCapacity)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Empty(t, cfg.Receiver)
}

func TestParse_FullConfig(t *testing.T) {
	cfg, err := Parse([]byte(`
receiver: wss://collector.example/ingest
bodyCap: 32768
queueCapacity: 512
filter: 'statusCode >= 400'
log:
  level: debug
  format: json
`))
	require.NoError(t, err)
	assert.Equal(t, "wss://collector.example/ingest", cfg.Receiver)
	assert.Equal(t, 32768, cfg.BodyCap)
	assert.Equal(t, 512, cfg.QueueCapacity)
	assert.Equal(t, "statusCode >= 400", cfg.Filter)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.WebSocketReceiver())
}

func TestParse_UnsetFieldsFallBack(t *testing.T) {
	cfg, err := Parse([]byte(`receiver: 127.0.0.1:9021`))
	require.NoError(t, err)
	assert.Equal(t, trace.DefaultBodyCap, cfg.BodyCap)
	assert.Equal(t, delivery.DefaultQueueCapacity, cfg.QueueCapacity)
	assert.False(t, cfg.WebSocketReceiver())
}

func TestParse_NegativeValuesFallBack(t *testing.T) {
	cfg, err := Parse([]byte("bodyCap: -1\nqueueCapacity: -5\n"))
	require.NoError(t, err)
	assert.Equal(t, trace.DefaultBodyCap, cfg.BodyCap)
	assert.Equal(t, delivery.DefaultQueueCapacity, cfg.QueueCapacity)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("receiver: [unclosed"))
	assert.Error(t, err)
}

func TestValidate_Receiver(t *testing.T) {
	tests := []struct {
		receiver string
		valid    bool
	}{
		{"", true},
		{"ws://localhost:9021/ingest", true},
		{"wss://collector.example/ingest", true},
		{"127.0.0.1:9021", true},
		{"collector.example:443", true},
		{"ws://", false},
		{"collector.example", false},
		{":9021", false},
		{"collector.example:", false},
	}
	for _, tt := range tests {
		t.Run(tt.receiver, func(t *testing.T) {
			cfg := Default()
			cfg.Receiver = tt.receiver
			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tracer.yaml")
	require.NoError(t, os.WriteFile(path, []byte("receiver: ws://localhost:9021/ingest\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:9021/ingest", cfg.Receiver)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
