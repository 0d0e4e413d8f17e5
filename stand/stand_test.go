package stand

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestDemoConfig(t *testing.T) {
	stand, err := New(DemoConfig())
	require.NoError(t, err)

	ports := stand.Segment().Ports()
	require.Len(t, ports, 2)
	require.Equal(t, "a", ports[0].Name)
	require.Equal(t, "b", ports[1].Name)

	// One simulated second in, the demo flow has resolved "b" and
	// delivered its first datagram.
	stand.Segment().Tick(time.Second)
	stand.Segment().Settle(8)

	state, ok := stand.Segment().Port("b")
	require.True(t, ok)
	require.Equal(t, uint64(1), state.Received)
	require.Len(t, state.Neighbours, 1)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ethane.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logging:
  level: debug
api:
  addr: 127.0.0.1:9999
link:
  cache_ttl: 10s
  resolve_ttl: 2s
  max_pending_bytes: 64KB
segment:
  step_interval: 5ms
  hosts:
    - name: a
      hwaddr: aa:aa:aa:aa:aa:aa
      addr: 1.1.1.1
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, zapcore.DebugLevel, cfg.Logging.Level)
	require.Equal(t, "127.0.0.1:9999", cfg.API.Addr)
	require.Equal(t, 10*time.Second, cfg.Link.CacheTTL)
	require.Equal(t, 2*time.Second, cfg.Link.ResolveTTL)
	require.Equal(t, 64*datasize.KB, cfg.Link.MaxPendingBytes)
	require.Equal(t, 5*time.Millisecond, cfg.Segment.StepInterval)
	require.Len(t, cfg.Segment.Hosts, 1)
	require.Equal(t, "a", cfg.Segment.Hosts[0].Name)

	// The stand built from it must come up.
	_, err = New(cfg)
	require.NoError(t, err)
}

func TestLoadConfigKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  addr: :8080\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.API.Addr)

	// Sections the file does not mention keep their defaults.
	require.Equal(t, 30*time.Second, cfg.Link.CacheTTL)
	require.Equal(t, 5*time.Second, cfg.Link.ResolveTTL)
	require.Equal(t, zapcore.InfoLevel, cfg.Logging.Level)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
