package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Await-d/maple-blog-sub005/internal/api"
	"github.com/Await-d/maple-blog-sub005/internal/monitoring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile = ""

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`
monitor:
  collection_interval: 30s
rules:
  - {name: cpu, metric: system.cpu_percent, operator: ">", threshold: 90}
`), 0o600))

	out, err := execute(t, "validate", "--config", good)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration OK")
	assert.Contains(t, out, "30s")
	assert.Contains(t, out, "Alert rules         : 1")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("monitor:\n  collection_interval: -1s\n"), 0o600))

	_, err = execute(t, "validate", "--config", bad)
	assert.Error(t, err)
}

func startStatusServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := zaptest.NewLogger(t)

	monCfg := monitoring.DefaultConfig()
	monCfg.CollectionInterval = time.Minute
	monCfg.RetentionDuration = time.Hour
	mon, err := monitoring.NewMonitor(logger, monCfg)
	require.NoError(t, err)
	require.NoError(t, mon.RegisterCollector("system", monitoring.CollectorFunc(func(context.Context) []monitoring.GroupResult {
		return []monitoring.GroupResult{monitoring.NewGroupResult("system", map[string]monitoring.Value{
			"cpu_percent": monitoring.Number(1234.5),
		})}
	})))
	require.NoError(t, mon.RegisterAlertRule(monitoring.AlertRule{
		Name:      "cpu",
		Metric:    "system.cpu_percent",
		Operator:  ">",
		Threshold: 1000,
		Level:     monitoring.LevelCritical,
		Message:   "cpu is melting",
	}))
	_, err = mon.CollectNow(context.Background())
	require.NoError(t, err)

	srv, err := api.NewServer(api.Config{Enabled: true}, logger, mon, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestStatusCommand(t *testing.T) {
	ts := startStatusServer(t)

	t.Run("table", func(t *testing.T) {
		out, err := execute(t, "status", "--api-url", ts.URL)
		require.NoError(t, err)
		assert.Contains(t, out, "1 run, 0 skipped, 0 failed")
		assert.Contains(t, out, "[CRITICAL] cpu: system.cpu_percent > 1,000.00")
		assert.Contains(t, out, "value=1,234.50 cpu is melting")
	})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, "status", "--api-url", ts.URL, "--format", "json")
		require.NoError(t, err)

		var report StatusReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.Equal(t, 1, report.Status.Snapshots)
		require.Len(t, report.Alerts, 1)
		assert.Equal(t, monitoring.LevelCritical, report.Alerts[0].Level)
	})

	t.Run("yaml", func(t *testing.T) {
		out, err := execute(t, "status", "--api-url", ts.URL, "--format", "yaml")
		require.NoError(t, err)

		var doc map[string]interface{}
		require.NoError(t, yaml.Unmarshal([]byte(out), &doc))
		assert.Contains(t, doc, "status")
		assert.Contains(t, doc, "alerts")
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := execute(t, "status", "--api-url", ts.URL, "--format", "xml")
		assert.Error(t, err)
	})
}

func TestStatusCommandUnreachable(t *testing.T) {
	_, err := execute(t, "status", "--api-url", "http://127.0.0.1:1", "--timeout", "1s")
	assert.Error(t, err)
}
