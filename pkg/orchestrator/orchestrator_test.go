package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showrunner-io/showrunner/pkg/config"
	"github.com/showrunner-io/showrunner/pkg/services"
	testdb "github.com/showrunner-io/showrunner/test/database"
)

func bootConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Initialize(context.Background(), "")
	require.NoError(t, err)

	cfg.DataDir = t.TempDir()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0

	// Point credential lookups at names nothing sets, so the test sees
	// the degraded-surface path regardless of the host environment.
	cfg.LLM.APIKeyEnv = "BOOT_TEST_ABSENT_API_KEY"
	cfg.Platform.Twitter.Enabled = true
	cfg.Platform.Twitter.BearerTokenEnv = "BOOT_TEST_ABSENT_BEARER"
	return cfg
}

func TestOrchestratorBootAndShutdown(t *testing.T) {
	client := testdb.NewTestClient(t)
	cfg := bootConfig(t)

	o := New(cfg, client)

	// Construction already recorded what the daemon came up without.
	status := o.SystemStatus(context.Background())
	sources := map[string]string{}
	for _, w := range status.Warnings {
		sources[w.Source] = w.Category
	}
	assert.Equal(t, services.WarningCategoryModel, sources["router"])
	assert.Equal(t, services.WarningCategoryPlatform, sources["twitter"])
	assert.NotEmpty(t, status.Instance)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	// Boot writes the liveness record and installs the periodic jobs.
	statusPath := filepath.Join(cfg.DataDir, "status.json")
	require.Eventually(t, func() bool {
		sf, err := readStatus(statusPath)
		return err == nil && sf != nil && sf.Online
	}, 15*time.Second, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		ids := map[string]bool{}
		for _, e := range o.SystemStatus(context.Background()).Jobs {
			ids[e.ID] = true
		}
		return ids[jobResearchFull] && ids[jobDailyPlan] && ids[jobDailyReport] &&
			ids[jobInboxPoll] && ids[jobMentionMonitor] && ids[jobContentGapBoot]
	}, 15*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(45 * time.Second):
		t.Fatal("orchestrator did not shut down")
	}

	// The offline record lands on the way out.
	sf, err := readStatus(statusPath)
	require.NoError(t, err)
	require.NotNil(t, sf)
	assert.False(t, sf.Online)
	assert.Equal(t, "stopped", sf.Status)
}

func TestStatusFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")

	sf, err := readStatus(path)
	require.NoError(t, err)
	assert.Nil(t, sf, "missing file reads as no record")

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, writeStatus(path, true, "running", now))

	sf, err = readStatus(path)
	require.NoError(t, err)
	require.NotNil(t, sf)
	assert.True(t, sf.Online)
	assert.Equal(t, "running", sf.Status)
	assert.True(t, sf.TimestampUTC.Equal(now))

	// No leftover temp file from the atomic replace.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err = readStatus(path)
	assert.Error(t, err)
}

func TestShouldAnnounce(t *testing.T) {
	now := time.Now().UTC()
	gap := 5 * time.Minute

	tests := []struct {
		name string
		prev *statusFile
		want bool
	}{
		{"no previous record", nil, true},
		{"previous process stopped cleanly", &statusFile{Online: false, TimestampUTC: now.Add(-time.Minute)}, true},
		{"heartbeat went stale", &statusFile{Online: true, TimestampUTC: now.Add(-10 * time.Minute)}, true},
		{"quick restart inside window", &statusFile{Online: true, TimestampUTC: now.Add(-30 * time.Second)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldAnnounce(tt.prev, now, gap))
		})
	}
}

func TestStatusFileAtomicFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	require.NoError(t, writeStatus(path, true, "running", time.Now().UTC()))

	// Sibling tooling parses this file; keep the field names stable.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "online")
	assert.Contains(t, raw, "timestamp_utc")
	assert.Contains(t, raw, "status")
}

func TestResolveInstance(t *testing.T) {
	t.Setenv("INSTANCE_ID", "operator-7")
	assert.Equal(t, "operator-7", resolveInstance())

	t.Setenv("INSTANCE_ID", "")
	assert.NotEmpty(t, resolveInstance(), "falls back to hostname")
}
