//go:build integration

package observability_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/bifrost/internal/cache"
	"github.com/rafaeljc/bifrost/internal/catalog"
	"github.com/rafaeljc/bifrost/internal/config"
	"github.com/rafaeljc/bifrost/internal/database"
	"github.com/rafaeljc/bifrost/internal/logger"
	"github.com/rafaeljc/bifrost/internal/observability"
	"github.com/rafaeljc/bifrost/internal/testsupport"
)

func TestObservabilityServer_Integration(t *testing.T) {
	ctx := context.Background()

	pgContainer, err := testsupport.StartPostgresContainer(ctx, "../../migrations")
	require.NoError(t, err)
	defer pgContainer.Terminate(ctx)

	redisContainer, err := testsupport.StartRedisContainer(ctx)
	require.NoError(t, err)
	defer redisContainer.Terminate(ctx)

	cat := catalog.New(nil)
	require.NoError(t, cat.Load([]byte(`{}`), []byte(`{}`)))

	freePort, err := getFreePort()
	require.NoError(t, err)

	// Non-default paths prove the server honours its configuration.
	obsCfg := &config.ObservabilityConfig{
		Port:          fmt.Sprintf("%d", freePort),
		Timeout:       time.Second,
		LivenessPath:  "/alive",
		ReadinessPath: "/check-deps",
		MetricsPath:   "/telemetry",
	}

	log := logger.New(&config.AppConfig{
		Name:        "bifrost-test",
		Version:     "v0.0.0-test",
		Environment: "development",
		LogLevel:    "debug",
		LogFormat:   "text",
	})

	server := observability.NewServer(log, obsCfg,
		database.NewHealthChecker(pgContainer.DB),
		cache.NewHealthChecker(redisContainer.Client),
		catalog.NewHealthChecker(cat),
	)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- server.Run(runCtx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	baseURL := fmt.Sprintf("http://localhost:%d", freePort)

	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + obsCfg.LivenessPath)
		if err == nil {
			resp.Body.Close()
			return resp.StatusCode == http.StatusOK
		}
		return false
	}, 5*time.Second, 100*time.Millisecond, "server failed to start")

	t.Run("metrics are exposed on the custom path", func(t *testing.T) {
		resp, err := http.Get(baseURL + obsCfg.MetricsPath)
		require.NoError(t, err)
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), "go_goroutines")
		assert.Contains(t, string(body), "bifrost_")
	})

	t.Run("ready when all dependencies are healthy", func(t *testing.T) {
		resp, err := http.Get(baseURL + obsCfg.ReadinessPath)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var report observability.ReadinessReport
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
		assert.True(t, report.Ready)
		assert.Equal(t, "up", report.Status["postgres"])
		assert.Equal(t, "up", report.Status["redis"])
		assert.Equal(t, "up", report.Status["catalog"])
	})

	t.Run("not ready when redis is down", func(t *testing.T) {
		require.NoError(t, redisContainer.Container.Stop(ctx, nil))
		time.Sleep(200 * time.Millisecond)

		resp, err := http.Get(baseURL + obsCfg.ReadinessPath)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var report observability.ReadinessReport
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
		assert.False(t, report.Ready)
		assert.Contains(t, report.Status["redis"], "down")
		assert.Equal(t, "up", report.Status["postgres"])
	})
}

// getFreePort asks the kernel for a free TCP port.
func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}
	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
