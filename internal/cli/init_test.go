package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetshare/internal/config"
	"budgetshare/internal/log"
)

func TestGracefulShutdownRunsEveryStep(t *testing.T) {
	logger := log.New(log.Config{Output: io.Discard})
	var order []string
	GracefulShutdown(logger, time.Second,
		func(context.Context) error { order = append(order, "http"); return errors.New("boom") },
		nil,
		func(ctx context.Context) error {
			_, ok := ctx.Deadline()
			assert.True(t, ok)
			order = append(order, "store")
			return nil
		},
	)
	assert.Equal(t, []string{"http", "store"}, order)
}

func TestLoadAndValidateConfig(t *testing.T) {
	t.Setenv("PORT", "9090")
	cfg, err := LoadAndValidateConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)

	_, err = LoadAndValidateConfig(func(*config.Config) error { return errors.New("invalid") })
	assert.EqualError(t, err, "invalid")
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("BUDGETSHARE_CLI_TEST=from-file\n"), 0o600))
	t.Setenv("BUDGETSHARE_CLI_TEST", "")
	require.NoError(t, os.Unsetenv("BUDGETSHARE_CLI_TEST"))

	LoadEnvFile(path)
	assert.Equal(t, "from-file", os.Getenv("BUDGETSHARE_CLI_TEST"))
}

func TestEveryStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := make(chan struct{}, 10)
	done := make(chan struct{})
	go func() {
		Every(ctx, 5*time.Millisecond, func(context.Context) { calls <- struct{}{} })
		close(done)
	}()
	<-calls
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Every did not return after cancel")
	}
}
