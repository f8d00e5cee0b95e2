package main

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"budgetshare/internal/api"
	"budgetshare/internal/client"
	"budgetshare/internal/core"
	apphttp "budgetshare/internal/http"
	"budgetshare/internal/log"
	"budgetshare/internal/services"
	"budgetshare/internal/storage/memory"
)

func startServer(t *testing.T) string {
	t.Helper()
	logger := log.New(log.Config{Output: io.Discard})
	store := memory.New()
	auth := services.NewAuth(store, nil, services.AuthConfig{SessionTTL: time.Hour, BcryptCost: bcrypt.MinCost}, logger)
	ledger := services.NewLedger(store, auth, nil, services.NewInviteSigner("ctl-secret-ctl-secret"), services.LedgerConfig{}, logger)
	srv := apphttp.NewServer(apphttp.Config{RateLimitPerMinute: 1000}, ledger, auth, nil, logger)

	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(context.Background())
	})
	return ts.URL
}

// ctl runs budgetctl with its config file at cfgPath.
func ctl(t *testing.T, cfgPath, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := &app{in: bufio.NewReader(strings.NewReader(stdin)), out: &out, now: time.Now}
	root := newRootCmd(a)
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "budgetctl.toml")

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, defaultServer, cfg.Server)

	expires := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg.Server = "https://budget.example.com"
	cfg.Session = sessionConfig{Token: "tok", Email: "ada@example.com", ExpiresAt: expires}
	require.NoError(t, saveConfig(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Server, loaded.Server)
	assert.Equal(t, "tok", loaded.Session.Token)
	assert.True(t, expires.Equal(loaded.Session.ExpiresAt))
}

func TestLoadConfigRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "budgetctl.toml")
	require.NoError(t, os.WriteFile(path, []byte("server = [unterminated"), 0o600))
	_, err := loadConfig(path)
	assert.Error(t, err)
}

func TestSessionValidity(t *testing.T) {
	now := time.Now()
	assert.False(t, sessionConfig{}.valid(now))
	assert.True(t, sessionConfig{Token: "t"}.valid(now))
	assert.True(t, sessionConfig{Token: "t", ExpiresAt: now.Add(time.Minute)}.valid(now))
	assert.False(t, sessionConfig{Token: "t", ExpiresAt: now.Add(-time.Minute)}.valid(now))
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "€0.05", formatMoney(5))
	assert.Equal(t, "€1,234.50", formatMoney(123450))
	assert.Equal(t, "-€12.00", formatMoney(-1200))
	assert.Equal(t, "-€3.20", formatSigned(320, "expense"))
	assert.Equal(t, "+€3.20", formatSigned(320, "income"))
	assert.Equal(t, "-", formatWhen(time.Time{}))
	assert.Contains(t, formatWhen(time.Now().Add(-2*time.Hour)), "ago")
}

func TestParseHelpers(t *testing.T) {
	y, m, err := parseMonth("2026-02")
	require.NoError(t, err)
	assert.Equal(t, 2026, y)
	assert.Equal(t, 2, m)
	_, _, err = parseMonth("02/2026")
	assert.Error(t, err)

	id, err := parseID("#12")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
	_, err = parseID("0")
	assert.Error(t, err)
}

func TestFilterTransactions(t *testing.T) {
	txs := []api.Transaction{
		{ID: 1, Date: "2026-01-05", Category: "Food"},
		{ID: 2, Date: "2026-02-01", Category: "food"},
		{ID: 3, Date: "2026-02-11", Category: "Rent"},
	}
	got, err := filterTransactions(txs, "2026-02", "Food")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Len(t, txs, 3)

	_, err = filterTransactions(txs, "feb", "")
	assert.Error(t, err)
}

func TestTableRender(t *testing.T) {
	out := table{
		title:   "Budgets",
		headers: []string{"Category", "Limit"},
		rows:    [][]string{{"Food", "€100.00"}, {"Entertainment", "€5.00"}},
		right:   map[int]bool{1: true},
	}.render()

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 7)
	assert.Contains(t, lines[0], "Budgets")
	assert.Contains(t, out, "Entertainment")
	assert.Contains(t, out, "€100.00")
}

func TestDescribeError(t *testing.T) {
	assert.Equal(t, "Only the admin can do that.", describeError(&client.RejectError{Kind: api.KindNotAdmin, Message: "Only the admin can do that."}))
	assert.Equal(t, core.InviteExpired.Message(), describeError(&client.RejectError{Kind: string(core.InviteExpired)}))
	assert.Contains(t, describeError(&client.RejectError{Kind: api.KindNotAuthenticated}), "budgetctl login")
}

func TestCommandsRequireLogin(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "budgetctl.toml")
	_, err := ctl(t, cfgPath, "", "tx", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not signed in")

	out, err := ctl(t, cfgPath, "", "logout")
	require.NoError(t, err)
	assert.Contains(t, out, "Not signed in")
}

func TestWorkflowAgainstServer(t *testing.T) {
	url := startServer(t)
	dir := t.TempDir()
	adminCfg := filepath.Join(dir, "admin.toml")
	memberCfg := filepath.Join(dir, "member.toml")

	_, err := ctl(t, adminCfg, "", "--server", url, "register", "-e", "ada@example.com", "-n", "Ada", "-p", "password1")
	require.NoError(t, err)
	// Server URL comes from the flag on first use and from the saved file after login.
	out, err := ctl(t, adminCfg, "ada@example.com\npassword1\n", "--server", url, "login")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as Ada (admin)")

	out, err = ctl(t, adminCfg, "", "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "ada@example.com")

	_, err = ctl(t, memberCfg, "", "--server", url, "register", "-e", "mel@example.com", "-n", "Mel", "-p", "password1")
	require.NoError(t, err)
	_, err = ctl(t, memberCfg, "", "--server", url, "login", "-e", "mel@example.com", "-p", "password1")
	require.NoError(t, err)

	_, err = ctl(t, memberCfg, "", "tx", "list")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrAccessDenied)

	link, err := ctl(t, adminCfg, "", "invite", "create")
	require.NoError(t, err)
	_, err = ctl(t, memberCfg, "", "invite", "accept", strings.TrimSpace(link))
	require.NoError(t, err)

	out, err = ctl(t, memberCfg, "", "tx", "add", "--desc", "Groceries", "-a", "32,10", "-c", "Food")
	require.NoError(t, err)
	assert.Contains(t, out, "Added #1 Groceries -€32.10")

	_, err = ctl(t, memberCfg, "", "tx", "add", "--desc", "Salary", "-a", "1500", "-k", "income", "-c", "Work")
	require.NoError(t, err)

	_, err = ctl(t, memberCfg, "", "tx", "update", "1", "-a", "40")
	require.NoError(t, err)

	out, err = ctl(t, adminCfg, "", "tx", "list", "-c", "food")
	require.NoError(t, err)
	assert.Contains(t, out, "Groceries")
	assert.Contains(t, out, "-€40.00")
	assert.NotContains(t, out, "Salary")

	_, err = ctl(t, memberCfg, "", "budget", "set", "Food", "100")
	require.NoError(t, err)
	_, err = ctl(t, memberCfg, "", "users", "list")
	assert.ErrorIs(t, err, core.ErrNotAdmin)

	out, err = ctl(t, memberCfg, "", "budget", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "€60.00")
	assert.Contains(t, out, "40%")

	out, err = ctl(t, memberCfg, "", "summary")
	require.NoError(t, err)
	assert.Contains(t, out, "€1,500.00")
	assert.Contains(t, out, "€1,460.00")

	_, err = ctl(t, memberCfg, "", "tx", "delete", "2")
	require.NoError(t, err)

	out, err = ctl(t, adminCfg, "", "users", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "mel@example.com")
	_, err = ctl(t, adminCfg, "", "users", "revoke", "mel@example.com")
	require.NoError(t, err)
	_, err = ctl(t, memberCfg, "", "tx", "list")
	assert.ErrorIs(t, err, core.ErrAccessDenied)

	_, err = ctl(t, adminCfg, "", "logout")
	require.NoError(t, err)
	cfg, err := loadConfig(adminCfg)
	require.NoError(t, err)
	assert.Empty(t, cfg.Session.Token)
	assert.Equal(t, url, cfg.Server)
}
