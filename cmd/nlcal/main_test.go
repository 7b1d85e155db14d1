package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlcal/internal/config"
)

// fakeOracle answers every chat completion with content.
func fakeOracle(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		body, _ := json.Marshal(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"choices": []map[string]any{{"index": 0, "message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"}},
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, oracleURL string, mutate func(*config.Config)) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Backend = config.BackendICS
	cfg.ICS.Path = filepath.Join(dir, "calendar.ics")
	cfg.Oracle.BaseURL = oracleURL + "/v1"
	cfg.Oracle.APIKey = "test"
	cfg.LogLevel = "error"
	if mutate != nil {
		mutate(cfg)
	}
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, cfg.Save(path))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func TestAskAddsEventToICSFile(t *testing.T) {
	date := time.Now().AddDate(0, 0, 2).Format("2006-01-02")
	srv := fakeOracle(t, fmt.Sprintf(`{"action":"add","title":"Dentist","start":"","end":"","date":%q,"details":"","target_event":""}`, date))
	cfgPath := writeConfig(t, srv.URL, nil)

	out, err := run(t, "--config", cfgPath, "ask", "dentist", "in", "two", "days")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, `Added "Dentist" on `), out)
	assert.Contains(t, out, "at 09:00.")

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	data, err := os.ReadFile(cfg.ICS.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "SUMMARY:Dentist")
}

func TestAskUnparseableReply(t *testing.T) {
	srv := fakeOracle(t, "Sure! Here you go.")
	cfgPath := writeConfig(t, srv.URL, nil)

	out, err := run(t, "--config", cfgPath, "ask", "add lunch")
	require.NoError(t, err)
	assert.Equal(t, "I couldn't understand that request. Please rephrase.\n", out)
}

func TestStatus(t *testing.T) {
	srv := fakeOracle(t, "{}")

	out, err := run(t, "--config", writeConfig(t, srv.URL, nil), "status")
	require.NoError(t, err)
	assert.Equal(t, "backend=ics connected=true\n", out)

	googleCfg := writeConfig(t, srv.URL, func(c *config.Config) { c.Backend = config.BackendGoogle })
	out, err = run(t, "--config", googleCfg, "status")
	require.NoError(t, err)
	assert.Equal(t, "backend=google connected=false\n", out)

	tokenFile := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(tokenFile, []byte(`{"access_token":"abc","token_type":"Bearer"}`), 0o600))
	out, err = run(t, "--config", googleCfg, "status", "--token-file", tokenFile)
	require.NoError(t, err)
	assert.Equal(t, "backend=google connected=true\n", out)
}

func TestStartSchedulerRejectsBadSchedule(t *testing.T) {
	srv := fakeOracle(t, "{}")
	cfgPath := writeConfig(t, srv.URL, func(c *config.Config) { c.ICS.ReloadCron = "every so often" })
	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)

	a, err := buildApp(cfg)
	require.NoError(t, err)
	_, err = a.startScheduler(t.Context())
	assert.Error(t, err)
}
