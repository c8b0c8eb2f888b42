package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gpio-remote/internal/audit"
	"github.com/nerrad567/gpio-remote/internal/credentials"
	"github.com/nerrad567/gpio-remote/internal/infrastructure/mqtt/mqtttest"
	"github.com/nerrad567/gpio-remote/internal/rules"
)

// syncBuffer is a bytes.Buffer safe for a command writing from another
// goroutine while the test reads.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testEnv is a temp directory holding a config file and the credential cache.
type testEnv struct {
	dir        string
	configPath string
	cachePath  string
}

func newTestEnv(t *testing.T, extra string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config.yaml"),
		cachePath:  filepath.Join(dir, "credentials.json"),
	}

	yaml := fmt.Sprintf(`credentials:
  cache_path: %q
audit:
  sink: none
database:
  driver: sqlite3
  path: %q
logging:
  level: warn
%s`, env.cachePath, filepath.Join(dir, "audit.db"), extra)

	if err := os.WriteFile(env.configPath, []byte(yaml), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return env
}

// login stores working credentials in the cache.
func (e *testEnv) login(t *testing.T) {
	t.Helper()
	creds := credentials.Credentials{Identity: "ana", Secret: "pw", Deployment: "k1d2e3"}
	if err := credentials.NewFileCache(e.cachePath).Save(creds); err != nil {
		t.Fatalf("saving credentials: %v", err)
	}
}

// useFake routes every session opened by the commands to fake.
func useFake(t *testing.T, fake *mqtttest.Client) {
	t.Helper()
	clientFactory = fake.Factory()
	t.Cleanup(func() { clientFactory = nil })
}

func runCmd(ctx context.Context, env *testEnv, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	if env != nil {
		args = append([]string{"--config", env.configPath}, args...)
	}
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// deliverWhenSubscribed delivers payload once the session has subscribed
// topic. It runs on its own goroutine, so it gives up silently.
func deliverWhenSubscribed(fake *mqtttest.Client, topic string, payload []byte) {
	deadline := time.Now().Add(3 * time.Second)
	for !subscribedTo(fake, topic) {
		if time.Now().After(deadline) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	fake.Deliver(topic, payload)
}

func subscribedTo(fake *mqtttest.Client, topic string) bool {
	for _, s := range fake.Subscribed() {
		if s == topic {
			return true
		}
	}
	return false
}

// ─── Version and Help ──────────────────────────────────────────────

func TestVersion(t *testing.T) {
	out, _, err := runCmd(context.Background(), nil, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "gpioremote dev (commit: unknown") {
		t.Errorf("version output = %q", out)
	}
}

func TestHelp_ListsCommands(t *testing.T) {
	out, _, err := runCmd(context.Background(), nil, "--help")
	if err != nil {
		t.Fatalf("help error = %v", err)
	}
	for _, name := range []string{"login", "logout", "monitor", "gpio", "rules", "logs", "serve"} {
		if !strings.Contains(out, name) {
			t.Errorf("help output missing %q", name)
		}
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("GPIOREMOTE_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}
	t.Setenv("GPIOREMOTE_CONFIG", "/etc/gpioremote.yaml")
	if got := getConfigPath(); got != "/etc/gpioremote.yaml" {
		t.Errorf("getConfigPath() = %q, want /etc/gpioremote.yaml", got)
	}
}

// ─── Login and Logout ──────────────────────────────────────────────

func TestLoginLogout(t *testing.T) {
	env := newTestEnv(t, "")

	out, _, err := runCmd(context.Background(), env, "login", "-u", "ana", "-p", "pw", "-d", "k1d2e3")
	if err != nil {
		t.Fatalf("login error = %v", err)
	}
	if out != "Logged in as ana (deployment k1d2e3).\n" {
		t.Errorf("login output = %q", out)
	}

	creds, err := credentials.NewFileCache(env.cachePath).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if creds.Identity != "ana" || creds.Deployment != "k1d2e3" {
		t.Errorf("cached credentials = %v", creds)
	}

	out, _, err = runCmd(context.Background(), env, "logout")
	if err != nil {
		t.Fatalf("logout error = %v", err)
	}
	if out != "Logged out.\n" {
		t.Errorf("logout output = %q", out)
	}
	if _, err := credentials.NewFileCache(env.cachePath).Load(); err == nil {
		t.Error("credentials still cached after logout")
	}
}

func TestLogin_MissingFields(t *testing.T) {
	env := newTestEnv(t, "")

	_, _, err := runCmd(context.Background(), env, "login", "-u", "ana")
	if err == nil {
		t.Fatal("login without password succeeded")
	}
	if _, statErr := os.Stat(env.cachePath); !errors.Is(statErr, os.ErrNotExist) {
		t.Errorf("cache written after failed login: %v", statErr)
	}
}

func TestGPIO_NotLoggedIn(t *testing.T) {
	env := newTestEnv(t, "")
	fake := mqtttest.NewClient()
	useFake(t, fake)

	_, _, err := runCmd(context.Background(), env, "gpio", "2", "on")
	if err == nil || !strings.Contains(err.Error(), "gpioremote login") {
		t.Errorf("gpio error = %v, want login hint", err)
	}
	if fake.Connects() != 0 {
		t.Errorf("Connects() = %d, want 0", fake.Connects())
	}
}

// ─── GPIO ──────────────────────────────────────────────────────────

func TestParseGPIOArgs(t *testing.T) {
	tests := []struct {
		args    []string
		pin     int
		on      bool
		wantErr bool
	}{
		{args: []string{"2", "on"}, pin: 2, on: true},
		{args: []string{"4", "OFF"}, pin: 4, on: false},
		{args: []string{"13", "High"}, pin: 13, on: true},
		{args: []string{"x", "on"}, wantErr: true},
		{args: []string{"-1", "on"}, wantErr: true},
		{args: []string{"2", "toggle"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			pin, on, err := parseGPIOArgs(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseGPIOArgs() error = %v", err)
			}
			if pin != tt.pin || on != tt.on {
				t.Errorf("parseGPIOArgs() = (%d, %v), want (%d, %v)", pin, on, tt.pin, tt.on)
			}
		})
	}
}

func TestGPIO_PublishesAfterHeartbeat(t *testing.T) {
	env := newTestEnv(t, "")
	env.login(t)
	fake := mqtttest.NewClient()
	useFake(t, fake)

	go deliverWhenSubscribed(fake, "esp32_02/status", []byte("online"))

	out, _, err := runCmd(context.Background(), env, "gpio", "2", "on", "--wait", "3s")
	if err != nil {
		t.Fatalf("gpio error = %v", err)
	}
	if out != "esp32_02/gpio/2/set <- ON\n" {
		t.Errorf("gpio output = %q", out)
	}

	var sent int
	for _, p := range fake.Published() {
		if p.Topic == "esp32_02/gpio/2/set" {
			sent++
			if string(p.Payload) != "ON" {
				t.Errorf("payload = %q, want ON", p.Payload)
			}
		}
	}
	if sent != 1 {
		t.Errorf("gpio publishes = %d, want 1", sent)
	}
	if fake.Disconnects() != 1 {
		t.Errorf("Disconnects() = %d, want 1", fake.Disconnects())
	}
}

func TestGPIO_DeviceUnreachable(t *testing.T) {
	env := newTestEnv(t, "")
	env.login(t)
	fake := mqtttest.NewClient()
	useFake(t, fake)

	_, _, err := runCmd(context.Background(), env, "gpio", "2", "off", "--wait", "50ms")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("gpio error = %v, want deadline exceeded", err)
	}
	if !strings.Contains(err.Error(), "commands blocked") {
		t.Errorf("error %q does not show the status", err)
	}
	for _, p := range fake.Published() {
		if p.Topic == "esp32_02/gpio/2/set" {
			t.Error("command published while device unreachable")
		}
	}
}

// ─── Rules ─────────────────────────────────────────────────────────

func TestRulesAdd_ValidationBeforeConnect(t *testing.T) {
	env := newTestEnv(t, "")
	env.login(t)
	fake := mqtttest.NewClient()
	useFake(t, fake)

	_, _, err := runCmd(context.Background(), env, "rules", "add", "--name", "hot", "--measurement", "dht11", "--field", "pressure")
	if !errors.Is(err, rules.ErrInvalidRule) {
		t.Fatalf("rules add error = %v, want ErrInvalidRule", err)
	}
	if fake.Connects() != 0 {
		t.Errorf("Connects() = %d, want 0", fake.Connects())
	}
}

func TestRulesAdd_Publishes(t *testing.T) {
	env := newTestEnv(t, "")
	env.login(t)
	fake := mqtttest.NewClient()
	useFake(t, fake)

	out, _, err := runCmd(context.Background(), env, "rules", "add",
		"--name", "hot", "--measurement", "dht11", "--field", "temperature",
		"--range", "15m", "--operator", ">", "--threshold", "30",
		"--topic", "esp32_02/gpio/2/set", "--payload", "ON")
	if err != nil {
		t.Fatalf("rules add error = %v", err)
	}
	if out != "Rule \"hot\" sent.\n" {
		t.Errorf("rules add output = %q", out)
	}

	var req map[string]any
	for _, p := range fake.Published() {
		if p.Topic != "sistema/regras/gerenciar" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal(p.Payload, &m); err != nil {
			t.Fatalf("management payload %q: %v", p.Payload, err)
		}
		if m["command"] == rules.CommandAdd {
			req = m
		}
	}
	if req == nil {
		t.Fatal("no add_rule request published")
	}
	rule, _ := req["rule"].(map[string]any)
	if rule["name"] != "hot" || rule["range"] != "15m" || rule["threshold"] != 30.0 {
		t.Errorf("rule = %v", rule)
	}
}

func TestRulesList(t *testing.T) {
	env := newTestEnv(t, "")
	env.login(t)
	fake := mqtttest.NewClient()
	useFake(t, fake)

	go deliverWhenSubscribed(fake, "sistema/regras/lista", []byte(`[{"id":7,"name":"hot","measurement":"dht11","field":"temperature","range":"5m","operator":">","threshold":30,"action_topic":"esp32_02/gpio/2/set","action_payload":"ON"}]`))

	out, _, err := runCmd(context.Background(), env, "rules", "list", "--wait", "3s")
	if err != nil {
		t.Fatalf("rules list error = %v", err)
	}
	want := `#7 IF mean(dht11.temperature) > 30 OVER LAST 5m THEN -> esp32_02/gpio/2/set, "ON"` + "\n"
	if out != want {
		t.Errorf("rules list output = %q, want %q", out, want)
	}
}

func TestRulesList_Empty(t *testing.T) {
	env := newTestEnv(t, "")
	env.login(t)
	fake := mqtttest.NewClient()
	useFake(t, fake)

	go deliverWhenSubscribed(fake, "sistema/regras/lista", []byte(`[]`))

	out, _, err := runCmd(context.Background(), env, "rules", "list", "--wait", "3s")
	if err != nil {
		t.Fatalf("rules list error = %v", err)
	}
	if out != "No rules defined.\n" {
		t.Errorf("rules list output = %q", out)
	}
}

func TestRulesDelete_RequiresID(t *testing.T) {
	env := newTestEnv(t, "")
	env.login(t)
	fake := mqtttest.NewClient()
	useFake(t, fake)

	_, _, err := runCmd(context.Background(), env, "rules", "delete", "#")
	if !errors.Is(err, rules.ErrInvalidRule) {
		t.Errorf("rules delete error = %v, want ErrInvalidRule", err)
	}
}

// ─── Logs ──────────────────────────────────────────────────────────

func logServer(t *testing.T, records []audit.Record) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/log" || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(records)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLogs_Empty(t *testing.T) {
	env := newTestEnv(t, "")
	srv := logServer(t, []audit.Record{})

	out, _, err := runCmd(context.Background(), env, "logs", "--url", srv.URL)
	if err != nil {
		t.Fatalf("logs error = %v", err)
	}
	if out != "No logs available.\n" {
		t.Errorf("logs output = %q", out)
	}
}

func TestLogs_Table(t *testing.T) {
	env := newTestEnv(t, "")
	srv := logServer(t, []audit.Record{
		{ID: 2, Topic: "esp32_02/gpio/2/set", Message: "OFF", User: "ana"},
		{ID: 1, Topic: "esp32_02/gpio/2/set", Message: "ON", User: "ana"},
	})

	out, _, err := runCmd(context.Background(), env, "logs", "--url", srv.URL)
	if err != nil {
		t.Fatalf("logs error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), out)
	}
	if !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[0], "USER") {
		t.Errorf("header = %q", lines[0])
	}
	if f := strings.Fields(lines[1]); f[0] != "2" || f[3] != "OFF" || f[4] != "ana" {
		t.Errorf("first row = %q", lines[1])
	}
}

func TestLogs_BackendDown(t *testing.T) {
	env := newTestEnv(t, "")
	srv := logServer(t, nil)
	srv.Close()

	if _, _, err := runCmd(context.Background(), env, "logs", "--url", srv.URL); err == nil {
		t.Error("logs against a closed server succeeded")
	}
}

func TestOneLine(t *testing.T) {
	if got := oneLine("a\n  b\tc "); got != "a b c" {
		t.Errorf("oneLine() = %q, want %q", got, "a b c")
	}
}

// ─── Monitor ───────────────────────────────────────────────────────

func TestMonitor_PrintsChanges(t *testing.T) {
	env := newTestEnv(t, "")
	env.login(t)
	fake := mqtttest.NewClient()
	useFake(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stdout syncBuffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&syncBuffer{})
	root.SetArgs([]string{"--config", env.configPath, "monitor", "--pin", "2"})

	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()

	waitUntil(t, "initial status", func() bool { return strings.Contains(stdout.String(), "status: Connected") })
	waitUntil(t, "gpio subscription", func() bool { return subscribedTo(fake, "esp32_02/gpio/+/state") })

	fake.Deliver("esp32_02/status", []byte("online"))
	fake.Deliver("esp32_02/gpio/2/state", []byte("ON"))
	fake.Deliver("sistema/dashboard/status", []byte(`{"device_status":"online","dht11_temperature":23.5}`))

	waitUntil(t, "monitor output", func() bool {
		out := stdout.String()
		return strings.Contains(out, "commands allowed") &&
			strings.Contains(out, "gpio 2: ON") &&
			strings.Contains(out, "dashboard:")
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("monitor error = %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("monitor did not stop after cancel")
	}
	if fake.Disconnects() != 1 {
		t.Errorf("Disconnects() = %d, want 1", fake.Disconnects())
	}
}

func TestSplitListen(t *testing.T) {
	host, port, err := splitListen("127.0.0.1:0")
	if err != nil || host != "127.0.0.1" || port != 0 {
		t.Errorf("splitListen() = (%q, %d, %v)", host, port, err)
	}
	for _, bad := range []string{"8080", "host:x", "host:70000"} {
		if _, _, err := splitListen(bad); err == nil {
			t.Errorf("splitListen(%q) succeeded", bad)
		}
	}
}

// ─── Serve ─────────────────────────────────────────────────────────

// startServe runs "serve" until the test ends and returns the base URL.
func startServe(t *testing.T, env *testEnv) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	var stdout syncBuffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&syncBuffer{})
	root.SetArgs([]string{"--config", env.configPath, "serve", "--listen", "127.0.0.1:0"})

	done := make(chan error, 1)
	go func() { done <- root.ExecuteContext(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("serve error = %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("serve did not stop after cancel")
		}
	})

	var addr string
	waitUntil(t, "listening line", func() bool {
		out := stdout.String()
		i := strings.Index(out, "listening on ")
		if i < 0 || !strings.Contains(out[i:], "\n") {
			return false
		}
		line := out[i+len("listening on "):]
		addr = strings.TrimSpace(line[:strings.Index(line, "\n")])
		return true
	})
	return "http://" + addr
}

func TestServe_LogRoundTrip(t *testing.T) {
	env := newTestEnv(t, "")
	base := startServe(t, env)

	resp, err := http.Get(base + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/health status = %d, want 200", resp.StatusCode)
	}

	client := audit.NewHTTPClient(base)
	ctx := context.Background()
	if err := client.Write(ctx, audit.Record{Topic: "esp32_02/gpio/2/set", Message: "ON", User: "ana"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	out, _, err := runCmd(ctx, env, "logs", "--url", base)
	if err != nil {
		t.Fatalf("logs error = %v", err)
	}
	if !strings.Contains(out, "esp32_02/gpio/2/set") || !strings.Contains(out, "ana") {
		t.Errorf("logs output = %q", out)
	}
}

func TestServe_ListenerRecordsMessages(t *testing.T) {
	env := newTestEnv(t, `listener:
  enabled: true
  topics: ["esp32_02/#"]
  username: backend
  password: secret
  deployment: k1d2e3
`)
	fake := mqtttest.NewClient()
	useFake(t, fake)
	base := startServe(t, env)

	waitUntil(t, "listener subscription", func() bool { return subscribedTo(fake, "esp32_02/#") })
	if opts := fake.Options(); opts.WillEnabled {
		t.Errorf("backend session registered last will on %q, want none", opts.WillTopic)
	}
	fake.Deliver("esp32_02/gpio/2/state", []byte("ON"))

	client := audit.NewHTTPClient(base)
	waitUntil(t, "listener record", func() bool {
		records, err := client.List(context.Background())
		if err != nil || len(records) != 1 {
			return false
		}
		r := records[0]
		return r.Topic == "esp32_02/gpio/2/state" && r.Message == "ON" && r.User == audit.ListenerUser
	})
}

func TestCoveredBy(t *testing.T) {
	tests := []struct {
		filters []string
		filter  string
		want    bool
	}{
		{[]string{"esp32_02/#"}, "esp32_02/sensor/+", true},
		{[]string{"#"}, "esp32_02/sensor/+", true},
		{[]string{"esp32_02/sensor/+"}, "esp32_02/sensor/+", true},
		{[]string{"sistema/#"}, "esp32_02/sensor/+", false},
		{[]string{"esp32_02/gpio/+/state"}, "esp32_02/sensor/+", false},
		{nil, "esp32_02/sensor/+", false},
	}

	for _, tt := range tests {
		if got := coveredBy(tt.filters, tt.filter); got != tt.want {
			t.Errorf("coveredBy(%v, %q) = %v, want %v", tt.filters, tt.filter, got, tt.want)
		}
	}
}
