package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/svcwatch/pkg/client"
)

func TestParseArgsText(t *testing.T) {
	got := parseArgsText("-jar\r\n  app.jar \n\n--port=9000\n")
	assert.Equal(t, []string{"-jar", "app.jar", "--port=9000"}, got)
	assert.Nil(t, parseArgsText("  \n"))
}

func TestServiceFlagsCombineArgs(t *testing.T) {
	f := ServiceFlags{Name: " api ", Executable: "/bin/api", WorkDir: "/srv", Args: []string{"-v"}, ArgsText: "a\nb"}
	svc := f.service()
	assert.Equal(t, "api", svc.Name)
	assert.Equal(t, []string{"-v", "a", "b"}, svc.Args)
}

func TestParseIndex(t *testing.T) {
	i, err := parseIndex("3")
	require.NoError(t, err)
	assert.Equal(t, 3, i)
	_, err = parseIndex("-1")
	require.Error(t, err)
	_, err = parseIndex("x")
	require.Error(t, err)
}

// fakeDaemon serves a fixed service list and records mutating calls.
type fakeDaemon struct {
	calls []string
	added client.Service
}

func (d *fakeDaemon) handler() http.Handler {
	write := func(w http.ResponseWriter, code int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(v)
	}
	rows := []client.ServiceStatus{
		{Index: 0, Name: "api", State: "running", PID: 321},
		{Index: 1, Name: "worker", State: "process_exited"},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/services", func(w http.ResponseWriter, r *http.Request) { write(w, 200, rows) })
	mux.HandleFunc("GET /api/services/{i}", func(w http.ResponseWriter, r *http.Request) {
		i, _ := strconv.Atoi(r.PathValue("i"))
		if i >= len(rows) {
			write(w, 404, client.Result{Message: "invalid service index: " + r.PathValue("i")})
			return
		}
		write(w, 200, client.ServiceDetail{
			Config: client.Service{Name: rows[i].Name, Executable: "/opt/" + rows[i].Name, WorkDir: "/opt"},
			Status: rows[i],
		})
	})
	mux.HandleFunc("POST /api/services", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&d.added)
		i := 2
		write(w, 201, client.Result{Success: true, Index: &i})
	})
	mux.HandleFunc("POST /api/services/{i}/{op}", func(w http.ResponseWriter, r *http.Request) {
		d.calls = append(d.calls, r.PathValue("op")+" "+r.PathValue("i"))
		write(w, 200, client.Result{Success: true, Message: "service started"})
	})
	mux.HandleFunc("POST /api/services/start-all", func(w http.ResponseWriter, r *http.Request) {
		write(w, 200, client.StartAllResult{Started: 1, Skipped: 1})
	})
	return mux
}

func runCLI(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := buildRoot(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--api-url", url+"/api"))
	err := root.Execute()
	return out.String(), err
}

func TestStatusCommand(t *testing.T) {
	d := &fakeDaemon{}
	srv := httptest.NewServer(d.handler())
	defer srv.Close()

	out, err := runCLI(t, srv.URL, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Running (PID: 321)")
	assert.Contains(t, out, "Process Exited")

	out, err = runCLI(t, srv.URL, "status", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "worker")
	assert.NotContains(t, out, "api ")

	_, err = runCLI(t, srv.URL, "status", "7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid service index")
}

func TestListCommand(t *testing.T) {
	d := &fakeDaemon{}
	srv := httptest.NewServer(d.handler())
	defer srv.Close()

	out, err := runCLI(t, srv.URL, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "/opt/worker")
	assert.Equal(t, 3, strings.Count(strings.TrimSpace(out), "\n")+1)
}

func TestAddAndLifecycleCommands(t *testing.T) {
	d := &fakeDaemon{}
	srv := httptest.NewServer(d.handler())
	defer srv.Close()

	out, err := runCLI(t, srv.URL, "add", "--name=db", "--exec=/usr/bin/db", "--work-dir=/srv",
		"--args-text", "--data\n/var/db", "--env", "A=1")
	require.NoError(t, err)
	assert.Contains(t, out, "added at index 2")
	assert.Equal(t, []string{"--data", "/var/db"}, d.added.Args)
	assert.Equal(t, []string{"A=1"}, d.added.Env)

	_, err = runCLI(t, srv.URL, "start", "0")
	require.NoError(t, err)
	_, err = runCLI(t, srv.URL, "stop", "1")
	require.NoError(t, err)
	_, err = runCLI(t, srv.URL, "restart", "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"start 0", "stop 1", "restart 1"}, d.calls)

	out, err = runCLI(t, srv.URL, "start-all")
	require.NoError(t, err)
	assert.Contains(t, out, "1 started, 1 skipped, 0 failed")

	_, err = runCLI(t, srv.URL, "start", "abc")
	require.Error(t, err)
}

func TestPidFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "svcwatch.pid")
	require.NoError(t, writePidFile(p, 4242))
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "4242", string(b))
	require.NoError(t, removePidFile(p))
	require.NoError(t, removePidFile(""))
}
