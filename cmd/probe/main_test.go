package main

import (
	"bytes"
	"encoding/json"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"sheetetl/internal/config"
)

// TestHelperProcess runs main() in a subprocess so tests can observe exit
// codes and output. Arguments after a literal "--" are the CLI args.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	i := 0
	for ; i < len(args); i++ {
		if args[i] == "--" {
			break
		}
	}
	if i < len(args) {
		os.Args = append([]string{args[0]}, args[i+1:]...)
	} else {
		os.Args = []string{args[0]}
	}
	main()
	os.Exit(0)
}

func runCmd(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()

	cmd := exec.Command(os.Args[0], append([]string{"-test.run=TestHelperProcess", "--"}, args...)...)
	cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	err := cmd.Run()
	if err == nil {
		return outBuf.String(), errBuf.String(), 0
	}
	if ee, ok := err.(*exec.ExitError); ok {
		return outBuf.String(), errBuf.String(), ee.ExitCode()
	}
	t.Fatalf("unexpected run error: %T: %v", err, err)
	return "", "", 1
}

// csvBook writes a CSV-directory workbook with two sheets.
func csvBook(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"costs.csv": "Account,Jan,Feb\nacme,1,2\nbeta,3,4\n",
		"sales.csv": "Account,43831,43862\nacme,10,20\nacme,5,6\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func TestMain_ReportMode(t *testing.T) {
	t.Parallel()

	stdout, stderr, code := runCmd(t, "-file", csvBook(t), "-report")
	if code != 0 {
		t.Fatalf("exit code=%d\nstderr:\n%s", code, stderr)
	}
	for _, want := range []string{`sheet "costs"`, `sheet "sales"`, "01_2020", "will be summed"} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("stdout missing %q:\n%s", want, stdout)
		}
	}
	if strings.Contains(stdout, "{") {
		t.Fatalf("report mode must not print JSON:\n%s", stdout)
	}
}

func TestMain_DefaultMode_EmitsConfig(t *testing.T) {
	t.Parallel()

	dir := csvBook(t)
	stdout, stderr, code := runCmd(t, "-file", dir, "-backend", "sqlite", "-dsn", "file:out.db", "-job", "probe_job")
	if code != 0 {
		t.Fatalf("exit code=%d\nstderr:\n%s", code, stderr)
	}
	var p config.Pipeline
	if err := json.Unmarshal([]byte(stdout), &p); err != nil {
		t.Fatalf("stdout is not a pipeline: %v\n%s", err, stdout)
	}
	if p.Job != "probe_job" || p.Source.Path != dir {
		t.Fatalf("job=%q path=%q", p.Job, p.Source.Path)
	}
	if strings.Join(p.Source.Sheets, ",") != "costs,sales" {
		t.Fatalf("sheets=%v", p.Source.Sheets)
	}
	if p.Storage.Kind != "sqlite" || p.Storage.DSN != "file:out.db" {
		t.Fatalf("storage=%+v", p.Storage)
	}
	if !p.Transform.Periods.Decode() {
		t.Fatalf("serial headers should enable decoding")
	}
}

func TestMain_UsageErrors(t *testing.T) {
	t.Parallel()

	_, stderr, code := runCmd(t)
	if code != 2 || !strings.Contains(stderr, "missing -file") {
		t.Fatalf("code=%d stderr=%q", code, stderr)
	}

	_, stderr, code = runCmd(t, "-file", csvBook(t), "-backend", "oracle")
	if code == 0 || !strings.Contains(stderr, "unknown backend") {
		t.Fatalf("code=%d stderr=%q", code, stderr)
	}
}

// Uses t.Setenv; not parallel.
func TestResolveDSNOverride(t *testing.T) {
	for _, k := range []string{"DSN", "DSN_HOST", "DSN_PORT", "DSN_USER", "DSN_PASSWORD", "DSN_DB",
		"DSN_PARAMS", "DSN_SSLMODE", "DSN_ENCRYPT", "DSN_SQLITE"} {
		t.Setenv(k, "")
	}

	if _, ok, err := resolveDSNOverride("postgres", ""); ok || err != nil {
		t.Fatalf("no override expected, ok=%v err=%v", ok, err)
	}
	if dsn, ok, _ := resolveDSNOverride("postgres", "flag-dsn"); !ok || dsn != "flag-dsn" {
		t.Fatalf("flag override dsn=%q ok=%v", dsn, ok)
	}

	t.Setenv("DSN_HOST", "db")
	t.Setenv("DSN_PASSWORD", "p w")
	t.Setenv("DSN_PARAMS", "application_name=probe")
	dsn, ok, err := resolveDSNOverride("postgres", "")
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	u, err := url.Parse(dsn)
	if err != nil {
		t.Fatalf("parse %q: %v", dsn, err)
	}
	pw, _ := u.User.Password()
	if u.Host != "db:5432" || pw != "p w" || u.Path != "/sheetetl" ||
		u.Query().Get("sslmode") != "disable" || u.Query().Get("application_name") != "probe" {
		t.Fatalf("dsn=%q", dsn)
	}

	dsn, _, _ = resolveDSNOverride("mssql", "")
	u, _ = url.Parse(dsn)
	if u.Scheme != "sqlserver" || u.Host != "db:1433" || u.Query().Get("database") != "sheetetl" {
		t.Fatalf("dsn=%q", dsn)
	}

	t.Setenv("DSN", "full")
	if dsn, _, _ := resolveDSNOverride("mssql", ""); dsn != "full" {
		t.Fatalf("DSN env should win over components, got %q", dsn)
	}
}

func TestBuildSQLiteDSN(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, params, want string }{
		{"", "", "file:sheetetl.db"},
		{"data/x.db", "", "file:data/x.db"},
		{"file:x.db?mode=rwc", "_pragma=busy_timeout(5000)", "file:x.db?mode=rwc&_pragma=busy_timeout(5000)"},
		{"x.db", "cache=shared", "file:x.db?cache=shared"},
	}
	for _, tc := range tests {
		if got := buildSQLiteDSN(tc.in, tc.params); got != tc.want {
			t.Fatalf("buildSQLiteDSN(%q, %q)=%q, want %q", tc.in, tc.params, got, tc.want)
		}
	}
}
