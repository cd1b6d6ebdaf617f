package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"timebox/core/target"
	"timebox/runner"
	"timebox/worker"
)

func TestMain(m *testing.M) {
	if worker.IsChild() {
		worker.Main(target.Default)
	}
	os.Exit(m.Run())
}

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" || runtime.GOOS == "plan9" {
		t.Skip("requires unix")
	}
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	// Keep a developer's timebox.yaml out of the way.
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCLIRunFib(t *testing.T) {
	requireUnix(t)
	code, stdout, stderr := runCLI(t, "run", "--timeout", "600s", "fib", "10")
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr)
	}
	if strings.TrimSpace(stdout) != "55" {
		t.Fatalf("stdout %q", stdout)
	}
}

func TestCLIRunThrower(t *testing.T) {
	requireUnix(t)
	code, _, stderr := runCLI(t, "run", "fib_thrower", "8675309")
	if code != 1 {
		t.Fatalf("exit code %d", code)
	}
	if !strings.Contains(stderr, "fib_thrower doesn't like the value 8675309!") {
		t.Fatalf("stderr %q", stderr)
	}
}

func TestCLIRunSpinTimesOut(t *testing.T) {
	requireUnix(t)
	report := filepath.Join(t.TempDir(), "report.json")
	code, _, stderr := runCLI(t, "run", "--timeout", "1s", "--report", report, "spin")
	if code != exitTimeout {
		t.Fatalf("exit code %d: %s", code, stderr)
	}
	if !strings.Contains(stderr, "invocation timed out") {
		t.Fatalf("missing timeout notice: %q", stderr)
	}
	data, err := os.ReadFile(report)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var reports []runner.Report
	if err := json.Unmarshal(data, &reports); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if len(reports) != 1 || reports[0].Outcome != "timeout" {
		t.Fatalf("reports %+v", reports)
	}
}

func TestCLIRunKwargs(t *testing.T) {
	requireUnix(t)
	code, stdout, stderr := runCLI(t, "run", "--kwarg", `memo={"a":1}`, "echo", "x", "2")
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr)
	}
	var got struct {
		Args   []json.RawMessage          `json:"args"`
		Kwargs map[string]json.RawMessage `json:"kwargs"`
	}
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("stdout %q: %v", stdout, err)
	}
	if len(got.Args) != 2 || string(got.Args[0]) != `"x"` || string(got.Args[1]) != "2" {
		t.Fatalf("args %s", got.Args)
	}
	if string(got.Kwargs["memo"]) != `{"a":1}` {
		t.Fatalf("kwargs %s", got.Kwargs["memo"])
	}
}

func TestCLIBatch(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "batch.yaml")
	cfg := `
timeout: 60s
log:
  level: error
invocations:
  - target: fib_thrower
    args: [1]
  - target: spin
    timeout: 500ms
  - target: fib
    args: [20]
`
	if err := os.WriteFile(cfgPath, []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	code, stdout, stderr := runCLI(t, "batch", "--config", cfgPath)
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr)
	}
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines %q", lines)
	}
	if !strings.HasPrefix(lines[0], "fib_thrower\terror") {
		t.Fatalf("line 0 %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "spin\ttimeout") {
		t.Fatalf("line 1 %q", lines[1])
	}
	if lines[2] != "fib\tok\t6765" {
		t.Fatalf("line 2 %q", lines[2])
	}
}

func TestCLIUsageErrors(t *testing.T) {
	if code, _, _ := runCLI(t); code != 2 {
		t.Fatalf("no args exit %d", code)
	}
	if code, _, _ := runCLI(t, "bogus"); code != 2 {
		t.Fatalf("unknown command exit %d", code)
	}
	if code, _, _ := runCLI(t, "run"); code != 2 {
		t.Fatalf("missing target exit %d", code)
	}
	if code, _, _ := runCLI(t, "run", "--kwarg", "novalue", "fib"); code != 2 {
		t.Fatalf("bad kwarg exit %d", code)
	}
}

func TestCLITargets(t *testing.T) {
	code, stdout, _ := runCLI(t, "targets")
	if code != 0 {
		t.Fatalf("exit code %d", code)
	}
	for _, name := range []string{"fib", "fib_thrower", "spin", "echo"} {
		if !strings.Contains(stdout, name+"\n") {
			t.Fatalf("missing %s in %q", name, stdout)
		}
	}
}

func TestParseArgs(t *testing.T) {
	got := parseArgs([]string{"10", "hello", `{"a":true}`})
	if got[0] != float64(10) || got[1] != "hello" {
		t.Fatalf("parsed %#v", got)
	}
	if m, ok := got[2].(map[string]any); !ok || m["a"] != true {
		t.Fatalf("parsed %#v", got[2])
	}
}

func TestCLIVersion(t *testing.T) {
	code, stdout, _ := runCLI(t, "version")
	if code != 0 || !strings.HasPrefix(stdout, "timebox v") {
		t.Fatalf("exit %d stdout %q", code, stdout)
	}
}

func TestCLIDemo(t *testing.T) {
	requireUnix(t)
	code, stdout, stderr := runCLI(t, "demo", "--max-n", "20", "--spin-timeout", "200ms")
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr)
	}
	for _, want := range []string{
		"fib_thrower\terror\tfib_thrower doesn't like the value 8675309!",
		"fib\tok\t55",
		"fib\tok\t6765",
		"spin\ttimeout\t-",
	} {
		if !strings.Contains(stdout, want) {
			t.Fatalf("missing %q in %q", want, stdout)
		}
	}
}
