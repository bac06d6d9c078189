package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/b2ctest/flowrunner/pkg/config"
	"github.com/b2ctest/flowrunner/pkg/core"
	"github.com/b2ctest/flowrunner/pkg/report"
)

func TestNormalizeArgs(t *testing.T) {
	commands := commandNames(NewApp())
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "legacy worker",
			args: []string{"fr", "suite.json", "container:tests", "singleTest:signup"},
			want: []string{"fr", "run", "--container=tests", "--single-test=signup", "suite.json"},
		},
		{
			name: "legacy dispatcher",
			args: []string{"fr", "suite:a.json,b.json", "threads:4", "key:abc"},
			want: []string{"fr", "dispatch", "--suite=a.json,b.json", "--threads=4", "--instrumentation-key=abc"},
		},
		{
			name: "prefix is case-insensitive",
			args: []string{"fr", "SINGLETEST:signup", "suite.json"},
			want: []string{"fr", "run", "--single-test=signup", "suite.json"},
		},
		{
			name: "explicit command keeps global flags first",
			args: []string{"fr", "--no-color", "run", "suite.json", "logfile:out/x.log"},
			want: []string{"fr", "--no-color", "run", "--logfile=out/x.log", "suite.json"},
		},
		{
			name: "global flag value is not a command",
			args: []string{"fr", "--log-level", "info", "suite.json", "singleTest:signup"},
			want: []string{"fr", "--log-level", "info", "run", "--single-test=signup", "suite.json"},
		},
		{
			name: "flags after explicit dispatch",
			args: []string{"fr", "dispatch", "--per-test", "suite:a.json"},
			want: []string{"fr", "dispatch", "--suite=a.json", "--per-test"},
		},
		{
			name: "plain settings file",
			args: []string{"fr", "suite.json"},
			want: []string{"fr", "run", "suite.json"},
		},
		{
			name: "help untouched",
			args: []string{"fr", "--help"},
			want: []string{"fr", "--help"},
		},
		{
			name: "no args",
			args: []string{"fr"},
			want: []string{"fr"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeArgs(tt.args, config.DefaultPrefixes(), commands))
		})
	}
}

func TestNormalizeArgs_CustomPrefixes(t *testing.T) {
	prefixes := config.Prefixes{"single-test": "only="}
	got := NormalizeArgs([]string{"fr", "only=signup", "suite.json"}, prefixes, commandNames(NewApp()))
	assert.Equal(t, []string{"fr", "run", "--single-test=signup", "suite.json"}, got)
}

// runApp runs the app in-process and returns its exit code and output.
func runApp(t *testing.T, args ...string) (int, string) {
	t.Helper()
	for _, env := range []string{
		config.EnvInstrumentationKey, config.EnvBlobConnection, config.EnvBlobContainer,
		config.EnvCorrelationID, config.EnvPushGateway, config.EnvMQTTBroker,
	} {
		t.Setenv(env, "")
	}

	var out bytes.Buffer
	app := NewApp()
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.Run(append([]string{"flowrunner", "--no-color"}, args...))
	return exitCode(err), out.String()
}

func exitCode(err error) int {
	if err == nil {
		return ExitPassed
	}
	var coder cli.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return ExitConfigError
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRun_RequiresSettingsFile(t *testing.T) {
	code, _ := runApp(t, "run")
	assert.Equal(t, ExitConfigError, code)
}

func TestRun_UnknownBrowser(t *testing.T) {
	dir := t.TempDir()
	settings := writeFile(t, filepath.Join(dir, "suite.json"),
		`{"TestConfiguration": {"Environment": "Safari"}, "Tests": ["signup"]}`)

	code, _ := runApp(t, "run", "--logfile", filepath.Join(dir, "fr.log"), "--keys", filepath.Join(dir, "keys.json"), settings)
	assert.Equal(t, ExitConfigError, code)

	consoleLog, err := os.ReadFile(filepath.Join(dir, "console.log"))
	require.NoError(t, err)
	assert.Contains(t, string(consoleLog), `Unrecognized Browser Environment "Safari"`)
	assert.NoFileExists(t, filepath.Join(dir, report.ReportFile))
}

func TestRun_MissingSettingsFile(t *testing.T) {
	dir := t.TempDir()
	code, _ := runApp(t, "run", "--logfile", filepath.Join(dir, "fr.log"), filepath.Join(dir, "nope.json"))
	assert.Equal(t, ExitConfigError, code)
}

func TestRun_ContainerNeedsConnectionString(t *testing.T) {
	dir := t.TempDir()
	settings := writeFile(t, filepath.Join(dir, "suite.json"),
		`{"TestConfiguration": {"Environment": "Chrome"}, "Tests": ["signup"]}`)

	code, _ := runApp(t, "run", "--logfile", filepath.Join(dir, "fr.log"), "--container", "tests", settings)
	assert.Equal(t, ExitConfigError, code)
}

func TestRun_UnloadableTestsFailWithoutBrowser(t *testing.T) {
	dir := t.TempDir()
	settings := writeFile(t, filepath.Join(dir, "suite.json"),
		`{"TestConfiguration": {"Environment": "Chrome", "TimeOut": "5"}, "Tests": ["missing", "broken"]}`)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "Tests"), 0o755))
	writeFile(t, filepath.Join(dir, "Tests", "broken.json"), `{"page": [{"id": "x", "inputType": "Hover"}]}`)

	code, out := runApp(t, "run",
		"--logfile", filepath.Join(dir, "fr.log"),
		"--keys", filepath.Join(dir, "keys.json"),
		"--webdriver-url", "http://127.0.0.1:1",
		settings)
	assert.Equal(t, ExitFailed, code)
	assert.Contains(t, out, "[1/2] missing")
	assert.Contains(t, out, "[2/2] broken")
	assert.Contains(t, out, "2 skipped")

	data, err := os.ReadFile(filepath.Join(dir, report.ReportFile))
	require.NoError(t, err)
	var suite core.SuiteResult
	require.NoError(t, json.Unmarshal(data, &suite))
	assert.Equal(t, 2, suite.TotalTests)
	assert.Equal(t, 2, suite.SkippedTests)
	assert.Equal(t, settings, suite.Name)
	assert.Len(t, suite.RunID, 36)

	consoleLog, err := os.ReadFile(filepath.Join(dir, "console.log"))
	require.NoError(t, err)
	assert.Contains(t, string(consoleLog), "Unable to load file missing")
	assert.Contains(t, string(consoleLog), "Invalid json found in file broken")
}

func TestRun_SingleTestAndCorrelationID(t *testing.T) {
	dir := t.TempDir()
	settings := writeFile(t, filepath.Join(dir, "suite.json"),
		`{"TestConfiguration": {"Environment": "firefox"}, "Tests": ["signup", "signin"]}`)

	code, out := runApp(t, "run",
		"--logfile", filepath.Join(dir, "fr.log"),
		"--keys", filepath.Join(dir, "keys.json"),
		"--single-test", "reset",
		"--correlation-id", "run-42",
		settings)
	assert.Equal(t, ExitFailed, code)
	assert.Contains(t, out, "[1/1] reset")
	assert.NotContains(t, out, "signup")

	data, err := os.ReadFile(filepath.Join(dir, report.ReportFile))
	require.NoError(t, err)
	var suite core.SuiteResult
	require.NoError(t, json.Unmarshal(data, &suite))
	assert.Equal(t, "run-42", suite.RunID)
	require.Len(t, suite.Tests, 1)
	assert.Equal(t, "reset", suite.Tests[0].Name)
}

func TestDispatch_RequiresSuites(t *testing.T) {
	code, _ := runApp(t, "dispatch", "--logfile", filepath.Join(t.TempDir(), "d.log"))
	assert.Equal(t, ExitConfigError, code)
}

func TestDispatch_MissingExecutable(t *testing.T) {
	dir := t.TempDir()
	code, _ := runApp(t, "dispatch", "--logfile", filepath.Join(dir, "d.log"), "--exe", filepath.Join(dir, "nope"), "--suite", "a.json")
	assert.Equal(t, ExitConfigError, code)
}

// fakeWorker writes a shell script that prints its arguments and fails for
// any suite whose name contains "fail".
func fakeWorker(t *testing.T, dir string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script worker")
	}
	path := filepath.Join(dir, "worker.sh")
	script := `#!/bin/sh
echo "args: $*"
case "$*" in
  *fail*) exit 1 ;;
esac
exit 0
`
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestDispatch_ExitCodes(t *testing.T) {
	dir := t.TempDir()
	worker := fakeWorker(t, dir)
	log := filepath.Join(dir, "d.log")

	code, out := runApp(t, "dispatch", "--logfile", log, "--exe", worker, "--suite", "ok.json,other.json", "--threads", "2")
	assert.Equal(t, ExitPassed, code)
	assert.Contains(t, out, "✓ ok.json")
	assert.Contains(t, out, "✓ other.json")

	code, out = runApp(t, "dispatch", "--logfile", log, "--exe", worker, "--suite", "ok.json", "fail.json")
	assert.Equal(t, ExitFailed, code)
	assert.Contains(t, out, "✗ fail.json")
	assert.Contains(t, out, "args: run fail.json")
}

func TestDispatch_PerTest(t *testing.T) {
	dir := t.TempDir()
	worker := fakeWorker(t, dir)
	suite := writeFile(t, filepath.Join(dir, "fail-suite.json"),
		`{"TestConfiguration": {"Environment": "Chrome"}, "Tests": ["signup", "signin"]}`)

	code, out := runApp(t, "dispatch", "--logfile", filepath.Join(dir, "d.log"), "--exe", worker,
		"--per-test", "--headless", "--iterations", "2", "--suite", suite)
	assert.Equal(t, ExitFailed, code)
	assert.Contains(t, out, "args: run --single-test signup --headless "+suite)
	assert.Contains(t, out, "args: run --single-test signin --headless "+suite)
	assert.Contains(t, out, "Dispatching 2 worker(s) x 2 iteration(s)")
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	settings := writeFile(t, filepath.Join(dir, "suite.json"),
		`{"TestConfiguration": {"Environment": "Chrome"}, "Tests": ["signup"]}`)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "Tests"), 0o755))
	writeFile(t, filepath.Join(dir, "Tests", "signup.json"), `[
		[{"id": "email", "inputType": "testCaseStart", "value": "https://ex/signup"},
		 {"id": "next", "inputType": "Button", "value": ""}]
	]`)

	code, out := runApp(t, "validate", settings)
	assert.Equal(t, ExitFailed, code)
	assert.Contains(t, out, "signup: never reaches testCaseComplete")

	code, out = runApp(t, "validate", "--strict-completion=false", settings)
	assert.Equal(t, ExitPassed, code)
	assert.Contains(t, out, "1 test(s) valid")
}
