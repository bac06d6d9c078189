// Package config handles suite settings, secrets and directories for
// flowrunner.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/b2ctest/flowrunner/pkg/core"
)

// Defaults applied when a settings file leaves a value unset.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultDebugWait = 3 * time.Second
)

// Browser environments.
const (
	BrowserChrome  = "chrome"
	BrowserFirefox = "firefox"
)

// Seconds is a whole number of seconds, written as a JSON number or a
// numeric string.
type Seconds int

func parseSeconds(name string, r gjson.Result) (Seconds, error) {
	var v string
	switch r.Type {
	case gjson.Null:
		return 0, nil
	case gjson.Number:
		v = r.Raw
	case gjson.String:
		v = strings.TrimSpace(r.Str)
	default:
		return 0, fmt.Errorf("%q: expected a number of seconds", name)
	}
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%q: %q is not a number of seconds", name, v)
	}
	return Seconds(n), nil
}

// TestConfiguration is the "TestConfiguration" block of a settings file.
type TestConfiguration struct {
	Environment string   // Chrome or Firefox
	TimeOut     Seconds  // Per-wait timeout
	OTPAge      string   // "OTP_Age", passed to the passcode service
	DebugWait   *Seconds // Pause after each test in debug mode
}

// Settings is the settings file as written.
type Settings struct {
	TestConfiguration TestConfiguration
	Tests             []string
	DebugMode         bool
	StrictCompletion  *bool
}

// DecodeSettings decodes settings file content without validating it.
func DecodeSettings(data []byte) (*Settings, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("not valid JSON")
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, errors.New("expected a JSON object")
	}

	var s Settings
	tc := root.Get("TestConfiguration")
	if tc.Exists() && !tc.IsObject() {
		return nil, errors.New(`"TestConfiguration" must be an object`)
	}
	s.TestConfiguration.Environment = tc.Get("Environment").String()
	s.TestConfiguration.OTPAge = tc.Get("OTP_Age").String()

	var err error
	if s.TestConfiguration.TimeOut, err = parseSeconds("TimeOut", tc.Get("TimeOut")); err != nil {
		return nil, err
	}
	if dw := tc.Get("DebugWait"); dw.Exists() {
		wait, err := parseSeconds("DebugWait", dw)
		if err != nil {
			return nil, err
		}
		s.TestConfiguration.DebugWait = &wait
	}

	tests := root.Get("Tests")
	if tests.Exists() && !tests.IsArray() {
		return nil, errors.New(`"Tests" must be an array of test names`)
	}
	for _, t := range tests.Array() {
		if t.Type != gjson.String {
			return nil, fmt.Errorf(`"Tests": %s is not a test name`, t.Raw)
		}
		s.Tests = append(s.Tests, t.Str)
	}

	s.DebugMode = root.Get("DebugMode").Bool()
	if strict := root.Get("StrictCompletion"); strict.Exists() {
		v := strict.Bool()
		s.StrictCompletion = &v
	}
	return &s, nil
}

// SuiteConfig is the validated run configuration for one suite.
type SuiteConfig struct {
	Environment      string // chrome or firefox
	Timeout          time.Duration
	OTPMaxAge        string
	DebugMode        bool
	DebugWait        time.Duration
	StrictCompletion bool // A flow without a completion marker fails rather than warns
	Tests            []string
}

// ParseSuite decodes and validates settings file content.
func ParseSuite(data []byte) (*SuiteConfig, error) {
	s, err := DecodeSettings(data)
	if err != nil {
		return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("invalid settings file: %v", err)).WithCause(err)
	}
	return s.Suite()
}

// Suite validates s and applies defaults.
func (s *Settings) Suite() (*SuiteConfig, error) {
	browser, err := NormalizeBrowser(s.TestConfiguration.Environment)
	if err != nil {
		return nil, err
	}
	if s.TestConfiguration.TimeOut < 0 {
		return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("TimeOut must not be negative, got %d", s.TestConfiguration.TimeOut))
	}

	var tests []string
	for _, t := range s.Tests {
		if t = strings.TrimSpace(t); t != "" {
			tests = append(tests, t)
		}
	}
	if len(tests) == 0 {
		return nil, core.ErrMissingRequired.WithMessage("settings file lists no Tests")
	}

	cfg := &SuiteConfig{
		Environment:      browser,
		Timeout:          time.Duration(s.TestConfiguration.TimeOut) * time.Second,
		OTPMaxAge:        s.TestConfiguration.OTPAge,
		DebugMode:        s.DebugMode,
		DebugWait:        DefaultDebugWait,
		StrictCompletion: true,
		Tests:            tests,
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if s.TestConfiguration.DebugWait != nil {
		cfg.DebugWait = time.Duration(*s.TestConfiguration.DebugWait) * time.Second
	}
	if s.StrictCompletion != nil {
		cfg.StrictCompletion = *s.StrictCompletion
	}
	return cfg, nil
}

// NormalizeBrowser maps a settings Environment onto a browser name.
func NormalizeBrowser(env string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "chrome":
		return BrowserChrome, nil
	case "firefox":
		return BrowserFirefox, nil
	case "":
		return "", core.ErrMissingRequired.WithMessage("TestConfiguration.Environment is required")
	default:
		return "", core.ErrUnknownBrowser.WithMessage(fmt.Sprintf("Unrecognized Browser Environment %q. Test Aborted.", env))
	}
}

// Filter narrows Tests to the single test named, when set. The test does
// not have to be listed in the suite.
func (c *SuiteConfig) Filter(single string) {
	if single != "" {
		c.Tests = []string{single}
	}
}
