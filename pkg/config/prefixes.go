package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/b2ctest/flowrunner/pkg/core"
)

// Prefixes maps a long flag name onto the legacy argument prefix that sets
// it, e.g. "single-test" -> "singleTest:".
type Prefixes map[string]string

// DefaultPrefixes returns the prefixes accepted when no prefixes.yaml exists.
func DefaultPrefixes() Prefixes {
	return Prefixes{
		"container":           "container:",
		"logfile":             "logfile:",
		"single-test":         "singleTest:",
		"suite":               "suite:",
		"exe":                 "exe:",
		"instrumentation-key": "key:",
		"threads":             "threads:",
		"iterations":          "iterations:",
	}
}

// LoadPrefixes returns the defaults overlaid with the entries of the YAML
// file at path. A missing file yields the defaults. An empty prefix
// disables the flag's legacy form.
func LoadPrefixes(path string) (Prefixes, error) {
	p := DefaultPrefixes()
	data, err := os.ReadFile(path) //#nosec G304 -- prefixes file under the flowrunner home
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("cannot read prefixes file %s", path)).WithCause(err)
	}

	var overrides map[string]string
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("invalid prefixes file %s: %v", path, err)).WithCause(err)
	}
	for flag, prefix := range overrides {
		if prefix == "" {
			delete(p, flag)
			continue
		}
		p[flag] = prefix
	}
	return p, nil
}

// Match finds the prefix that arg starts with, ignoring case, and returns
// the flag it sets and the remaining value. Longer prefixes win.
func (p Prefixes) Match(arg string) (flag, value string, ok bool) {
	flags := make([]string, 0, len(p))
	for f := range p {
		flags = append(flags, f)
	}
	sort.Slice(flags, func(i, j int) bool {
		if len(p[flags[i]]) != len(p[flags[j]]) {
			return len(p[flags[i]]) > len(p[flags[j]])
		}
		return flags[i] < flags[j]
	})

	lower := strings.ToLower(arg)
	for _, f := range flags {
		prefix := p[f]
		if strings.HasPrefix(lower, strings.ToLower(prefix)) {
			return f, arg[len(prefix):], true
		}
	}
	return "", "", false
}
