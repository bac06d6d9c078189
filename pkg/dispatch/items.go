package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/b2ctest/flowrunner/pkg/config"
	"github.com/b2ctest/flowrunner/pkg/source"
)

// SplitSuites splits a comma-separated suite list, dropping blanks.
func SplitSuites(list string) []string {
	var suites []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			suites = append(suites, s)
		}
	}
	return suites
}

// SuiteItems returns one item per suite.
func SuiteItems(suites []string) []Item {
	items := make([]Item, 0, len(suites))
	for _, s := range suites {
		items = append(items, Item{SuiteFile: s})
	}
	return items
}

// TestItems reads every suite and returns one item per test it lists.
func TestItems(ctx context.Context, r source.Reader, suites []string) ([]Item, error) {
	var items []Item
	for _, s := range suites {
		data, err := r.Read(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("read suite %s: %w", s, err)
		}
		cfg, err := config.ParseSuite(data)
		if err != nil {
			return nil, fmt.Errorf("suite %s: %w", s, err)
		}
		for _, t := range cfg.Tests {
			items = append(items, Item{SuiteFile: s, Test: t})
		}
	}
	return items, nil
}
