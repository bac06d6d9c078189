package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/b2ctest/flowrunner/pkg/core"
)

// ReportFile is the suite report written next to the log file.
const ReportFile = "report.json"

// WriteSuite writes s as indented JSON to path, replacing it atomically.
func WriteSuite(path string, s *core.SuiteResult) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*.json")
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
