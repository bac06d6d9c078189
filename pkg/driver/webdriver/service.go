package webdriver

import (
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/b2ctest/flowrunner/pkg/logger"
	"github.com/b2ctest/flowrunner/pkg/wait"
)

// Service is a locally launched driver server process.
type Service struct {
	URL  string
	cmd  *exec.Cmd
	done chan error
}

// BinaryName returns the driver executable for a browser.
func BinaryName(browser string) string {
	name := "chromedriver"
	if strings.EqualFold(browser, BrowserFirefox) {
		name = "geckodriver"
	}
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return name
}

// FindBinary locates the driver executable in driversDir, then on PATH.
func FindBinary(browser, driversDir string) (string, error) {
	name := BinaryName(browser)
	if driversDir != "" {
		candidate := filepath.Join(driversDir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in %s or PATH: %w", name, driversDir, err)
	}
	return path, nil
}

// StartService launches binary on a free local port and waits until it
// reports ready.
func StartService(binary, browser string, logw io.Writer, startTimeout time.Duration) (*Service, error) {
	port, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate port: %w", err)
	}

	var args []string
	if strings.EqualFold(browser, BrowserFirefox) {
		args = []string{"--port", strconv.Itoa(port)}
	} else {
		args = []string{"--port=" + strconv.Itoa(port)}
	}

	cmd := exec.Command(binary, args...) //#nosec G204 -- binary resolved from drivers dir or PATH
	if logw == nil {
		logw = io.Discard
	}
	cmd.Stdout = logw
	cmd.Stderr = logw

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", filepath.Base(binary), err)
	}

	svc := &Service{
		URL:  fmt.Sprintf("http://127.0.0.1:%d", port),
		cmd:  cmd,
		done: make(chan error, 1),
	}
	go func() { svc.done <- cmd.Wait() }()

	logger.Info("started %s (pid %d) on %s", filepath.Base(binary), cmd.Process.Pid, svc.URL)

	client := NewClient(svc.URL)
	var exitErr error
	err = wait.Policy{Timeout: startTimeout, Interval: 200 * time.Millisecond}.Await(func() (bool, error) {
		select {
		case exitErr = <-svc.done:
			return false, fmt.Errorf("%s exited during startup: %v", filepath.Base(binary), exitErr)
		default:
		}
		ready, err := client.Status()
		if err != nil {
			return false, nil // not listening yet
		}
		return ready, nil
	})
	if err != nil {
		if exitErr == nil {
			svc.Stop()
		}
		return nil, err
	}
	return svc, nil
}

// Stop terminates the service process.
func (s *Service) Stop() error {
	if s == nil || s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	if err := s.cmd.Process.Kill(); err != nil && !strings.Contains(err.Error(), "process already finished") {
		return err
	}
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
	}
	s.cmd = nil
	return nil
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
