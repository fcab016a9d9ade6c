package rollback

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// detachedLauncher starts commands in their own session with output captured
// to a log file, so the relaunched process survives this invocation exiting.
type detachedLauncher struct {
	logDir string
}

// NewLauncher constructs the production launcher. Relaunched process output
// lands in logDir; an empty logDir discards it.
func NewLauncher(logDir string) Launcher {
	return &detachedLauncher{logDir: logDir}
}

func (l *detachedLauncher) Launch(ctx context.Context, argv []string, dir string) (int, error) {
	if len(argv) == 0 {
		return 0, errors.New("empty argv")
	}

	// Deliberately not exec.CommandContext: the relaunched process must
	// outlive this invocation's context.
	cmd := exec.Command(argv[0], argv[1:]...)
	if dir != "" {
		cmd.Dir = dir
	}
	cmd.Env = os.Environ()
	configureDetached(cmd)

	out, err := l.openLog(argv[0])
	if err != nil {
		return 0, err
	}
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		if out != nil {
			out.Close()
		}
		return 0, err
	}
	pid := cmd.Process.Pid
	if out != nil {
		out.Close()
	}
	// Release rather than Wait: the child is nobody's responsibility now.
	_ = cmd.Process.Release()
	return pid, nil
}

func (l *detachedLauncher) openLog(executable string) (*os.File, error) {
	if l.logDir == "" {
		return os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	}
	if err := os.MkdirAll(l.logDir, 0o755); err != nil {
		return nil, fmt.Errorf("create relaunch log dir: %w", err)
	}
	name := fmt.Sprintf("relaunch-%s-%d.log", filepath.Base(executable), os.Getpid())
	f, err := os.OpenFile(filepath.Join(l.logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open relaunch log: %w", err)
	}
	return f, nil
}
