package harness

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"testing"
	"time"
)

// commandTimeout bounds a single CLI invocation.
const commandTimeout = 2 * time.Minute

// Run executes the CLI in workDir and returns stdout, stderr and the exit code.
func Run(t *testing.T, binPath, workDir string, args []string) (string, string, int) {
	t.Helper()
	return RunWithEnv(t, binPath, workDir, args, nil)
}

// RunWithEnv is Run with extra environment variables. Overrides win over the
// inherited environment.
func RunWithEnv(t *testing.T, binPath, workDir string, args []string, env map[string]string) (string, string, int) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binPath, args...)
	cmd.Dir = workDir
	if len(env) > 0 {
		// exec uses the last value of a duplicated key.
		cmd.Env = os.Environ()
		for k, v := range env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	code := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			t.Fatalf("run %s %v: %v", binPath, args, err)
		}
		code = exitErr.ExitCode()
	}
	return stdout.String(), stderr.String(), code
}
