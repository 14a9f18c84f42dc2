package config

import "os/exec"

// lookRunner resolves the local process-transport binary, either as an
// absolute/relative path or by searching PATH.
func lookRunner(path string) (string, error) {
	return exec.LookPath(path)
}
