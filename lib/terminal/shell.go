package terminal

import (
	"os"
	"os/exec"
)

var fallbackShells = []string{"/bin/bash", "/bin/sh"}

// DefaultShell picks the login shell from $SHELL when it is runnable, then bash, then sh.
func DefaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		if p, err := exec.LookPath(sh); err == nil {
			return p
		}
	}
	for _, sh := range fallbackShells {
		if fi, err := os.Stat(sh); err == nil && !fi.IsDir() && fi.Mode()&0o111 != 0 {
			return sh
		}
	}
	return "/bin/sh"
}
