package sysexec

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// installCommands maps a package manager to its install command line.
// %s is replaced by the package name.
var installCommands = map[string]string{
	"apt":    "sudo apt-get install -y %s",
	"dnf":    "sudo dnf install -y %s",
	"yum":    "sudo yum install -y %s",
	"pacman": "sudo pacman -S --noconfirm %s",
	"apk":    "sudo apk add %s",
	"brew":   "brew install %s",
	"pip":    "pip install %s",
	"pip3":   "pip3 install %s",
}

// managerProbeOrder lists managers to try per platform, most specific
// first.
var managerProbeOrder = map[string][]string{
	"linux":  {"apt-get", "dnf", "yum", "pacman", "apk", "pip3", "pip"},
	"darwin": {"brew", "pip3", "pip"},
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

// DetectPackageManager finds the first available package manager for
// the current platform. It returns "pip" when nothing else is found.
func DetectPackageManager() string {
	probes, ok := managerProbeOrder[runtime.GOOS]
	if !ok {
		return "pip"
	}
	for _, name := range probes {
		if _, err := lookPath(name); err == nil {
			if name == "apt-get" {
				return "apt"
			}
			return name
		}
	}
	return "pip"
}

// InstallPackage installs a package with the named manager, or the
// detected one when manager is "auto" or empty.
func (e *Executor) InstallPackage(ctx context.Context, pkg, manager string) (Result, error) {
	pkg = strings.TrimSpace(pkg)
	if pkg == "" {
		return Result{}, fmt.Errorf("empty package name")
	}
	if strings.ContainsAny(pkg, ";&|$`\"'\\") {
		return Result{}, fmt.Errorf("invalid package name: %s", pkg)
	}

	if manager == "" || manager == "auto" {
		manager = DetectPackageManager()
	}
	tmpl, ok := installCommands[manager]
	if !ok {
		return Result{}, fmt.Errorf("unsupported package manager: %s", manager)
	}

	command := fmt.Sprintf(tmpl, pkg)
	e.logger.Info("installing package", "package", pkg, "manager", manager)
	res, err := e.Run(ctx, command, true)
	if err != nil {
		return res, err
	}
	if !res.Success() {
		e.logger.Warn("package install failed",
			"package", pkg,
			"manager", manager,
			"exit_code", res.ExitCode)
	}
	return res, nil
}
