// Package service manages the systemd user service for extimer-bridge.
package service

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	dbustypes "github.com/nikicat/extimer-bridge/internal/dbus"
)

const unitFileName = "extimer-bridge.service"

const unitTemplate = `[Unit]
Description=ExTimer bridge - shell capabilities for the ExTimer application
Documentation=https://github.com/nikicat/extimer-bridge
PartOf=graphical-session.target
After=graphical-session.target

[Service]
Type=dbus
BusName=%s
ExecStart=%s
Restart=on-failure
RestartSec=5

[Install]
WantedBy=graphical-session.target
`

// activationTemplate lets the bus start the unit when something talks to
// the extension name before the session has started it.
const activationTemplate = `[D-BUS Service]
Name=%s
Exec=%s
SystemdService=%s
`

// Options configures service installation.
type Options struct {
	// ConfigPath, if set, adds --config <path> to ExecStart.
	ConfigPath string
	// Start the service immediately after enabling.
	Start bool
}

// unitDir returns the systemd user unit directory.
// Uses $XDG_CONFIG_HOME/systemd/user/ with fallback to ~/.config/systemd/user/.
func unitDir() (string, error) {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home dir: %w", err)
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "systemd", "user"), nil
}

// activationDir returns the session bus service directory.
// Uses $XDG_DATA_HOME/dbus-1/services/ with fallback to ~/.local/share/dbus-1/services/.
func activationDir() (string, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("get home dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "dbus-1", "services"), nil
}

// UnitPath returns the full path where the unit file is (or would be) installed.
func UnitPath() (string, error) {
	dir, err := unitDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, unitFileName), nil
}

// ActivationPath returns the full path of the D-Bus activation file.
func ActivationPath() (string, error) {
	dir, err := activationDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, dbustypes.ExtensionBusName+".service"), nil
}

// executableFunc locates the running binary. Replaced in tests.
var executableFunc = func() (string, error) {
	self, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("find executable: %w", err)
	}
	self, err = filepath.EvalSymlinks(self)
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return self, nil
}

// Install writes the systemd user unit and the D-Bus activation file,
// reloads systemd, and enables the service.
func Install(opts Options) error {
	self, err := executableFunc()
	if err != nil {
		return err
	}

	execStart := self + " serve"
	if opts.ConfigPath != "" {
		execStart += " --config " + opts.ConfigPath
	}

	unitPath, err := UnitPath()
	if err != nil {
		return err
	}
	unit := fmt.Sprintf(unitTemplate, dbustypes.ExtensionBusName, execStart)
	if err := writeFile(unitPath, unit); err != nil {
		return fmt.Errorf("write unit file: %w", err)
	}
	fmt.Printf("Wrote unit file: %s\n", unitPath)

	activationPath, err := ActivationPath()
	if err != nil {
		return err
	}
	activation := fmt.Sprintf(activationTemplate, dbustypes.ExtensionBusName, execStart, unitFileName)
	if err := writeFile(activationPath, activation); err != nil {
		return fmt.Errorf("write activation file: %w", err)
	}
	fmt.Printf("Wrote activation file: %s\n", activationPath)

	if err := systemctlFunc("daemon-reload"); err != nil {
		return err
	}

	if err := systemctlFunc("enable", unitFileName); err != nil {
		return err
	}
	fmt.Printf("Enabled %s\n", unitFileName)

	if opts.Start {
		if err := systemctlFunc("start", unitFileName); err != nil {
			return err
		}
		fmt.Printf("Started %s\n", unitFileName)
	}

	return nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0644)
}

// Uninstall stops and disables the service, removes the unit and activation
// files, and reloads systemd.
func Uninstall() error {
	// Stop first (ignore error, it may not be running).
	_ = systemctlFunc("stop", unitFileName)

	if err := systemctlFunc("disable", unitFileName); err != nil {
		return err
	}
	fmt.Printf("Disabled %s\n", unitFileName)

	for _, pathFn := range []func() (string, error){UnitPath, ActivationPath} {
		path, err := pathFn()
		if err != nil {
			return err
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
		fmt.Printf("Removed %s\n", path)
	}

	if err := systemctlFunc("daemon-reload"); err != nil {
		return err
	}

	return nil
}

// Status runs systemctl --user status for the service, printing output directly.
func Status() error {
	cmd := exec.Command("systemctl", "--user", "status", unitFileName)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	// systemctl status exits non-zero when inactive, which is not an error for us.
	cmd.Run()
	return nil
}

// systemctlFunc is the function used to run systemctl commands.
// Replaced in tests to avoid requiring a real systemd.
var systemctlFunc = systemctlExec

func systemctlExec(args ...string) error {
	fullArgs := append([]string{"--user"}, args...)
	cmd := exec.Command("systemctl", fullArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("systemctl %s: %w", args[0], err)
	}
	return nil
}
