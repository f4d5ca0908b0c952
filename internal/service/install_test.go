package service

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// --- test helpers ---

func mockSystemctl(t *testing.T) *[]string {
	t.Helper()
	orig := systemctlFunc
	var calls []string
	systemctlFunc = func(args ...string) error {
		calls = append(calls, strings.Join(args, " "))
		return nil
	}
	t.Cleanup(func() { systemctlFunc = orig })
	return &calls
}

func mockExecutable(t *testing.T, path string) {
	t.Helper()
	orig := executableFunc
	executableFunc = func() (string, error) { return path, nil }
	t.Cleanup(func() { executableFunc = orig })
}

func setupDirs(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(tmpDir, "data"))
	return tmpDir
}

func TestInstallWritesUnit(t *testing.T) {
	tmpDir := setupDirs(t)
	mockSystemctl(t)
	mockExecutable(t, "/usr/bin/extimer-bridge")

	if err := Install(Options{}); err != nil {
		t.Fatalf("Install: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, "config", "systemd", "user", "extimer-bridge.service"))
	if err != nil {
		t.Fatalf("read unit: %v", err)
	}
	unit := string(data)

	for _, want := range []string{
		"Type=dbus",
		"BusName=org.gnome.ExTimer.Extension",
		"ExecStart=/usr/bin/extimer-bridge serve\n",
		"Restart=on-failure",
		"WantedBy=graphical-session.target",
	} {
		if !strings.Contains(unit, want) {
			t.Errorf("unit missing %q:\n%s", want, unit)
		}
	}
}

func TestInstallWritesActivationFile(t *testing.T) {
	tmpDir := setupDirs(t)
	mockSystemctl(t)
	mockExecutable(t, "/usr/bin/extimer-bridge")

	if err := Install(Options{}); err != nil {
		t.Fatalf("Install: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, "data", "dbus-1", "services", "org.gnome.ExTimer.Extension.service"))
	if err != nil {
		t.Fatalf("read activation file: %v", err)
	}
	content := string(data)

	for _, want := range []string{
		"[D-BUS Service]",
		"Name=org.gnome.ExTimer.Extension",
		"Exec=/usr/bin/extimer-bridge serve",
		"SystemdService=extimer-bridge.service",
	} {
		if !strings.Contains(content, want) {
			t.Errorf("activation file missing %q:\n%s", want, content)
		}
	}
}

func TestInstallCustomConfigPath(t *testing.T) {
	tmpDir := setupDirs(t)
	mockSystemctl(t)
	mockExecutable(t, "/opt/bin/extimer-bridge")

	if err := Install(Options{ConfigPath: "/etc/extimer/config.yaml"}); err != nil {
		t.Fatalf("Install: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, "config", "systemd", "user", "extimer-bridge.service"))
	if err != nil {
		t.Fatalf("read unit: %v", err)
	}
	want := "ExecStart=/opt/bin/extimer-bridge serve --config /etc/extimer/config.yaml"
	if !strings.Contains(string(data), want) {
		t.Errorf("unit missing %q:\n%s", want, data)
	}
}

func TestInstallSystemctlCalls(t *testing.T) {
	setupDirs(t)
	calls := mockSystemctl(t)
	mockExecutable(t, "/usr/bin/extimer-bridge")

	if err := Install(Options{}); err != nil {
		t.Fatalf("Install: %v", err)
	}

	want := []string{"daemon-reload", "enable extimer-bridge.service"}
	if !reflect.DeepEqual(*calls, want) {
		t.Errorf("systemctl calls = %v, want %v", *calls, want)
	}
}

func TestInstallWithStart(t *testing.T) {
	setupDirs(t)
	calls := mockSystemctl(t)
	mockExecutable(t, "/usr/bin/extimer-bridge")

	if err := Install(Options{Start: true}); err != nil {
		t.Fatalf("Install: %v", err)
	}

	want := []string{"daemon-reload", "enable extimer-bridge.service", "start extimer-bridge.service"}
	if !reflect.DeepEqual(*calls, want) {
		t.Errorf("systemctl calls = %v, want %v", *calls, want)
	}
}

func TestInstallSystemctlFailure(t *testing.T) {
	setupDirs(t)
	mockExecutable(t, "/usr/bin/extimer-bridge")
	orig := systemctlFunc
	systemctlFunc = func(args ...string) error {
		if args[0] == "enable" {
			return errors.New("systemctl enable: exit status 1")
		}
		return nil
	}
	t.Cleanup(func() { systemctlFunc = orig })

	if err := Install(Options{}); err == nil {
		t.Fatal("expected error when enable fails")
	}
}

func TestUninstall(t *testing.T) {
	tmpDir := setupDirs(t)
	calls := mockSystemctl(t)
	mockExecutable(t, "/usr/bin/extimer-bridge")

	if err := Install(Options{}); err != nil {
		t.Fatalf("Install: %v", err)
	}
	*calls = nil

	if err := Uninstall(); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}

	want := []string{"stop extimer-bridge.service", "disable extimer-bridge.service", "daemon-reload"}
	if !reflect.DeepEqual(*calls, want) {
		t.Errorf("systemctl calls = %v, want %v", *calls, want)
	}

	for _, path := range []string{
		filepath.Join(tmpDir, "config", "systemd", "user", "extimer-bridge.service"),
		filepath.Join(tmpDir, "data", "dbus-1", "services", "org.gnome.ExTimer.Extension.service"),
	} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("%s still exists", path)
		}
	}
}

func TestUninstallNotInstalled(t *testing.T) {
	setupDirs(t)
	mockSystemctl(t)

	if err := Uninstall(); err != nil {
		t.Fatalf("Uninstall without files: %v", err)
	}
}

func TestUnitPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")

	got, err := UnitPath()
	if err != nil {
		t.Fatalf("UnitPath: %v", err)
	}
	want := "/custom/config/systemd/user/extimer-bridge.service"
	if got != want {
		t.Errorf("UnitPath() = %q, want %q", got, want)
	}
}

func TestActivationPath(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")

	got, err := ActivationPath()
	if err != nil {
		t.Fatalf("ActivationPath: %v", err)
	}
	want := "/custom/data/dbus-1/services/org.gnome.ExTimer.Extension.service"
	if got != want {
		t.Errorf("ActivationPath() = %q, want %q", got, want)
	}
}
