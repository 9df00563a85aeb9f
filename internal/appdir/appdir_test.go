package appdir

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir_EnvOverride(t *testing.T) {
	custom := t.TempDir()
	t.Setenv(DirEnv, custom)
	ResetCache()
	t.Cleanup(ResetCache)

	dir, err := Dir()
	if err != nil {
		t.Fatalf("Dir() error = %v", err)
	}
	if dir != custom {
		t.Errorf("Dir() = %q, want %q", dir, custom)
	}
}

func TestDir_Default(t *testing.T) {
	t.Setenv(DirEnv, "")
	ResetCache()
	t.Cleanup(ResetCache)

	dir, err := Dir()
	if err != nil {
		t.Fatalf("Dir() error = %v", err)
	}
	if filepath.Base(dir) != appName {
		t.Errorf("Dir() = %q, want a path ending in %s", dir, appName)
	}
}

func TestDir_Cached(t *testing.T) {
	first := t.TempDir()
	t.Setenv(DirEnv, first)
	ResetCache()
	t.Cleanup(ResetCache)

	if _, err := Dir(); err != nil {
		t.Fatal(err)
	}
	t.Setenv(DirEnv, t.TempDir())
	if dir, _ := Dir(); dir != first {
		t.Errorf("Dir() = %q after env change, want cached %q", dir, first)
	}
}

func TestEnsureDir(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "inferstream")
	t.Setenv(DirEnv, target)
	ResetCache()
	t.Cleanup(ResetCache)

	dir, err := EnsureDir()
	if err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("directory %s not created: %v", dir, err)
	}
}

func TestConfigPath(t *testing.T) {
	t.Setenv(DirEnv, t.TempDir())
	ResetCache()
	t.Cleanup(ResetCache)

	p, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath() error = %v", err)
	}
	if !strings.HasSuffix(p, ConfigFileName) {
		t.Errorf("ConfigPath() = %q", p)
	}
}
