package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func Test_LoadConfig_Returns_Defaults_When_No_Files_Exist(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()

	cfg, sources, err := LoadConfig(workDir, "", Config{}, []string{"XDG_CONFIG_HOME=" + filepath.Join(workDir, "none")})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Fatalf("config mismatch (-want +got):\n%s", diff)
	}

	if sources.Global != "" || sources.Project != "" {
		t.Fatalf("no sources should be recorded; got %+v", sources)
	}
}

func Test_LoadConfig_Project_File_Overrides_Defaults(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()

	content := `{
	// hashed buckets for this project
	"backend": "ht",
}`
	if err := os.WriteFile(filepath.Join(workDir, ConfigFileName), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, sources, err := LoadConfig(workDir, "", Config{}, []string{"XDG_CONFIG_HOME=" + filepath.Join(workDir, "none")})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Backend != "ht" {
		t.Fatalf("Backend = %q, want ht", cfg.Backend)
	}

	if cfg.LogLevel != DefaultConfig().LogLevel {
		t.Fatalf("LogLevel must stay at the default; got %q", cfg.LogLevel)
	}

	if sources.Project == "" {
		t.Fatal("project source must be recorded")
	}
}

func Test_LoadConfig_Global_Config_Is_Overridden_By_Project(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	xdg := filepath.Join(workDir, "xdg")

	globalDir := filepath.Join(xdg, "lsbdd")
	if err := os.MkdirAll(globalDir, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(globalDir, "config.json"), []byte(`{"backend":"rb","log_level":"debug"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(workDir, ConfigFileName), []byte(`{"backend":"bt"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := LoadConfig(workDir, "", Config{}, []string{"XDG_CONFIG_HOME=" + xdg})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Backend != "bt" {
		t.Fatalf("project must win over global; Backend = %q", cfg.Backend)
	}

	if cfg.LogLevel != "debug" {
		t.Fatalf("untouched global fields must survive; LogLevel = %q", cfg.LogLevel)
	}
}

func Test_LoadConfig_CLI_Overrides_Win(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()

	if err := os.WriteFile(filepath.Join(workDir, ConfigFileName), []byte(`{"backend":"bt"}`), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := LoadConfig(workDir, "", Config{Backend: "sl"}, []string{"XDG_CONFIG_HOME=" + filepath.Join(workDir, "none")})
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Backend != "sl" {
		t.Fatalf("CLI override must win; Backend = %q", cfg.Backend)
	}
}

func Test_LoadConfig_Rejects_Unknown_Backend(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()

	_, _, err := LoadConfig(workDir, "", Config{Backend: "zz"}, []string{"XDG_CONFIG_HOME=" + filepath.Join(workDir, "none")})
	if !errors.Is(err, errUnknownBackend) {
		t.Fatalf("LoadConfig must reject backend zz; got %v", err)
	}
}

func Test_LoadConfig_Explicit_Path_Must_Exist(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()

	_, _, err := LoadConfig(workDir, filepath.Join(workDir, "missing.json"), Config{}, nil)
	if !errors.Is(err, errConfigFileNotFound) {
		t.Fatalf("explicit config path must be required to exist; got %v", err)
	}
}

func Test_SaveConfig_Round_Trips(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	path := filepath.Join(workDir, ConfigFileName)

	want := Config{Backend: "rb", LogLevel: "info"}
	if err := SaveConfig(path, want); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	got, err := readConfigFile(path)
	if err != nil {
		t.Fatalf("readConfigFile: %v", err)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("config round trip mismatch (-want +got):\n%s", diff)
	}
}
