package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeProjectConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	civicDir := filepath.Join(dir, ".civic")
	if err := os.MkdirAll(civicDir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(civicDir, "config.yml"), []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return dir
}

func TestInitializeDefaults(t *testing.T) {
	dir := writeProjectConfig(t, "")
	t.Chdir(dir)

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if got := GetDuration("saga.step-timeout").Seconds(); got != 60 {
		t.Errorf("saga.step-timeout = %vs, want 60s", got)
	}
	if got := GetDuration("saga.timeout").Minutes(); got != 5 {
		t.Errorf("saga.timeout = %vm, want 5m", got)
	}
	if got := GetDuration("saga.lock-timeout").Seconds(); got != 30 {
		t.Errorf("saga.lock-timeout = %vs, want 30s", got)
	}
	if got := GetDuration("saga.idempotency-ttl").Hours(); got != 24 {
		t.Errorf("saga.idempotency-ttl = %vh, want 24h", got)
	}

	types := GetRecordTypes()
	if len(types) == 0 {
		t.Fatal("GetRecordTypes() returned empty catalogue")
	}
	found := false
	for _, rt := range types {
		if rt == "bylaw" {
			found = true
		}
	}
	if !found {
		t.Errorf("GetRecordTypes() = %v, want to contain %q", types, "bylaw")
	}

	statuses := GetRecordStatuses()
	for _, want := range []string{"draft", "archived"} {
		ok := false
		for _, s := range statuses {
			if s == want {
				ok = true
			}
		}
		if !ok {
			t.Errorf("GetRecordStatuses() = %v, want to contain %q", statuses, want)
		}
	}
}

func TestInitializeReadsProjectConfig(t *testing.T) {
	dir := writeProjectConfig(t, "author: clerk\nrecords:\n  types:\n    - charter\n")
	t.Chdir(dir)

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if got := GetString("author"); got != "clerk" {
		t.Errorf("GetString(author) = %q, want %q", got, "clerk")
	}
	types := GetRecordTypes()
	if len(types) != 1 || types[0] != "charter" {
		t.Errorf("GetRecordTypes() = %v, want [charter]", types)
	}
}

func TestInitializeFromSubdirectory(t *testing.T) {
	dir := writeProjectConfig(t, "author: clerk\n")
	sub := filepath.Join(dir, "records", "bylaw")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	t.Chdir(sub)

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if got := GetString("author"); got != "clerk" {
		t.Errorf("GetString(author) = %q, want %q (config not found from subdirectory)", got, "clerk")
	}
}

func TestEnvOverridesConfig(t *testing.T) {
	dir := writeProjectConfig(t, "author: clerk\n")
	t.Chdir(dir)
	t.Setenv("CIVIC_AUTHOR", "registrar")

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if got := GetString("author"); got != "registrar" {
		t.Errorf("GetString(author) = %q, want env override %q", got, "registrar")
	}
	if got := GetValueSource("author"); got != SourceEnvVar {
		t.Errorf("GetValueSource(author) = %q, want %q", got, SourceEnvVar)
	}
}

func TestFindRoot(t *testing.T) {
	dir := writeProjectConfig(t, "")
	sub := filepath.Join(dir, "records", "policy", "2024")
	if err := os.MkdirAll(sub, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	tests := []struct {
		name    string
		start   string
		want    string
		wantErr bool
	}{
		{"at root", dir, dir, false},
		{"from nested subdirectory", sub, dir, false},
		{"outside any project", t.TempDir(), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FindRoot(tt.start)
			if (err != nil) != tt.wantErr {
				t.Fatalf("FindRoot() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("FindRoot() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetAuthorFlagPrecedence(t *testing.T) {
	dir := writeProjectConfig(t, "author: clerk\n")
	t.Chdir(dir)

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	if got := GetAuthor("mayor"); got != "mayor" {
		t.Errorf("GetAuthor(flag) = %q, want flag value %q", got, "mayor")
	}
	if got := GetAuthor(""); got != "clerk" {
		t.Errorf("GetAuthor() = %q, want config value %q", got, "clerk")
	}
}

func TestGetModules(t *testing.T) {
	dir := writeProjectConfig(t, `modules:
  legal-register:
    record_types: [bylaw, policy]
  geo:
    record_types: [minutes]
`)
	t.Chdir(dir)

	if err := Initialize(); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	modules := GetModules()
	if len(modules) != 2 {
		t.Fatalf("GetModules() returned %d modules, want 2", len(modules))
	}
	byName := map[string][]string{}
	for _, m := range modules {
		byName[m.Name] = m.RecordTypes
	}
	if got := byName["legal-register"]; len(got) != 2 {
		t.Errorf("legal-register record_types = %v, want 2 entries", got)
	}
	if got := byName["geo"]; len(got) != 1 || got[0] != "minutes" {
		t.Errorf("geo record_types = %v, want [minutes]", got)
	}
}
