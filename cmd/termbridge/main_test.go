package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pkt.systems/termbridge/internal/version"
	"pkt.systems/termbridge/sessionhost"
)

func TestRootHasExpectedCommands(t *testing.T) {
	root := newRootCmd()
	want := map[string]bool{"host": false, "init": false, "doctor": false, "version": false}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Fatalf("expected root command to include %s", name)
		}
	}
}

func TestVersionCommandPrintsModule(t *testing.T) {
	cmd := newVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.Contains(out.String(), version.Module()) {
		t.Fatalf("version output = %q", out.String())
	}
}

func TestInitThenDoctorAgainstLiveHost(t *testing.T) {
	reg := sessionhost.NewRegistry(sessionhost.RegistryConfig{}, nil)
	srv := sessionhost.NewServer(sessionhost.ServerConfig{}, reg, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	hostURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/bridge"
	content := fmt.Sprintf("config_version: 1\nbridge:\n  host_url: %s\n", hostURL)
	if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	doctor := newDoctorCmd()
	doctor.SetArgs([]string{"-c", cfgPath})
	if err := doctor.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("doctor: %v", err)
	}
}

func TestInitWritesLoadableConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	initCmd := newInitCmd()
	initCmd.SetArgs([]string{"-c", cfgPath})
	if err := initCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := os.Stat(cfgPath); err != nil {
		t.Fatalf("config missing: %v", err)
	}

	again := newInitCmd()
	again.SetArgs([]string{"-c", cfgPath})
	if err := again.ExecuteContext(context.Background()); err == nil {
		t.Fatalf("expected error without --force")
	}
}
