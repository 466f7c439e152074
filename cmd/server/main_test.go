package main

import (
	"context"
	"testing"
	"time"
)

func TestModeValue(t *testing.T) {
	tests := []struct {
		name     string
		flagMode string
		envMode  string
		want     string
	}{
		{name: "defaults to development", want: "development"},
		{name: "flag wins", flagMode: "Production", envMode: "development", want: "production"},
		{name: "env used when flag empty", envMode: " PRODUCTION ", want: "production"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := modeValue(tc.flagMode, tc.envMode); got != tc.want {
				t.Fatalf("modeValue = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolveListenAddr(t *testing.T) {
	if got := resolveListenAddr("", "development", ""); got != ":8080" {
		t.Fatalf("development default = %q, want :8080", got)
	}
	if got := resolveListenAddr("", "production", ""); got != ":80" {
		t.Fatalf("production default = %q, want :80", got)
	}
	if got := resolveListenAddr(":9999", "production", ":7777"); got != ":9999" {
		t.Fatalf("flag should win, got %q", got)
	}
	if got := resolveListenAddr("", "development", ":7777"); got != ":7777" {
		t.Fatalf("env should win over default, got %q", got)
	}
}

func TestResolveStorageDriver(t *testing.T) {
	tests := []struct {
		name    string
		flag    string
		env     string
		dsn     string
		mode    string
		want    string
		wantErr bool
	}{
		{name: "defaults to json", mode: "development", want: "json"},
		{name: "dsn implies postgres", dsn: "postgres://localhost/vidtube", mode: "development", want: "postgres"},
		{name: "explicit flag", flag: "json", mode: "development", want: "json"},
		{name: "production requires postgres", flag: "json", mode: "production", wantErr: true},
		{name: "production with postgres", flag: "postgres", mode: "production", want: "postgres"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveStorageDriver(tc.flag, tc.env, tc.dsn, tc.mode)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got driver %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveStorageDriver: %v", err)
			}
			if got != tc.want {
				t.Fatalf("driver = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolveTokenConfigGeneratesInDevelopment(t *testing.T) {
	resolved, err := resolveTokenConfig(tokenSettings{Mode: "development"})
	if err != nil {
		t.Fatalf("resolveTokenConfig: %v", err)
	}
	if !resolved.generated {
		t.Fatal("expected generated secrets")
	}
	if len(resolved.config.AccessSecret) == 0 || len(resolved.config.RefreshSecret) == 0 {
		t.Fatal("generated secrets are empty")
	}
	if string(resolved.config.AccessSecret) == string(resolved.config.RefreshSecret) {
		t.Fatal("generated secrets should differ")
	}
}

func TestResolveTokenConfigRequiresSecretsInProduction(t *testing.T) {
	if _, err := resolveTokenConfig(tokenSettings{Mode: "production"}); err == nil {
		t.Fatal("expected error for missing production secrets")
	}

	resolved, err := resolveTokenConfig(tokenSettings{
		Mode:          "production",
		AccessSecret:  "access",
		RefreshSecret: "refresh",
		AccessTTL:     time.Minute,
	})
	if err != nil {
		t.Fatalf("resolveTokenConfig: %v", err)
	}
	if resolved.generated {
		t.Fatal("explicit secrets should not be flagged as generated")
	}
	if resolved.config.AccessTTL != time.Minute {
		t.Fatalf("AccessTTL = %v, want 1m", resolved.config.AccessTTL)
	}
}

func TestConfigureUploaderLocal(t *testing.T) {
	dir := t.TempDir()
	uploader, mediaDir, err := configureUploader(context.Background(), mediaSettings{
		Driver:   "local",
		LocalDir: dir,
		Mode:     "development",
	})
	if err != nil {
		t.Fatalf("configureUploader: %v", err)
	}
	if uploader == nil {
		t.Fatal("uploader is nil")
	}
	if mediaDir != dir {
		t.Fatalf("mediaDir = %q, want %q", mediaDir, dir)
	}
}

func TestConfigureUploaderRejectsLocalInProduction(t *testing.T) {
	if _, _, err := configureUploader(context.Background(), mediaSettings{Driver: "local", Mode: "production"}); err == nil {
		t.Fatal("expected error for local driver in production")
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := splitAndTrim(" https://a.example.com , ,https://b.example.com ")
	if len(got) != 2 || got[0] != "https://a.example.com" || got[1] != "https://b.example.com" {
		t.Fatalf("splitAndTrim = %v", got)
	}
	if splitAndTrim("  ") != nil {
		t.Fatal("blank input should yield nil")
	}
}
