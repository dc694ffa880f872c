package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ajayykmr/bulkmailer-go/internal/config"
)

func writeCampaignFixture(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "recipients.csv")
	if err := os.WriteFile(csvPath, []byte("name,email\nAda,ada@example.com\nGrace,grace@example.com\n"), 0o600); err != nil {
		t.Fatalf("write recipients fixture: %v", err)
	}

	definition := "subject: Launch update\nbody_html: <p>Hello</p>\nrecipients_csv: recipients.csv\n"
	campaignPath := filepath.Join(dir, "campaign.yaml")
	if err := os.WriteFile(campaignPath, []byte(definition), 0o600); err != nil {
		t.Fatalf("write campaign fixture: %v", err)
	}
	return campaignPath
}

func runnerConfig() *config.Config {
	return &config.Config{
		Transport: config.TransportConfig{
			Mode: "mock",
			From: "sender@example.com",
		},
		Retry: config.RetryConfig{MaxAttempts: 3},
	}
}

func TestRunDeliversMockCampaign(t *testing.T) {
	campaignPath := writeCampaignFixture(t)

	if err := run(context.Background(), campaignPath, runnerConfig(), zerolog.Nop()); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
}

// Failures after the transport session is opened must surface as a returned
// error so that main's deferred session close still runs, instead of tearing
// the process down mid-flight.
func TestRunReturnsEngineInitError(t *testing.T) {
	campaignPath := writeCampaignFixture(t)

	cfg := runnerConfig()
	cfg.Retry.MaxAttempts = 0

	err := run(context.Background(), campaignPath, cfg, zerolog.Nop())
	if err == nil {
		t.Fatal("expected an error for a zero attempt budget")
	}
	if !strings.Contains(err.Error(), "initialise dispatch engine") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunFailsWithoutCampaignDefinition(t *testing.T) {
	err := run(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"), runnerConfig(), zerolog.Nop())
	if err == nil {
		t.Fatal("expected an error for a missing campaign definition")
	}
}
