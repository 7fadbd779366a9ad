package tracing

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/musebot/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TelemetryConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if shutdown == nil {
		t.Fatal("Setup returned nil shutdown")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestSetupRejectsUnknownProtocol(t *testing.T) {
	_, err := Setup(context.Background(), config.TelemetryConfig{
		Enabled:  true,
		Protocol: "carrier-pigeon",
	}, "test")
	if err == nil {
		t.Fatal("Setup accepted an unknown protocol")
	}
}
