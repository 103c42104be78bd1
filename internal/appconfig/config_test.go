package appconfig

import (
	"testing"

	"pkt.systems/termbridge/schema"
)

func TestDefaultConfigHasWorkingDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ConfigVersion != CurrentConfigVersion {
		t.Fatalf("config_version = %d", cfg.ConfigVersion)
	}
	if err := validateBridgeConfig(cfg.Bridge); err != nil {
		t.Fatalf("default bridge config invalid: %v", err)
	}
	if cfg.Host.ScrollbackBytes <= 0 || cfg.Host.HighWaterBytes <= 0 {
		t.Fatalf("host retention defaults = %+v", cfg.Host)
	}
}

func TestToServiceCarriesSettings(t *testing.T) {
	svc := DefaultConfig().Bridge.ToService()
	if svc.BufferMaxChunks != schema.DefaultBufferMaxChunks {
		t.Fatalf("buffer max chunks = %d", svc.BufferMaxChunks)
	}
	if svc.LayoutSettleDelay != schema.DefaultLayoutSettleDelay {
		t.Fatalf("layout settle delay = %v", svc.LayoutSettleDelay)
	}
	if svc.AccelDowngrade == nil || !*svc.AccelDowngrade {
		t.Fatalf("accel downgrade = %v", svc.AccelDowngrade)
	}
}
