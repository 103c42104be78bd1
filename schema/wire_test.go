package schema

import (
	"errors"
	"strings"
	"testing"
)

func TestEncodeBridgeMessageTagsFrame(t *testing.T) {
	data, err := EncodeBridgeMessage(CreateMessage{Workspace: "proj/dev"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(data), `"type":"create"`) {
		t.Fatalf("missing type tag: %s", data)
	}
	msg, err := DecodeBridgeMessage(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	create, ok := msg.(CreateMessage)
	if !ok {
		t.Fatalf("expected CreateMessage, got %T", msg)
	}
	if create.Workspace != "proj/dev" {
		t.Fatalf("unexpected workspace %q", create.Workspace)
	}
}

func TestEncodeFieldlessMessage(t *testing.T) {
	data, err := EncodeBridgeMessage(ListMessage{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data) != `{"type":"list"}` {
		t.Fatalf("unexpected frame: %s", data)
	}
}

func TestDecodeHostOutputCarriesBytes(t *testing.T) {
	frame, err := EncodeHostMessage(OutputMessage{SessionID: "s1", Data: []byte("ls -la\r\n")})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := DecodeHostMessage(frame)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out, ok := msg.(OutputMessage)
	if !ok {
		t.Fatalf("expected OutputMessage, got %T", msg)
	}
	if string(out.Data) != "ls -la\r\n" {
		t.Fatalf("unexpected data %q", out.Data)
	}
}

func TestDecodeUnknownTypeFails(t *testing.T) {
	_, err := DecodeHostMessage([]byte(`{"type":"telemetry"}`))
	if !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
	_, err = DecodeBridgeMessage([]byte(`{"type":""}`))
	if !errors.Is(err, ErrUnknownMessage) {
		t.Fatalf("expected ErrUnknownMessage, got %v", err)
	}
}

func TestDecodeMalformedFrameFails(t *testing.T) {
	_, err := DecodeHostMessage([]byte(`not json`))
	if !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestNormalizeBridgeConfigDefaults(t *testing.T) {
	cfg, err := NormalizeBridgeConfig(BridgeConfig{})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.BufferMaxChunks != DefaultBufferMaxChunks {
		t.Fatalf("expected default cap, got %d", cfg.BufferMaxChunks)
	}
	if cfg.LayoutSettleDelay != DefaultLayoutSettleDelay {
		t.Fatalf("expected default settle delay, got %v", cfg.LayoutSettleDelay)
	}
	if cfg.AccelDowngrade == nil || !*cfg.AccelDowngrade {
		t.Fatalf("expected downgrade default true")
	}
}

func TestNormalizeBridgeConfigRejectsNegativeCap(t *testing.T) {
	if _, err := NormalizeBridgeConfig(BridgeConfig{BufferMaxChunks: -1}); err == nil {
		t.Fatalf("expected error for negative cap")
	}
}
