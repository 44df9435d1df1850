package telemetry_test

import (
	"errors"
	"testing"
	"time"

	"carbonledger/internal/telemetry"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestNormalize_VerboseShape(t *testing.T) {
	raw := []byte(`{"deviceId":"AA:BB:CC","co2Value":600,"energyValue":300,"temperature":21.5,"humidity":40,"timestamp":1748779200}`)

	r, err := telemetry.Normalize(raw, "", testNow)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if r.DeviceID != "AA:BB:CC" {
		t.Errorf("DeviceID = %q, want AA:BB:CC", r.DeviceID)
	}
	if r.Co2Value != 600 || r.EnergyValue != 300 {
		t.Errorf("values = (%v, %v), want (600, 300)", r.Co2Value, r.EnergyValue)
	}
	if r.Timestamp != time.Unix(1748779200, 0).UTC() {
		t.Errorf("Timestamp = %v, want unix 1748779200", r.Timestamp)
	}
	if r.ContentHash == "" {
		t.Error("ContentHash is empty")
	}
}

func TestNormalize_CompactShape(t *testing.T) {
	raw := []byte(`{"c":512,"h":38,"cr":0.5,"e":120,"o":true,"t":1748779200}`)

	r, err := telemetry.Normalize(raw, "device-7", testNow)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if r.DeviceID != "device-7" {
		t.Errorf("DeviceID = %q, want fallback device-7", r.DeviceID)
	}
	if r.Co2Value != 512 || r.EnergyValue != 120 || r.Humidity != 38 {
		t.Errorf("values = (%v, %v, %v), want (512, 120, 38)", r.Co2Value, r.EnergyValue, r.Humidity)
	}
}

func TestNormalize_CompactInlineDeviceOverridesFallback(t *testing.T) {
	raw := []byte(`{"d":"inline-id","c":1,"e":2,"t":1748779200}`)

	r, err := telemetry.Normalize(raw, "fallback-id", testNow)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if r.DeviceID != "inline-id" {
		t.Errorf("DeviceID = %q, want inline-id", r.DeviceID)
	}
}

func TestNormalize_MissingRequiredFields(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"verbose no co2", `{"deviceId":"x","energyValue":1}`},
		{"verbose no energy", `{"deviceId":"x","co2Value":1}`},
		{"compact no energy", `{"c":1,"t":100}`},
		{"no device anywhere", `{"co2Value":1,"energyValue":1}`},
		{"unrecognized shape", `{"foo":1}`},
		{"not an object", `[1,2,3]`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := telemetry.Normalize([]byte(tc.raw), "", testNow)
			var verr *telemetry.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestNormalize_RejectsNegativeValues(t *testing.T) {
	raw := []byte(`{"deviceId":"x","co2Value":-5,"energyValue":1}`)
	if _, err := telemetry.Normalize(raw, "", testNow); err == nil {
		t.Fatal("expected error for negative co2, got nil")
	}
}

func TestContentHash_StableAcrossShapesAndKeyOrder(t *testing.T) {
	verbose := []byte(`{"deviceId":"dev-1","co2Value":600,"energyValue":300,"humidity":40,"timestamp":1748779200}`)
	verboseReordered := []byte(`{"timestamp":1748779200,"humidity":40,"energyValue":300,"co2Value":600,"deviceId":"dev-1"}`)
	compact := []byte(`{"d":"dev-1","c":600,"e":300,"h":40,"t":1748779200}`)

	a, err := telemetry.Normalize(verbose, "", testNow)
	if err != nil {
		t.Fatalf("verbose: %v", err)
	}
	b, err := telemetry.Normalize(verboseReordered, "", testNow)
	if err != nil {
		t.Fatalf("reordered: %v", err)
	}
	c, err := telemetry.Normalize(compact, "", testNow)
	if err != nil {
		t.Fatalf("compact: %v", err)
	}

	if a.ContentHash != b.ContentHash {
		t.Errorf("key order changed the hash: %s != %s", a.ContentHash, b.ContentHash)
	}
	if a.ContentHash != c.ContentHash {
		t.Errorf("wire shape changed the hash: %s != %s", a.ContentHash, c.ContentHash)
	}
}

func TestContentHash_DistinguishesPayloads(t *testing.T) {
	a, _ := telemetry.Normalize([]byte(`{"deviceId":"dev-1","co2Value":600,"energyValue":300,"timestamp":100}`), "", testNow)
	b, _ := telemetry.Normalize([]byte(`{"deviceId":"dev-1","co2Value":601,"energyValue":300,"timestamp":100}`), "", testNow)
	if a.ContentHash == b.ContentHash {
		t.Error("different co2 values produced identical hashes")
	}
}
