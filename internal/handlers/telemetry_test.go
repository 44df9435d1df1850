package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"carbonledger/internal/models"
	"carbonledger/internal/service"
	"carbonledger/internal/telemetry"
)

func TestIngestTelemetry_Created(t *testing.T) {
	ing := &mockIngestion{res: service.IngestResult{
		ReadingID: "reading-1",
		Accumulator: models.AccumulatorSnapshot{
			DeviceID: "sensor-1", TotalCo2: 600, TotalEnergy: 300, SampleCount: 1,
		},
	}}
	r := newTestRouter(newTestService(ing, nil, nil, nil))

	w := doRequest(r, http.MethodPost, "/api/v1/telemetry?device_id=sensor-1",
		`{"deviceId":"sensor-1","co2Value":600,"energyValue":300}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	if ing.calls != 1 {
		t.Fatalf("Ingest calls = %d, want 1", ing.calls)
	}
	if ing.lastCompany != testCompany {
		t.Errorf("company = %q, want %q", ing.lastCompany, testCompany)
	}
	if ing.lastFallback != "sensor-1" {
		t.Errorf("fallback device id = %q, want sensor-1", ing.lastFallback)
	}

	var res service.IngestResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if res.ReadingID != "reading-1" || res.Accumulator.TotalCo2 != 600 {
		t.Errorf("response = %+v", res)
	}
}

func TestIngestTelemetry_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
	}{
		{"validation", &telemetry.ValidationError{Field: "co2Value", Reason: "is required"}, http.StatusBadRequest},
		{"unknown device", service.ErrUnknownDevice, http.StatusNotFound},
		{"foreign device", service.ErrDeviceConflict, http.StatusConflict},
		{"unauthorized", service.ErrUnauthorized, http.StatusUnauthorized},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"canceled", context.Canceled, http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing := &mockIngestion{err: tt.err}
			r := newTestRouter(newTestService(ing, nil, nil, nil))

			w := doRequest(r, http.MethodPost, "/api/v1/telemetry",
				`{"deviceId":"sensor-1","co2Value":600,"energyValue":300}`)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}
}

func TestIngestTelemetry_TimeoutReportsUnknownOutcome(t *testing.T) {
	ing := &mockIngestion{err: context.DeadlineExceeded}
	r := newTestRouter(newTestService(ing, nil, nil, nil))

	w := doRequest(r, http.MethodPost, "/api/v1/telemetry",
		`{"deviceId":"sensor-1","co2Value":600,"energyValue":300}`)
	if w.Code != http.StatusGatewayTimeout {
		t.Fatalf("status = %d, want 504", w.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// The reading may already be durable; the client must not assume failure.
	if body["outcome"] != "unknown" {
		t.Errorf(`outcome = %q, want "unknown"`, body["outcome"])
	}
}
