package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"go.uber.org/zap"

	"carbonledger/internal/logger"
	"carbonledger/internal/service"

	"github.com/gin-gonic/gin"
)

const testAPIKey = "valid-key"
const testCompany = "acme-green"

func testLogger() *logger.Logger {
	return &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// newTestService fills unset slots with fresh mocks so handlers never hit a
// nil service.
func newTestService(ing *mockIngestion, dev *mockDevices, led *mockLedger, rd *mockReadings) *service.Service {
	if ing == nil {
		ing = &mockIngestion{}
	}
	if dev == nil {
		dev = &mockDevices{}
	}
	if led == nil {
		led = &mockLedger{}
	}
	if rd == nil {
		rd = &mockReadings{}
	}
	return &service.Service{
		Ingestion: ing,
		Devices:   dev,
		Ledger:    led,
		Readings:  rd,
	}
}

func newTestRouter(s *service.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(s, map[string]string{testAPIKey: testCompany}, testLogger())
	return h.InitRoutes()
}

// doRequest runs one authenticated request through the router.
func doRequest(r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("X-API-Key", testAPIKey)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}
