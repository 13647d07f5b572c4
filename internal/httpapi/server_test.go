package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mktetts/sei-solar-depin/internal/config"
	"github.com/mktetts/sei-solar-depin/internal/dispatcher"
	"github.com/mktetts/sei-solar-depin/internal/node"
)

const testToken = "test-operator-token"

type testEnv struct {
	router http.Handler
	node   *node.Node
	device *httptest.Server

	togglePaths []string
	stopCalls   int
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{}

	env.device = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/stop":
			env.stopCalls++
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"delivered_Wh": 60.0}`))
		default:
			env.togglePaths = append(env.togglePaths, r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(env.device.Close)

	n, err := node.New(node.Options{Operator: "operator", EstimatedCost: 300})
	require.NoError(t, err)
	env.node = n

	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := config.Config{OperatorToken: testToken, DeviceTimeout: time.Second}
	srv := NewServer(cfg, n, dispatcher.New(cfg.DeviceTimeout, log), log)
	env.router = srv.Routes()
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func (env *testEnv) registerStation(t *testing.T) uint64 {
	t.Helper()
	w := env.do(t, http.MethodPost, "/v1/stations", map[string]any{
		"owner":         "owner",
		"uniqueId":      "SOLAR-1",
		"deviceAddress": env.device.URL,
		"pricePerUnit":  1_000_000,
		"capacity":      1000,
		"address":       "12 Beach Rd",
		"latMicro":      12_971_598,
		"lonMicro":      77_594_566,
	}, testToken)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		StationID uint64 `json:"stationId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.StationID
}

func TestBearerGate(t *testing.T) {
	env := setupEnv(t)
	body := map[string]any{"user": "alice", "amount": 1000}

	w := env.do(t, http.MethodPost, "/v1/wallet/deposit", body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/v1/wallet/deposit", body, "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/v1/wallet/deposit", body, testToken)
	assert.Equal(t, http.StatusOK, w.Code)

	// Reads stay open.
	w = env.do(t, http.MethodGet, "/v1/wallet/alice", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDepositAndBalance(t *testing.T) {
	env := setupEnv(t)

	w := env.do(t, http.MethodPost, "/v1/wallet/deposit", map[string]any{"user": "alice", "amount": 5000}, testToken)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/v1/wallet/alice", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Balance uint64 `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(5000), resp.Balance)

	// Zero amounts map to 400.
	w = env.do(t, http.MethodPost, "/v1/wallet/deposit", map[string]any{"user": "alice", "amount": 0}, testToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStationReads(t *testing.T) {
	env := setupEnv(t)
	id := env.registerStation(t)

	w := env.do(t, http.MethodGet, fmt.Sprintf("/v1/stations/%d", id), nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/v1/stations/99", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/v1/stations", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	w = env.do(t, http.MethodGet, "/v1/stations/nearest?lat=12900000&lon=77500000&limit=5", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
}

func TestQuotePrice(t *testing.T) {
	env := setupEnv(t)
	id := env.registerStation(t)

	w := env.do(t, http.MethodGet, fmt.Sprintf("/v1/charging/price?stationId=%d&units=100&rate=500", id), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Price uint64 `json:"price"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(50_000), resp.Price)
}

func TestBuyPowerDispatchesToggle(t *testing.T) {
	env := setupEnv(t)
	id := env.registerStation(t)
	env.do(t, http.MethodPost, "/v1/wallet/deposit", map[string]any{"user": "alice", "amount": 1_000_000}, testToken)

	w := env.do(t, http.MethodPost, "/v1/charging/buy", map[string]any{
		"user": "alice", "stationId": id, "units": 100, "rate": 500,
	}, testToken)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		BookingID  uint64 `json:"bookingId"`
		Price      uint64 `json:"price"`
		Dispatched bool   `json:"dispatched"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(50_000), resp.Price)
	assert.True(t, resp.Dispatched)
	require.Len(t, env.togglePaths, 1)
	assert.Equal(t, "/toggle/100/500", env.togglePaths[0])

	w = env.do(t, http.MethodGet, fmt.Sprintf("/v1/bookings/%d", resp.BookingID), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var bv struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &bv))
	assert.Equal(t, "ACTIVE", bv.Status)
}

func TestBuyPowerInsufficientFunds(t *testing.T) {
	env := setupEnv(t)
	id := env.registerStation(t)
	env.do(t, http.MethodPost, "/v1/wallet/deposit", map[string]any{"user": "alice", "amount": 100}, testToken)

	w := env.do(t, http.MethodPost, "/v1/charging/buy", map[string]any{
		"user": "alice", "stationId": id, "units": 100, "rate": 500,
	}, testToken)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, env.togglePaths)
}

func TestSmartStopAsksDevice(t *testing.T) {
	env := setupEnv(t)
	id := env.registerStation(t)
	env.do(t, http.MethodPost, "/v1/wallet/deposit", map[string]any{"user": "alice", "amount": 1_000_000}, testToken)

	w := env.do(t, http.MethodPost, "/v1/charging/buy", map[string]any{
		"user": "alice", "stationId": id, "units": 100, "rate": 500,
	}, testToken)
	require.Equal(t, http.StatusCreated, w.Code)

	// No bookingId, no unitsConsumed: latest active booking, device-reported
	// consumption (60 Wh -> 60000 scaled, capped at the 100 booked units).
	w = env.do(t, http.MethodPost, "/v1/charging/stop", map[string]any{"user": "alice"}, testToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.stopCalls)

	var resp struct {
		UnitsConsumed uint64 `json:"unitsConsumed"`
		Refund        uint64 `json:"refund"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(100), resp.UnitsConsumed)
	assert.Zero(t, resp.Refund)

	// Nothing left to stop.
	w = env.do(t, http.MethodPost, "/v1/charging/stop", map[string]any{"user": "alice"}, testToken)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExplicitStop(t *testing.T) {
	env := setupEnv(t)
	id := env.registerStation(t)
	env.do(t, http.MethodPost, "/v1/wallet/deposit", map[string]any{"user": "alice", "amount": 1_000_000}, testToken)

	w := env.do(t, http.MethodPost, "/v1/charging/buy", map[string]any{
		"user": "alice", "stationId": id, "units": 100, "rate": 500,
	}, testToken)
	require.Equal(t, http.StatusCreated, w.Code)
	var buy struct {
		BookingID uint64 `json:"bookingId"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &buy))

	w = env.do(t, http.MethodPost, "/v1/charging/stop", map[string]any{
		"user": "alice", "bookingId": buy.BookingID, "unitsConsumed": 60,
	}, testToken)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Refund uint64 `json:"refund"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(20_000), resp.Refund)
	// Explicit consumption still dispatches the stop to the device.
	assert.Equal(t, 1, env.stopCalls)
}

func TestEarningsFlow(t *testing.T) {
	env := setupEnv(t)
	id := env.registerStation(t)
	env.do(t, http.MethodPost, "/v1/wallet/deposit", map[string]any{"user": "alice", "amount": 1_000_000}, testToken)
	env.do(t, http.MethodPost, "/v1/charging/buy", map[string]any{
		"user": "alice", "stationId": id, "units": 100, "rate": 500,
	}, testToken)

	w := env.do(t, http.MethodGet, "/v1/earnings/owner", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var earn struct {
		Earnings uint64 `json:"earnings"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &earn))
	assert.Equal(t, uint64(50_000), earn.Earnings)

	w = env.do(t, http.MethodPost, "/v1/earnings/withdraw", map[string]any{"owner": "owner"}, testToken)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodPost, "/v1/earnings/withdraw", map[string]any{"owner": "owner"}, testToken)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCostsEndpoint(t *testing.T) {
	env := setupEnv(t)

	w := env.do(t, http.MethodGet, "/v1/costs", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		EstimatedCost uint64            `json:"estimatedCost"`
		Costs         map[string]uint64 `json:"costs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(300), resp.EstimatedCost)
	assert.Equal(t, uint64(100), resp.Costs["prebook"])
}

func TestHealthz(t *testing.T) {
	env := setupEnv(t)
	w := env.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}
