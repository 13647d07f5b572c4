// Package dispatcher performs the device-side HTTP calls described by engine
// instructions. Device failures never reach the engine; a committed booking
// stays committed whether or not its device answers.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mktetts/sei-solar-depin/internal/engine"
	"github.com/mktetts/sei-solar-depin/internal/metrics"
)

type Client struct {
	http *http.Client
	log  *logrus.Logger
	met  *metrics.Metrics
}

func New(timeout time.Duration, log *logrus.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http: &http.Client{Timeout: timeout},
		log:  log,
		met:  metrics.Get(),
	}
}

// Dispatch performs the instruction's device call and discards the body.
// Device firmware exposes plain GET endpoints.
func (c *Client) Dispatch(ctx context.Context, ins *engine.Instruction) error {
	if ins == nil {
		return nil
	}
	if ins.DeviceAddress == "" {
		c.log.WithField("bookingId", ins.BookingID).Warn("instruction has no device address, skipping dispatch")
		return nil
	}
	_, err := c.get(ctx, ins.DeviceAddress, ins.Endpoint)
	if err != nil {
		return fmt.Errorf("dispatch booking %d: %w", ins.BookingID, err)
	}
	return nil
}

// StopResult is a device's report after halting delivery.
type StopResult struct {
	DeliveredWh float64 `json:"delivered_Wh"`

	// UnitsScaled is DeliveredWh converted to the engine's fixed-point
	// representation, rounded up so the user is never billed below actual
	// delivery.
	UnitsScaled uint64 `json:"-"`
}

// Stop halts delivery on the device and returns how much energy it reports
// having delivered.
func (c *Client) Stop(ctx context.Context, device string) (StopResult, error) {
	body, err := c.get(ctx, device, "/stop")
	if err != nil {
		return StopResult{}, err
	}
	var res StopResult
	if err := json.Unmarshal(body, &res); err != nil {
		return StopResult{}, fmt.Errorf("stop response from %s: %w", device, err)
	}
	if res.DeliveredWh < 0 {
		res.DeliveredWh = 0
	}
	res.UnitsScaled = uint64(math.Ceil(res.DeliveredWh * engine.Scale))
	return res, nil
}

// Battery probes the device's battery state and returns its raw JSON report.
func (c *Client) Battery(ctx context.Context, device string) (json.RawMessage, error) {
	return c.get(ctx, device, "/battery")
}

// Estimate asks the device how long a delivery of energy at rate would take.
// Arguments are raw scaled integers, the encoding the firmware expects.
func (c *Client) Estimate(ctx context.Context, device string, energy, rate uint64) (json.RawMessage, error) {
	return c.get(ctx, device, fmt.Sprintf("/estimate/%d/%d", energy, rate))
}

func (c *Client) get(ctx context.Context, device, endpoint string) (json.RawMessage, error) {
	corr := uuid.NewString()
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, device+endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Correlation-Id", corr)

	resp, err := c.http.Do(req)
	c.met.DeviceLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		c.met.DeviceCalls.WithLabelValues(endpoint, "error").Inc()
		c.log.WithFields(logrus.Fields{"device": device, "endpoint": endpoint, "correlationId": corr}).
			WithError(err).Error("device call failed")
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.met.DeviceCalls.WithLabelValues(endpoint, "error").Inc()
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.met.DeviceCalls.WithLabelValues(endpoint, "rejected").Inc()
		return nil, fmt.Errorf("device %s%s returned %d", device, endpoint, resp.StatusCode)
	}

	c.met.DeviceCalls.WithLabelValues(endpoint, "ok").Inc()
	c.log.WithFields(logrus.Fields{"device": device, "endpoint": endpoint, "correlationId": corr}).
		Debug("device call ok")
	return body, nil
}
