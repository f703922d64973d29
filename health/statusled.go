package health

import (
	"context"
	"log/slog"

	"github.com/mklimuk/sensord/gpio"
)

// StatusLED drives a two-pin green/red indicator on an MCP23017 expander,
// reflecting the monitor's overall status. It is optional: constructed only
// when [monitoring].status_led_enabled is set in configuration.
type StatusLED struct {
	driver *gpio.MCP23017
	logger *slog.Logger
}

// NewStatusLED initializes the expander's output pins. Returns an error if
// the initial IODIR write fails; callers should treat that as non-fatal and
// simply not attach the LED.
func NewStatusLED(ctx context.Context, driver *gpio.MCP23017, logger *slog.Logger) (*StatusLED, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := driver.InitOutputs(ctx); err != nil {
		return nil, err
	}
	return &StatusLED{driver: driver, logger: logger}, nil
}

// SetHealthy lights the green pin when healthy, red otherwise. Write
// failures are logged, never propagated: a dead LED must not affect
// daemon health.
func (l *StatusLED) SetHealthy(ctx context.Context, healthy bool) {
	pins := gpio.PinRed
	if healthy {
		pins = gpio.PinGreen
	}
	if err := l.driver.SetPins(ctx, pins); err != nil {
		l.logger.Debug("status led write failed", "err", err)
	}
}
