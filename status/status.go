// Package status signals a fatal relay failure to someone standing next to
// the board: an LED blinks and the log repeats the cause until the process
// is stopped.
package status

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/ystepanoff/mdrelay/internal/util"
)

const DefaultBlinkPeriod = 500 * time.Millisecond

// Indicator is a two-state failure signal.
type Indicator interface {
	Set(on bool) error
}

// LED drives a Linux LED class device, e.g. /sys/class/leds/led0.
type LED struct {
	path string
}

func NewLED(dir string) *LED {
	return &LED{path: filepath.Join(dir, "brightness")}
}

func (l *LED) Set(on bool) error {
	v := []byte("0")
	if on {
		v = []byte("1")
	}
	if err := os.WriteFile(l.path, v, 0o644); err != nil {
		return fmt.Errorf("status led: %w", err)
	}
	return nil
}

// Log reports the failure on the error log each time it turns on.
type Log struct {
	Cause error
}

func (l Log) Set(on bool) error {
	if on {
		util.LogError("[Status] relay halted: %v", l.Cause)
	}
	return nil
}

// Multi drives several indicators together.
type Multi []Indicator

func (m Multi) Set(on bool) error {
	var result *multierror.Error
	for _, ind := range m {
		if err := ind.Set(on); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// Fail toggles ind every period until ctx is cancelled, then leaves it
// off. An indicator that cannot be driven is reported once and Fail keeps
// blinking the rest.
func Fail(ctx context.Context, ind Indicator, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	on := true
	reported := false
	for {
		if err := ind.Set(on); err != nil && !reported {
			util.LogWarning("[Status] %v", err)
			reported = true
		}
		select {
		case <-ticker.C:
			on = !on
		case <-ctx.Done():
			ind.Set(false)
			return
		}
	}
}
