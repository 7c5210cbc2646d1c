package powerinfo

import (
	"context"
	"fmt"
	"math"

	"github.com/distatus/battery"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// BatteryReader reads all batteries through github.com/distatus/battery.
type BatteryReader struct {
	// getAll is swapped in tests.
	getAll func() ([]*battery.Battery, error)
}

var _ Reader = &BatteryReader{}

func NewBatteryReader() *BatteryReader {
	return &BatteryReader{getAll: battery.GetAll}
}

type batteryResult struct {
	batteries []*battery.Battery
	err       error
}

// Sample queries all batteries. The OS call itself cannot be cancelled, so it
// runs in its own goroutine and Sample gives up when ctx is done.
func (r *BatteryReader) Sample(ctx context.Context) ([]Reading, error) {
	ch := make(chan batteryResult, 1)
	go func() {
		bats, err := r.getAll()
		ch <- batteryResult{batteries: bats, err: err}
	}()

	var res batteryResult
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, &QueryError{Op: "get batteries", Err: ctx.Err()}
	}

	var perSource battery.Errors
	switch e := res.err.(type) {
	case nil:
	case battery.ErrFatal:
		return nil, &QueryError{Op: "get batteries", Err: e}
	case battery.Errors:
		perSource = e
	default:
		return nil, &QueryError{Op: "get batteries", Err: e}
	}

	readings := make([]Reading, 0, len(res.batteries))
	for i, bat := range res.batteries {
		id := fmt.Sprintf("BAT%d", i)

		var sourceErr error
		if i < len(perSource) {
			sourceErr = perSource[i]
		}

		reading, err := readingFromBattery(id, bat, sourceErr)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"source": id,
			}).Debugf("skipping power source: %v", err)
			continue
		}

		readings = append(readings, reading)
	}

	return readings, nil
}

func readingFromBattery(id string, bat *battery.Battery, sourceErr error) (Reading, error) {
	if bat == nil {
		return Reading{}, pkgerrors.New("no battery data")
	}

	switch e := sourceErr.(type) {
	case nil:
	case battery.ErrPartial:
		// Other fields (rates, voltages) are not needed to decide alerts.
		if e.Current != nil {
			return Reading{}, pkgerrors.Wrap(e.Current, "current capacity unavailable")
		}
		if e.Full != nil {
			return Reading{}, pkgerrors.Wrap(e.Full, "full capacity unavailable")
		}
		if e.State != nil {
			return Reading{}, pkgerrors.Wrap(e.State, "charging state unavailable")
		}
	default:
		return Reading{}, sourceErr
	}

	if bat.Full <= 0 {
		return Reading{}, pkgerrors.Errorf("invalid full capacity %f", bat.Full)
	}

	var charging bool
	switch bat.State {
	case battery.Charging, battery.Full:
		charging = true
	case battery.Discharging, battery.Empty:
		charging = false
	default:
		return Reading{}, pkgerrors.Errorf("unknown charging state %v", bat.State)
	}

	return Reading{
		SourceID:        id,
		CapacityPercent: CapacityPercent(bat.Current, bat.Full),
		IsCharging:      charging,
	}, nil
}

// CapacityPercent converts current/full capacity to a rounded 0-100 value.
func CapacityPercent(current, full float64) int {
	if full <= 0 {
		return 0
	}
	return ClampPercent(int(math.Round(current / full * 100)))
}

// ClampPercent bounds p to [0, 100].
func ClampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
