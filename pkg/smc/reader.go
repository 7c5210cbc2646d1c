//go:build darwin

package smc

import (
	"context"

	"github.com/charlie0129/battalert/pkg/powerinfo"
)

// SourceID names the internal battery, the only source SMC reports.
const SourceID = "InternalBattery-0"

var _ powerinfo.Reader = &AppleSMC{}

// Sample reads the internal battery straight from SMC. It is faster than
// going through IOKit power source dictionaries and needs the same access.
func (c *AppleSMC) Sample(ctx context.Context) ([]powerinfo.Reading, error) {
	if err := ctx.Err(); err != nil {
		return nil, &powerinfo.QueryError{Op: "smc", Err: err}
	}

	charge, err := c.GetBatteryCharge()
	if err != nil {
		return nil, &powerinfo.QueryError{Op: "smc read " + BatteryChargeKey, Err: err}
	}

	pluggedIn, err := c.IsPluggedIn()
	if err != nil {
		return nil, &powerinfo.QueryError{Op: "smc read " + ACPowerKey, Err: err}
	}

	return []powerinfo.Reading{{
		SourceID:        SourceID,
		CapacityPercent: powerinfo.ClampPercent(charge),
		IsCharging:      pluggedIn,
	}}, nil
}
