//go:build darwin

package smc

// SMC keys read by battalert. Verified on Apple Silicon only.
const (
	ACPowerKey       = "AC-W"
	BatteryChargeKey = "BUIC"
)
