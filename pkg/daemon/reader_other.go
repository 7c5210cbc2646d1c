//go:build !darwin

package daemon

import "github.com/charlie0129/battalert/pkg/powerinfo"

func newReader() (powerinfo.Reader, func()) {
	return powerinfo.NewBatteryReader(), func() {}
}
