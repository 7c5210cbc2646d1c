package daemon

import (
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battalert/pkg/powerinfo"
	"github.com/charlie0129/battalert/pkg/smc"
)

// newReader prefers SMC and falls back to IOKit power sources when SMC
// cannot be opened, e.g. when not running as root.
func newReader() (powerinfo.Reader, func()) {
	conn := smc.New()
	if err := conn.Open(); err != nil {
		logrus.Warnf("failed to open smc, falling back to power source info: %v", err)
		return powerinfo.NewBatteryReader(), func() {}
	}

	return conn, func() {
		logrus.Info("closing smc connection")
		if err := conn.Close(); err != nil {
			logrus.Errorf("failed to close smc connection: %v", err)
		}
	}
}
