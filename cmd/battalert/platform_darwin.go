package main

import (
	"fmt"

	"github.com/charlie0129/battalert/pkg/utils/osver"
)

// checkPlatform requires a macOS with Notification Center scripting.
func checkPlatform() error {
	if !osver.IsAtLeast(10, 9, 0) {
		return fmt.Errorf("battalert requires macOS 10.9 or later, this is %s", osver.Get())
	}
	return nil
}
