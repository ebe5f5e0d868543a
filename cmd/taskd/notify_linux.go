//go:build linux

package main

import (
	sddaemon "github.com/coreos/go-systemd/v22/daemon"

	"taskd/pkg/logx"
)

// notifyReady tells systemd the daemon is up. A false return just means we
// are not running under a Type=notify unit.
func notifyReady(log logx.Logger) {
	sent, err := sddaemon.SdNotify(false, sddaemon.SdNotifyReady)
	if err != nil {
		log.Warn("sd_notify failed", logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify: ready")
	}
}

func notifyStopping(log logx.Logger) {
	if _, err := sddaemon.SdNotify(false, sddaemon.SdNotifyStopping); err != nil {
		log.Warn("sd_notify failed", logx.Err(err))
	}
}
