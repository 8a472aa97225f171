package mpool

import "github.com/go-i2p/logger"

// log is the package-level structured logger for pool lifecycle events
// (pool creation, connect failures, evictions, close). Matches and other
// slot transitions are not logged.
var log = logger.GetGoI2PLogger()

// SetLogger replaces the logger used for internal pool diagnostics.
func SetLogger(l *logger.Logger) {
	if l == nil {
		return
	}
	log = l
}
