package storage

import (
	"strings"

	"github.com/plan-systems/klog"
)

// KlogLogger routes BadgerDB's internal logging to klog. Info messages are
// verbose-only; BadgerDB is chatty on open and compaction.
type KlogLogger struct{}

// Errorf implements badger.Logger.
func (KlogLogger) Errorf(format string, args ...interface{}) {
	klog.Errorf("badger: "+trimNewline(format), args...)
}

// Warningf implements badger.Logger.
func (KlogLogger) Warningf(format string, args ...interface{}) {
	klog.Warningf("badger: "+trimNewline(format), args...)
}

// Infof implements badger.Logger.
func (KlogLogger) Infof(format string, args ...interface{}) {
	klog.V(2).Infof("badger: "+trimNewline(format), args...)
}

// Debugf implements badger.Logger.
func (KlogLogger) Debugf(format string, args ...interface{}) {
	klog.V(5).Infof("badger: "+trimNewline(format), args...)
}

func trimNewline(s string) string { return strings.TrimSuffix(s, "\n") }
