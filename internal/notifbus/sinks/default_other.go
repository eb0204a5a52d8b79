//go:build !linux

package sinks

import "github.com/meridian-pim/meridian/internal/notifbus"

// NewDefaultSink returns the platform's preferred desktop sink: go-toast
// everywhere except Linux, where DBusSink is used instead.
func NewDefaultSink(appName string) (notifbus.Sink, func() error, error) {
	return NewToastSink(appName), func() error { return nil }, nil
}
