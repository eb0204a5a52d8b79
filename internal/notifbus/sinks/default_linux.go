//go:build linux

package sinks

import "github.com/meridian-pim/meridian/internal/notifbus"

// NewDefaultSink returns the platform's preferred desktop sink: direct
// D-Bus on Linux, matching the teacher's useDirectDBus default.
func NewDefaultSink(appName string) (notifbus.Sink, func() error, error) {
	s, err := NewDBusSink(appName)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}
