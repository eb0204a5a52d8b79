package main

import (
	"testing"

	"github.com/meridian-pim/meridian/internal/account"
	"github.com/meridian-pim/meridian/internal/ai"
	"github.com/meridian-pim/meridian/internal/transport/imap"
)

func TestParsePrivacyMode(t *testing.T) {
	cases := []struct {
		in   string
		want ai.PrivacyMode
	}{
		{"LocalOnly", ai.LocalOnly},
		{"CloudAllowed", ai.CloudAllowed},
		{"LocalPreferred", ai.LocalPreferred},
		{"", ai.LocalPreferred},
		{"garbage", ai.LocalPreferred},
	}
	for _, tc := range cases {
		if got := parsePrivacyMode(tc.in); got != tc.want {
			t.Errorf("parsePrivacyMode(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestSecurityFor(t *testing.T) {
	if got := securityFor(true); got != imap.SecurityTLS {
		t.Errorf("securityFor(true) = %v, want SecurityTLS", got)
	}
	if got := securityFor(false); got != imap.SecurityStartTLS {
		t.Errorf("securityFor(false) = %v, want SecurityStartTLS", got)
	}
}

func TestAccountTransportKind(t *testing.T) {
	cases := []struct {
		in   string
		want account.TransportKind
	}{
		{"imap", account.TransportIMAP},
		{"caldav", account.TransportCalDAV},
		{"gcal", account.TransportGoogle},
		{"local", account.TransportLocal},
	}
	for _, tc := range cases {
		if got := accountTransportKind(tc.in); got != tc.want {
			t.Errorf("accountTransportKind(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
