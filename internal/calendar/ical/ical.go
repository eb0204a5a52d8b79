// Package ical implements the Invitation Processor's iCalendar (RFC 5545
// subset) parsing, per spec §4.6: VCALENDAR/VEVENT with METHOD, UID,
// DTSTART, DTEND, SUMMARY, DESCRIPTION, LOCATION, SEQUENCE, STATUS,
// ORGANIZER and ATTENDEE.
package ical

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	goical "github.com/emersion/go-ical"
	"github.com/meridian-pim/meridian/internal/calendar"
)

// Method mirrors iCalendar's top-level METHOD property, the dispatch key
// for the Invitation Processor's reconciliation rules.
type Method string

const (
	MethodRequest        Method = "REQUEST"
	MethodReply          Method = "REPLY"
	MethodCancel         Method = "CANCEL"
	MethodRefresh        Method = "REFRESH"
	MethodCounter        Method = "COUNTER"
	MethodDeclineCounter Method = "DECLINE-COUNTER"
)

// Invite is one parsed VEVENT together with the enclosing VCALENDAR's
// METHOD.
type Invite struct {
	Method Method
	Event  *calendar.Event
}

// Parse decodes raw as a VCALENDAR document and returns one Invite per
// contained VEVENT.
func Parse(raw []byte) ([]*Invite, error) {
	dec := goical.NewDecoder(strings.NewReader(string(raw)))
	cal, err := dec.Decode()
	if err != nil {
		return nil, fmt.Errorf("ical: failed to decode calendar: %w", err)
	}

	method := Method(strings.ToUpper(propValue(cal.Component, "METHOD")))

	var invites []*Invite
	for _, child := range cal.Children {
		if child.Name != "VEVENT" {
			continue
		}
		ev, err := eventFromComponent(child)
		if err != nil {
			continue // one malformed VEVENT must not drop the rest of the batch
		}
		invites = append(invites, &Invite{Method: method, Event: ev})
	}
	return invites, nil
}

// LooksLikeICS reports whether b is plausibly an iCalendar document,
// used by the Invitation Processor to classify attachments/bodies that
// lack a declared content type.
func LooksLikeICS(b []byte) bool {
	return strings.Contains(string(b), "BEGIN:VCALENDAR")
}

func eventFromComponent(c *goical.Component) (*calendar.Event, error) {
	uid := propValue(c, "UID")
	if uid == "" {
		return nil, fmt.Errorf("ical: VEVENT missing UID")
	}

	start, err := parseDateTime(propValue(c, "DTSTART"))
	if err != nil {
		return nil, fmt.Errorf("ical: invalid DTSTART: %w", err)
	}
	end, err := parseDateTime(propValue(c, "DTEND"))
	if err != nil {
		// Some producers omit DTEND for zero-duration events; fall back to DTSTART.
		end = start
	}

	seq := 0
	if s := propValue(c, "SEQUENCE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			seq = n
		}
	}

	e := &calendar.Event{
		UID:         uid,
		Title:       propValue(c, "SUMMARY"),
		Description: propValue(c, "DESCRIPTION"),
		Location:    propValue(c, "LOCATION"),
		StartAt:     start,
		EndAt:       end,
		AllDay:      isDateOnly(propValue(c, "DTSTART")),
		Status:      statusFromICS(propValue(c, "STATUS")),
		Sequence:    seq,
		Recurrence:  propValue(c, "RRULE"),
	}

	if org := propValue(c, "ORGANIZER"); org != "" {
		e.Organizer = &calendar.Attendee{Email: stripMailto(org), IsOrganizer: true, PartStat: calendar.PartStatAccepted}
	}

	for _, p := range c.Props["ATTENDEE"] {
		a := calendar.Attendee{
			Email:    stripMailto(p.Value),
			Name:     paramValue(p, "CN"),
			PartStat: partStatFromICS(paramValue(p, "PARTSTAT")),
		}
		e.Attendees = append(e.Attendees, a)
	}

	return e, nil
}

func propValue(c *goical.Component, name string) string {
	props, ok := c.Props[name]
	if !ok || len(props) == 0 {
		return ""
	}
	return props[0].Value
}

func paramValue(p goical.Prop, name string) string {
	if p.Params == nil {
		return ""
	}
	vs := p.Params[name]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

func stripMailto(s string) string {
	return strings.TrimPrefix(strings.ToLower(s), "mailto:")
}

func statusFromICS(s string) calendar.EventStatus {
	switch strings.ToUpper(s) {
	case "CANCELLED":
		return calendar.StatusCancelled
	case "TENTATIVE":
		return calendar.StatusTentative
	default:
		return calendar.StatusConfirmed
	}
}

func partStatFromICS(s string) calendar.PartStat {
	switch strings.ToUpper(s) {
	case "ACCEPTED":
		return calendar.PartStatAccepted
	case "DECLINED":
		return calendar.PartStatDeclined
	case "TENTATIVE":
		return calendar.PartStatTentative
	case "DELEGATED":
		return calendar.PartStatDelegated
	default:
		return calendar.PartStatNeedsAction
	}
}

// isDateOnly reports whether a DTSTART/DTEND value is a bare date
// (YYYYMMDD) rather than a date-time, per spec §4.6's all-day detection.
func isDateOnly(v string) bool {
	return len(v) == 8
}

// parseDateTime accepts the three DTSTART/DTEND formats named in spec
// §4.6: YYYYMMDDTHHMMSSZ, YYYYMMDDTHHMMSS and YYYYMMDD.
func parseDateTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, fmt.Errorf("empty value")
	}
	switch len(v) {
	case 16: // YYYYMMDDTHHMMSSZ
		return time.Parse("20060102T150405Z", v)
	case 15: // YYYYMMDDTHHMMSS (floating/local time, treated as UTC)
		return time.ParseInLocation("20060102T150405", v, time.UTC)
	case 8: // YYYYMMDD
		return time.ParseInLocation("20060102", v, time.UTC)
	default:
		return time.Time{}, fmt.Errorf("unrecognized date-time format %q", v)
	}
}
