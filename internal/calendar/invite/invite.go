// Package invite implements the Invitation Processor (spec §4.6): it
// scans newly stored inbound messages for embedded iCalendar invitations
// and reconciles them against the Calendar Store.
package invite

import (
	"strings"

	"github.com/meridian-pim/meridian/internal/calendar"
	"github.com/meridian-pim/meridian/internal/calendar/ical"
	"github.com/meridian-pim/meridian/internal/logging"
	"github.com/meridian-pim/meridian/internal/message"
	"github.com/rs/zerolog"
)

var icsExtensions = []string{".ics", ".vcs", ".ifb", ".ical"}

// Processor scans inbound messages for calendar invitations and
// reconciles them against the Calendar Store.
type Processor struct {
	store       *calendar.Store
	userEmails  map[string]struct{}
	defaultCal  string
	log         zerolog.Logger
}

// NewProcessor creates a Processor. userEmails is the set of addresses
// (case-insensitive) that identify "the user" among an event's
// attendees. defaultCalendarID is where new REQUEST-method invitations
// land absent any other routing.
func NewProcessor(store *calendar.Store, userEmails []string, defaultCalendarID string) *Processor {
	set := make(map[string]struct{}, len(userEmails))
	for _, e := range userEmails {
		set[strings.ToLower(e)] = struct{}{}
	}
	return &Processor{
		store:      store,
		userEmails: set,
		defaultCal: defaultCalendarID,
		log:        logging.WithComponent("invite"),
	}
}

// Result reports what the processor did with one message.
type Result struct {
	Processed bool
	Invites   []*ical.Invite
	Errors    []string
}

// Process scans m for an embedded invitation and reconciles it against
// the Calendar Store. A message with no invitation yields a zero-value,
// non-processed Result and no error.
func (p *Processor) Process(m *message.Message) (*Result, error) {
	raw := p.extract(m)
	if raw == nil {
		return &Result{}, nil
	}

	invites, err := ical.Parse(raw)
	if err != nil {
		return &Result{Errors: []string{err.Error()}}, nil
	}

	result := &Result{Processed: true, Invites: invites}
	for _, inv := range invites {
		if err := p.reconcile(inv); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
	}
	return result, nil
}

// extract locates the raw iCalendar bytes embedded in m: first via
// attachment content-type/filename, then by scanning the plaintext body
// for BEGIN:VCALENDAR, per spec §4.6.
func (p *Processor) extract(m *message.Message) []byte {
	for _, a := range m.Attachments {
		if looksLikeICSAttachment(a) && len(a.Bytes) > 0 {
			return a.Bytes
		}
	}
	if ical.LooksLikeICS([]byte(m.BodyText)) {
		return []byte(m.BodyText)
	}
	return nil
}

func looksLikeICSAttachment(a message.Attachment) bool {
	ct := strings.ToLower(a.ContentType)
	if ct == "text/calendar" || ct == "application/ics" {
		return true
	}
	name := strings.ToLower(a.Filename)
	for _, ext := range icsExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// reconcile applies spec §4.6's per-METHOD rules.
func (p *Processor) reconcile(inv *ical.Invite) error {
	ev := inv.Event
	if ev.CalendarID == "" {
		ev.CalendarID = p.defaultCal
	}

	switch inv.Method {
	case ical.MethodRequest, ical.MethodRefresh:
		existing, err := p.store.GetEventByUID(ev.UID)
		if err != nil {
			return err
		}
		if existing != nil && ev.Sequence <= existing.Sequence {
			return nil // higher sequence required to overwrite, per spec
		}
		return p.store.StoreEvent(ev)

	case ical.MethodCancel:
		existing, err := p.store.GetEventByUID(ev.UID)
		if err != nil {
			return err
		}
		if existing == nil {
			return nil
		}
		existing.Status = calendar.StatusCancelled
		existing.Sequence = ev.Sequence
		return p.store.StoreEvent(existing)

	case ical.MethodReply:
		return p.applyReply(ev)

	case ical.MethodCounter, ical.MethodDeclineCounter:
		p.log.Info().Str("uid", ev.UID).Str("method", string(inv.Method)).
			Msg("counter-proposal recorded, requires human action")
		return nil

	default:
		return nil
	}
}

// applyReply updates the matching attendee's PARTSTAT without touching
// time or location, per spec §4.6.
func (p *Processor) applyReply(reply *calendar.Event) error {
	existing, err := p.store.GetEventByUID(reply.UID)
	if err != nil || existing == nil {
		return err
	}
	if len(reply.Attendees) == 0 {
		return nil
	}
	replyAttendee := reply.Attendees[0]
	updated := false
	for i := range existing.Attendees {
		if strings.EqualFold(existing.Attendees[i].Email, replyAttendee.Email) {
			existing.Attendees[i].PartStat = replyAttendee.PartStat
			updated = true
			break
		}
	}
	if !updated {
		return nil
	}
	return p.store.StoreEvent(existing)
}

// IsUserInvited reports whether any attendee on ev matches the
// configured user email set, and if so returns that attendee's current
// PARTSTAT.
func (p *Processor) IsUserInvited(ev *calendar.Event) (invited bool, status calendar.PartStat) {
	for _, a := range ev.Attendees {
		if _, ok := p.userEmails[strings.ToLower(a.Email)]; ok {
			return true, a.PartStat
		}
	}
	return false, ""
}
