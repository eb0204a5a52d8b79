package thread

import (
	"testing"
	"time"

	"github.com/meridian-pim/meridian/internal/message"
)

func msg(id, subject, inReplyTo string, refs []string, date time.Time) *message.Message {
	return &message.Message{
		ID:         id,
		MessageID:  id,
		Subject:    subject,
		InReplyTo:  inReplyTo,
		References: refs,
		Date:       date,
		FromEmail:  "a@example.com",
	}
}

func TestBuildReferenceGraphSimpleChain(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m1 := msg("m1", "hello", "", nil, base)
	m2 := msg("m2", "Re: hello", "m1", []string{"m1"}, base.Add(time.Hour))
	m3 := msg("m3", "Re: hello", "m2", []string{"m1", "m2"}, base.Add(2*time.Hour))

	conversations := BuildConversations([]*message.Message{m3, m1, m2}, AlgorithmReferenceGraph)
	if len(conversations) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(conversations))
	}
	root := conversations[0].Root
	if root.Message == nil || root.Message.ID != "m1" {
		t.Fatalf("expected root m1, got %+v", root.Message)
	}
	if len(root.Children) != 1 || root.Children[0].Message.ID != "m2" {
		t.Fatalf("expected m2 as sole child of m1")
	}
}

func TestBuildReferenceGraphSeparateRootsWithoutReferences(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m1 := msg("m1", "quarterly sync", "", nil, base)
	m2 := msg("m2", "quarterly sync", "", []string{"unresolved-ref"}, base.Add(time.Hour))

	conversations := BuildConversations([]*message.Message{m1, m2}, AlgorithmReferenceGraph)
	if len(conversations) != 2 {
		t.Fatalf("expected 2 separate roots per the stricter threading resolution, got %d", len(conversations))
	}
}

func TestBuildReferenceGraphMergesRootsWithNoReferencesAtAll(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m1 := msg("m1", "status update", "", nil, base)
	m2 := msg("m2", "Re: status update", "", nil, base.Add(time.Hour))

	conversations := BuildConversations([]*message.Message{m1, m2}, AlgorithmReferenceGraph)
	if len(conversations) != 1 {
		t.Fatalf("expected messages with zero references to merge by subject, got %d conversations", len(conversations))
	}
}

func TestDedupByMessageID(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m1 := msg("dup", "hi", "", nil, base)
	m2 := msg("dup", "hi", "", nil, base.Add(time.Minute))

	conversations := BuildConversations([]*message.Message{m1, m2}, AlgorithmReferenceGraph)
	if len(conversations) != 1 || len(conversations[0].Messages) != 1 {
		t.Fatalf("expected duplicate message id to collapse to a single message")
	}
}

func TestDedupBySenderSubjectWindow(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m1 := &message.Message{ID: "a", Subject: "ping", FromEmail: "x@example.com", Date: base}
	m2 := &message.Message{ID: "b", Subject: "ping", FromEmail: "x@example.com", Date: base.Add(30 * time.Second)}
	m3 := &message.Message{ID: "c", Subject: "ping", FromEmail: "x@example.com", Date: base.Add(5 * time.Minute)}

	conversations := BuildConversations([]*message.Message{m1, m2, m3}, AlgorithmSimple)
	total := 0
	for _, c := range conversations {
		total += len(c.Messages)
	}
	if total != 2 {
		t.Fatalf("expected m2 to be dropped as a within-window duplicate of m1, total=%d", total)
	}
}

func TestNormalizeSubjectStripsRepeatedPrefixes(t *testing.T) {
	got := normalizeSubject("Re: Fwd: RE: Project Status")
	if got != "project status" {
		t.Fatalf("got %q", got)
	}
}

func TestBuildSimpleOrdersChildrenByDate(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m1 := msg("m1", "topic", "", nil, base.Add(2*time.Hour))
	m2 := msg("m2", "Re: topic", "", nil, base)
	m3 := msg("m3", "Re: topic", "", nil, base.Add(time.Hour))

	conversations := buildSimple([]*message.Message{m1, m2, m3})
	if len(conversations) != 1 {
		t.Fatalf("expected single conversation")
	}
	root := conversations[0].Root
	if root.Message.ID != "m2" {
		t.Fatalf("expected earliest message m2 as root, got %s", root.Message.ID)
	}
	if len(root.Children) != 2 || root.Children[0].Message.ID != "m3" || root.Children[1].Message.ID != "m1" {
		t.Fatalf("expected children ordered by date (m3, m1), got %+v", root.Children)
	}
}
