package thread

import (
	"fmt"
	"testing"
	"time"

	"github.com/meridian-pim/meridian/internal/message"
)

// corpusScale generates numThreads conversations of roughly even size
// totaling numMessages messages, each message referencing the one before
// it in its thread, the same reply-chain shape TestBuildReferenceGraphSimpleChain
// exercises at unit scale.
func corpusScale(numMessages, numThreads int) []*message.Message {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	msgs := make([]*message.Message, 0, numMessages)
	perThread := numMessages / numThreads
	for t := 0; t < numThreads; t++ {
		subject := fmt.Sprintf("thread %d", t)
		var prevID string
		var refs []string
		for i := 0; i < perThread; i++ {
			id := fmt.Sprintf("t%d-m%d", t, i)
			s := subject
			if i > 0 {
				s = "Re: " + subject
				refs = append(refs, prevID)
			}
			msgs = append(msgs, &message.Message{
				ID:         id,
				MessageID:  id,
				Subject:    s,
				InReplyTo:  prevID,
				References: append([]string(nil), refs...),
				Date:       base.Add(time.Duration(t) * time.Hour).Add(time.Duration(i) * time.Minute),
				FromEmail:  fmt.Sprintf("sender%d@example.com", t),
			})
			prevID = id
		}
	}
	return msgs
}

// BenchmarkBuildConversationsReferenceGraph exercises the 2,000-message,
// 100-thread corpus scale named for threading performance.
func BenchmarkBuildConversationsReferenceGraph(b *testing.B) {
	msgs := corpusScale(2000, 100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		BuildConversations(msgs, AlgorithmReferenceGraph)
	}
}

func BenchmarkBuildConversationsSimple(b *testing.B) {
	msgs := corpusScale(2000, 100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		BuildConversations(msgs, AlgorithmSimple)
	}
}

func BenchmarkDedup(b *testing.B) {
	msgs := corpusScale(2000, 100)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		dedup(msgs)
	}
}
