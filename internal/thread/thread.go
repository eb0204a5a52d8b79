// Package thread implements the Threading Engine (spec §4.4): it
// materializes conversation trees from a list of messages, either via a
// JWZ-style reference-graph container algorithm or a simple
// subject-equivalence grouping, and applies the dedup rule shared by both.
package thread

import (
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/meridian-pim/meridian/internal/message"
)

// Algorithm selects which threading strategy materializes conversation
// trees.
type Algorithm int

const (
	// AlgorithmReferenceGraph builds containers keyed by message-id and
	// links children to the most recent reference (JWZ-style).
	AlgorithmReferenceGraph Algorithm = iota
	// AlgorithmSimple groups by normalized subject only.
	AlgorithmSimple
)

// Conversation is a materialized, rooted conversation tree. It is never
// persisted — callers recompute it on demand from a message list.
type Conversation struct {
	Root     *Node
	Messages []*message.Message // flattened, depth-first, for convenience
}

// Node is one message (or, transiently during reference-graph
// construction, a phantom placeholder) within a Conversation tree.
type Node struct {
	Message  *message.Message // nil for an unresolved phantom container
	Children []*Node
}

// BuildConversations materializes conversation trees from msgs using algo.
// Deduplicates per the shared rule before threading: a message is dropped
// as a duplicate of an earlier one in msgs iff they share a non-empty
// message id, or share sender + normalized subject within 60 seconds of
// each other.
func BuildConversations(msgs []*message.Message, algo Algorithm) []*Conversation {
	deduped := dedup(msgs)
	switch algo {
	case AlgorithmSimple:
		return buildSimple(deduped)
	default:
		return buildReferenceGraph(deduped)
	}
}

func dedup(msgs []*message.Message) []*message.Message {
	type key struct {
		sender  string
		subject string
	}
	seenByID := map[string]bool{}
	var seenByKey []struct {
		k    key
		date time.Time
	}

	var out []*message.Message
	for _, m := range msgs {
		if m.MessageID != "" {
			if seenByID[m.MessageID] {
				continue
			}
		}

		k := key{sender: strings.ToLower(m.FromEmail), subject: normalizeSubject(m.Subject)}
		duplicate := lo.ContainsBy(seenByKey, func(s struct {
			k    key
			date time.Time
		}) bool {
			return s.k == k && absDuration(m.Date.Sub(s.date)) < 60*time.Second
		})
		if duplicate {
			continue
		}

		if m.MessageID != "" {
			seenByID[m.MessageID] = true
		}
		seenByKey = append(seenByKey, struct {
			k    key
			date time.Time
		}{k, m.Date})
		out = append(out, m)
	}
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

var replyForwardPrefixes = []string{"re:", "fwd:", "fw:", "aw:", "sv:", "vs:"}

// normalizeSubject strips leading reply/forward markers (repeated, case
// insensitive) and collapses whitespace, per spec §3's Conversation
// definition.
func normalizeSubject(subject string) string {
	s := strings.TrimSpace(subject)
	for {
		lower := strings.ToLower(s)
		prefix, found := lo.Find(replyForwardPrefixes, func(p string) bool { return strings.HasPrefix(lower, p) })
		if !found {
			break
		}
		s = strings.TrimSpace(s[len(prefix):])
	}
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func buildSimple(msgs []*message.Message) []*Conversation {
	groups := map[string][]*message.Message{}
	var order []string
	for _, m := range msgs {
		key := normalizeSubject(m.Subject)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], m)
	}

	var conversations []*Conversation
	for _, key := range order {
		group := groups[key]
		sort.SliceStable(group, func(i, j int) bool { return group[i].Date.Before(group[j].Date) })

		root := &Node{Message: group[0]}
		cur := root
		for _, m := range group[1:] {
			child := &Node{Message: m}
			cur.Children = append(cur.Children, child)
		}
		conversations = append(conversations, &Conversation{Root: root, Messages: group})
	}
	return conversations
}

// container is a JWZ-style node keyed by message-id; it may carry no
// message (a phantom, referenced but never delivered) while still linking
// real children together.
type container struct {
	id       string
	msg      *message.Message
	parent   *container
	children []*container
}

// buildReferenceGraph implements the JWZ-style algorithm from spec §4.4:
// one container per referenced message-id, each message linked to the
// container of its most recent reference (last References entry, falling
// back to In-Reply-To), phantom containers below a root with exactly one
// child promoted in place, phantom roots kept as roots (with a nil
// Message) whatever their number of children, and subject-based merging
// applied only to roots that carry a message whose message-id is never
// referenced by anything else.
func buildReferenceGraph(msgs []*message.Message) []*Conversation {
	containers := map[string]*container{}
	get := func(id string) *container {
		if id == "" {
			return nil
		}
		c, ok := containers[id]
		if !ok {
			c = &container{id: id}
			containers[id] = c
		}
		return c
	}

	var order []string // message ids in encounter order, for determinism
	referenced := map[string]bool{}

	for _, m := range msgs {
		id := m.MessageID
		if id == "" {
			// Messages with no message-id get a synthetic, unreferenceable
			// one so they still participate as a node.
			id = "synthetic:" + m.ID
		}
		c := get(id)
		if c.msg == nil {
			order = append(order, id)
		}
		c.msg = m

		var parentID string
		if len(m.References) > 0 {
			parentID = m.References[len(m.References)-1]
		} else if m.InReplyTo != "" {
			parentID = m.InReplyTo
		}

		for _, ref := range m.References {
			referenced[ref] = true
		}
		if m.InReplyTo != "" {
			referenced[m.InReplyTo] = true
		}

		if parentID != "" && parentID != id {
			parent := get(parentID)
			linkChild(parent, c)
		}

		// Chain up intermediate references so the full graph is connected
		// even when an intermediate message was never delivered.
		if len(m.References) > 1 {
			for i := len(m.References) - 1; i > 0; i-- {
				child := get(m.References[i])
				parent := get(m.References[i-1])
				if child.parent == nil {
					linkChild(parent, child)
				}
			}
		}
	}

	// Roots: containers with no parent.
	var roots []*container
	seenRoot := map[*container]bool{}
	for _, id := range order {
		c := containers[id]
		root := c
		visited := map[*container]bool{}
		for root.parent != nil && !visited[root] {
			visited[root] = true
			root = root.parent
		}
		if !seenRoot[root] {
			seenRoot[root] = true
			roots = append(roots, root)
		}
	}

	// Promote phantom containers with exactly one child in place beneath
	// each root; a phantom root itself stays the root (its Node.Message is
	// nil), whatever its number of children.
	for _, root := range roots {
		promotePhantoms(root)
	}

	// Subject-based merge: only for roots whose message-id (if any) is
	// never referenced elsewhere, per the stricter resolution of spec §9's
	// open question.
	merged := mergeBySubject(roots, referenced)

	var conversations []*Conversation
	for _, root := range merged {
		node, flat := toNode(root)
		sortChildrenByDate(node)
		conversations = append(conversations, &Conversation{Root: node, Messages: flat})
	}
	return conversations
}

func linkChild(parent, child *container) {
	if parent == child || child.parent == parent {
		return
	}
	// Break cycles: never link if child is already an ancestor of parent.
	for p := parent; p != nil; p = p.parent {
		if p == child {
			return
		}
	}
	if child.parent != nil {
		removeChild(child.parent, child)
	}
	child.parent = parent
	parent.children = append(parent.children, child)
}

func removeChild(parent, child *container) {
	out := parent.children[:0]
	for _, c := range parent.children {
		if c != child {
			out = append(out, c)
		}
	}
	parent.children = out
}

// promotePhantoms replaces a childless-message container with its single
// child in its parent's child list, recursively.
func promotePhantoms(c *container) {
	for i, child := range c.children {
		promotePhantoms(child)
		if child.msg == nil && len(child.children) == 1 {
			c.children[i] = child.children[0]
			c.children[i].parent = c
		}
	}
}

// mergeBySubject groups roots sharing a normalized subject into one
// conversation, but only among roots whose message-id was never itself
// referenced by another message — merging referenced roots would conflate
// distinct reply chains that merely share a subject line.
func mergeBySubject(roots []*container, referenced map[string]bool) []*container {
	var mergeable, fixed []*container
	for _, r := range roots {
		if r.msg != nil && !referenced[r.msg.MessageID] && r.msg.MessageID != "" {
			mergeable = append(mergeable, r)
		} else {
			fixed = append(fixed, r)
		}
	}

	groups := map[string][]*container{}
	var order []string
	for _, r := range mergeable {
		subj := ""
		if r.msg != nil {
			subj = normalizeSubject(r.msg.Subject)
		}
		if _, ok := groups[subj]; !ok {
			order = append(order, subj)
		}
		groups[subj] = append(groups[subj], r)
	}

	var out []*container
	out = append(out, fixed...)
	for _, subj := range order {
		group := groups[subj]
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			return earliestDate(group[i]).Before(earliestDate(group[j]))
		})
		head := group[0]
		for _, other := range group[1:] {
			linkChild(head, other)
		}
		out = append(out, head)
	}
	return out
}

func earliestDate(c *container) time.Time {
	best := time.Time{}
	var walk func(*container)
	walk = func(n *container) {
		if n.msg != nil {
			if best.IsZero() || n.msg.Date.Before(best) {
				best = n.msg.Date
			}
		}
		for _, ch := range n.children {
			walk(ch)
		}
	}
	walk(c)
	return best
}

func toNode(c *container) (*Node, []*message.Message) {
	node := &Node{Message: c.msg}
	var flat []*message.Message
	if c.msg != nil {
		flat = append(flat, c.msg)
	}
	for _, ch := range c.children {
		childNode, childFlat := toNode(ch)
		node.Children = append(node.Children, childNode)
		flat = append(flat, childFlat...)
	}
	return node, flat
}

// sortChildrenByDate orders every node's children by date ascending. It
// does not change which node is the root: that is the parentless
// container found in buildReferenceGraph (for a subject merge, the
// group's earliest root).
func sortChildrenByDate(n *Node) {
	sort.SliceStable(n.Children, func(i, j int) bool {
		return dateOf(n.Children[i]).Before(dateOf(n.Children[j]))
	})
	for _, c := range n.Children {
		sortChildrenByDate(c)
	}
}

func dateOf(n *Node) time.Time {
	if n.Message != nil {
		return n.Message.Date
	}
	if len(n.Children) > 0 {
		return dateOf(n.Children[0])
	}
	return time.Time{}
}
