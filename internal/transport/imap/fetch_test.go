package imap

import (
	"context"
	"testing"
)

func TestSearchUIDsAboveNotConnected(t *testing.T) {
	c := NewClient(DefaultConfig())
	if _, err := c.SearchUIDsAbove(context.Background(), 0); err == nil {
		t.Fatalf("expected an error before Connect")
	}
}

func TestFetchRawByUIDNotConnected(t *testing.T) {
	c := NewClient(DefaultConfig())
	if _, err := c.FetchRawByUID(context.Background(), []uint32{1}); err == nil {
		t.Fatalf("expected an error before Connect")
	}
}

func TestFetchRawByUIDEmptyIsNoop(t *testing.T) {
	c := NewClient(DefaultConfig())
	msgs, err := c.FetchRawByUID(context.Background(), nil)
	if err != nil {
		t.Fatalf("expected nil error for empty uids, got %v", err)
	}
	if msgs != nil {
		t.Fatalf("expected nil result for empty uids, got %v", msgs)
	}
}
