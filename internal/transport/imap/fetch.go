package imap

import (
	"context"
	"fmt"
	"io"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// SearchUIDsAbove returns every UID in the selected mailbox strictly
// greater than minUID (0 to fetch the whole mailbox). The server has no
// cheap "greater than" search term, so this searches the full mailbox and
// filters client-side — fine at mailbox scale, and mirrors the teacher's
// own fetchAllUIDs/fetchUIDsSince split in internal/sync/messages.go.
func (c *Client) SearchUIDsAbove(ctx context.Context, minUID uint32) ([]uint32, error) {
	if c.client == nil {
		return nil, fmt.Errorf("not connected")
	}

	type searchResult struct {
		data *imap.SearchData
		err  error
	}
	resultCh := make(chan searchResult, 1)
	go func() {
		data, err := c.client.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
		resultCh <- searchResult{data, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultCh:
		if result.err != nil {
			return nil, fmt.Errorf("UID search failed: %w", result.err)
		}
		var uids []uint32
		for _, uid := range result.data.AllUIDs() {
			if uint32(uid) > minUID {
				uids = append(uids, uint32(uid))
			}
		}
		return uids, nil
	}
}

// RawMessage is one fetched message: its UID and full RFC 5322 body, plus
// the flags the server currently reports for it.
type RawMessage struct {
	UID   uint32
	Flags []imap.Flag
	Raw   []byte
}

// FetchRawByUID fetches the full body and flags for each uid in the
// selected mailbox.
func (c *Client) FetchRawByUID(ctx context.Context, uids []uint32) ([]RawMessage, error) {
	if c.client == nil {
		return nil, fmt.Errorf("not connected")
	}
	if len(uids) == 0 {
		return nil, nil
	}

	uidSet := imap.UIDSet{}
	for _, uid := range uids {
		uidSet.AddNum(imap.UID(uid))
	}

	options := &imap.FetchOptions{
		UID:         true,
		Flags:       true,
		BodySection: []*imap.FetchItemBodySection{{Peek: true}},
	}

	type fetchResult struct {
		msgs []RawMessage
		err  error
	}
	resultCh := make(chan fetchResult, 1)
	go func() {
		fetchCmd := c.client.Fetch(uidSet, options)
		var msgs []RawMessage
		for {
			msg := fetchCmd.Next()
			if msg == nil {
				break
			}
			rm, err := readFetchMessage(msg)
			if err != nil {
				resultCh <- fetchResult{err: err}
				return
			}
			msgs = append(msgs, rm)
		}
		resultCh <- fetchResult{msgs: msgs, err: fetchCmd.Close()}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultCh:
		if result.err != nil {
			return nil, fmt.Errorf("UID fetch failed: %w", result.err)
		}
		return result.msgs, nil
	}
}

func readFetchMessage(msg *imapclient.FetchMessageData) (RawMessage, error) {
	var rm RawMessage
	for {
		item := msg.Next()
		if item == nil {
			break
		}
		switch data := item.(type) {
		case imapclient.FetchItemDataUID:
			rm.UID = uint32(data.UID)
		case imapclient.FetchItemDataFlags:
			rm.Flags = data.Flags
		case imapclient.FetchItemDataBodySection:
			raw, err := io.ReadAll(data.Literal)
			if err != nil {
				return rm, fmt.Errorf("failed to read body section: %w", err)
			}
			rm.Raw = raw
		}
	}
	return rm, nil
}
