package mailbox

import (
	"context"
	"fmt"
	"sort"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// Config describes how to reach the remote mailbox.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// Mailbox is the folder every operation runs against. For Gmail
	// this must be the All Mail folder so each message has exactly one
	// UID regardless of labels.
	Mailbox string
}

func (c Config) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RawMessage is the header-only payload for one fetched message.
type RawMessage struct {
	// Header is the raw RFC 5322 header block.
	Header []byte

	// Size is the remote-reported RFC822.SIZE in bytes.
	Size int64
}

// Session is the narrow contract the sync and cleanup engines need from a
// connected, authenticated, folder-selected IMAP session. Implemented by
// IMAPSession and by fakes in tests.
type Session interface {
	// ListUIDs returns every UID currently present in the selected
	// folder, sorted ascending.
	ListUIDs(ctx context.Context) ([]uint32, error)

	// FetchHeaders fetches raw headers and sizes for the given UIDs.
	// UIDs the server no longer knows are simply absent from the
	// result, not an error.
	FetchHeaders(ctx context.Context, uids []uint32) (map[uint32]RawMessage, error)

	// MarkDeleted flags the given UIDs \Deleted.
	MarkDeleted(ctx context.Context, uids []uint32) error

	// Expunge permanently removes \Deleted messages from the folder.
	Expunge(ctx context.Context) error

	Close() error
}

// IMAPSession is a live go-imap session against one folder.
type IMAPSession struct {
	cli      *imapclient.Client
	mailbox  string
	readOnly bool
}

var _ Session = (*IMAPSession)(nil)

// Dial connects over implicit TLS, authenticates, and selects the
// configured folder read-only. The caller owns the returned session and
// must Close it.
func Dial(_ context.Context, cfg Config) (*IMAPSession, error) {
	cli, err := imapclient.DialTLS(cfg.addr(), nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", cfg.addr(), classify(err))
	}

	if err := cli.Login(cfg.Username, cfg.Password).Wait(); err != nil {
		_ = cli.Logout().Wait()
		return nil, &AuthError{
			Account: cfg.Username,
			Message: fmt.Sprintf("authentication failed: %v", err),
		}
	}

	s := &IMAPSession{cli: cli, mailbox: cfg.Mailbox}
	if err := s.selectMailbox(true); err != nil {
		_ = cli.Logout().Wait()
		return nil, err
	}

	return s, nil
}

// selectMailbox selects the session folder, read-only unless a mutation
// is about to happen. No-op when the desired mode is already selected.
func (s *IMAPSession) selectMailbox(readOnly bool) error {
	opts := &imap.SelectOptions{ReadOnly: readOnly}
	if _, err := s.cli.Select(s.mailbox, opts).Wait(); err != nil {
		return fmt.Errorf("selecting %s: %w", s.mailbox, classify(err))
	}
	s.readOnly = readOnly
	return nil
}

// ListUIDs returns all UIDs in the folder, sorted ascending.
func (s *IMAPSession) ListUIDs(_ context.Context) ([]uint32, error) {
	data, err := s.cli.UIDSearch(&imap.SearchCriteria{}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("listing UIDs: %w", classify(err))
	}

	raw := data.AllUIDs()
	uids := make([]uint32, len(raw))
	for i, uid := range raw {
		uids[i] = uint32(uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}

// FetchHeaders fetches the raw header block and size for each UID.
// BODY.PEEK keeps Gmail from flagging the messages \Seen.
func (s *IMAPSession) FetchHeaders(_ context.Context, uids []uint32) (map[uint32]RawMessage, error) {
	result := make(map[uint32]RawMessage, len(uids))
	if len(uids) == 0 {
		return result, nil
	}

	section := &imap.FetchItemBodySection{
		Specifier: imap.PartSpecifierHeader,
		Peek:      true,
	}
	fetchOpts := &imap.FetchOptions{
		UID:         true,
		RFC822Size:  true,
		BodySection: []*imap.FetchItemBodySection{section},
	}

	fetchCmd := s.cli.Fetch(uidSet(uids), fetchOpts)
	defer fetchCmd.Close()

	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}

		header := buf.FindBodySection(section)
		if header == nil {
			continue
		}
		result[uint32(buf.UID)] = RawMessage{
			Header: header,
			Size:   buf.RFC822Size,
		}
	}

	if err := fetchCmd.Close(); err != nil {
		return result, fmt.Errorf("fetching headers: %w", classify(err))
	}

	return result, nil
}

// MarkDeleted re-selects read-write and flags the UIDs \Deleted. Gmail
// moves them to Trash; Expunge drops them from All Mail.
func (s *IMAPSession) MarkDeleted(_ context.Context, uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}

	if s.readOnly {
		if err := s.selectMailbox(false); err != nil {
			return err
		}
	}

	storeCmd := s.cli.Store(uidSet(uids), &imap.StoreFlags{
		Op:     imap.StoreFlagsAdd,
		Silent: true,
		Flags:  []imap.Flag{imap.FlagDeleted},
	}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("marking %d messages deleted: %w", len(uids), classify(err))
	}

	return nil
}

// Expunge removes \Deleted messages and drops the session back to
// read-only.
func (s *IMAPSession) Expunge(_ context.Context) error {
	if _, err := s.cli.Expunge().Collect(); err != nil {
		return fmt.Errorf("expunging: %w", classify(err))
	}
	return s.selectMailbox(true)
}

// Close logs out and closes the connection.
func (s *IMAPSession) Close() error {
	return s.cli.Logout().Wait()
}

func uidSet(uids []uint32) imap.UIDSet {
	ids := make([]imap.UID, len(uids))
	for i, uid := range uids {
		ids[i] = imap.UID(uid)
	}
	return imap.UIDSetNum(ids...)
}
