// meridian is the PIM core engine's command-line entry point: a daemon
// ("serve") plus the maildir import/export and search utilities a
// front-end or script can drive without the daemon running.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/meridian-pim/meridian/internal/account"
	"github.com/meridian-pim/meridian/internal/ai"
	"github.com/meridian-pim/meridian/internal/ai/providers"
	"github.com/meridian-pim/meridian/internal/calendar"
	"github.com/meridian-pim/meridian/internal/calendar/invite"
	"github.com/meridian-pim/meridian/internal/config"
	"github.com/meridian-pim/meridian/internal/credentials"
	"github.com/meridian-pim/meridian/internal/database"
	"github.com/meridian-pim/meridian/internal/folder"
	"github.com/meridian-pim/meridian/internal/logging"
	"github.com/meridian-pim/meridian/internal/maildir"
	"github.com/meridian-pim/meridian/internal/message"
	"github.com/meridian-pim/meridian/internal/notifbus"
	"github.com/meridian-pim/meridian/internal/notifbus/sinks"
	internaloauth2 "github.com/meridian-pim/meridian/internal/oauth2"
	"github.com/meridian-pim/meridian/internal/platform"
	"github.com/meridian-pim/meridian/internal/settings"
	"github.com/meridian-pim/meridian/internal/synccoord"
	"github.com/meridian-pim/meridian/internal/thread"
	"github.com/meridian-pim/meridian/internal/transport/caldav"
	"github.com/meridian-pim/meridian/internal/transport/gcal"
	"github.com/meridian-pim/meridian/internal/transport/imap"
)

var (
	cfgFile string
	dataDir string
	debug   bool
	cfg     *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "meridian",
	Short: "Personal information manager core: mail, calendar, and AI-assisted triage",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}
		logging.Init(debug)

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if dataDir == "" {
			dataDir = cfg.DataDir
		}
		if dataDir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("failed to resolve home directory: %w", err)
			}
			dataDir = filepath.Join(home, ".local", "share", "meridian")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default: ~/.local/share/meridian)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(importMaildirCmd)
	rootCmd.AddCommand(exportMaildirCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(threadsCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(autostartCmd)
}

// stores bundles the opened databases and domain stores every subcommand
// needs, so each RunE doesn't repeat the open/migrate dance.
type stores struct {
	messageDB *database.DB
	calDB     *database.DB

	accounts  *account.Store
	messages  *message.Store
	folders   *folder.Store
	calendars *calendar.Store
	creds     *credentials.Store
	settings  *settings.Store
}

func openStores() (*stores, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	messageDB, err := database.Open(filepath.Join(dataDir, "messages.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open message database: %w", err)
	}
	if err := messageDB.Migrate(database.MessageMigrations); err != nil {
		messageDB.Close()
		return nil, fmt.Errorf("failed to migrate message database: %w", err)
	}

	calDB, err := database.Open(filepath.Join(dataDir, "calendar.db"))
	if err != nil {
		messageDB.Close()
		return nil, fmt.Errorf("failed to open calendar database: %w", err)
	}
	if err := calDB.Migrate(database.CalendarMigrations); err != nil {
		messageDB.Close()
		calDB.Close()
		return nil, fmt.Errorf("failed to migrate calendar database: %w", err)
	}

	credStore, err := credentials.NewStore(messageDB.DB, dataDir)
	if err != nil {
		messageDB.Close()
		calDB.Close()
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	return &stores{
		messageDB: messageDB,
		calDB:     calDB,
		accounts:  account.NewStore(messageDB),
		messages:  message.NewStore(messageDB),
		folders:   folder.NewStore(messageDB),
		calendars: calendar.NewStore(calDB),
		creds:     credStore,
		settings:  settings.NewStore(messageDB),
	}, nil
}

func (s *stores) Close() {
	s.messageDB.Close()
	s.calDB.Close()
}

var importMaildirCmd = &cobra.Command{
	Use:   "import-maildir <account-id> <maildir-root>",
	Short: "Import a Maildir tree into the message store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID, root := args[0], args[1]

		st, err := openStores()
		if err != nil {
			return err
		}
		defer st.Close()

		importer := maildir.NewImporter(st.messages)
		importer.SetAttachmentDir(filepath.Join(dataDir, "attachments"))
		result, err := importer.Import(accountID, root, maildir.ImportConfig{
			IncludeDrafts:      cfg.Maildir.IncludeDrafts,
			IncludeDeleted:     cfg.Maildir.IncludeDeleted,
			PreserveTimestamps: cfg.Maildir.PreserveTimestamps,
			SkipDuplicates:     cfg.Maildir.SkipDuplicates,
			ValidateFormat:     cfg.Maildir.ValidateFormat,
		})
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		fmt.Printf("Folders found:     %d\n", result.FoldersFound)
		fmt.Printf("Messages found:    %d\n", result.MessagesFound)
		fmt.Printf("Messages imported: %d\n", result.MessagesImported)
		fmt.Printf("Messages failed:   %d\n", result.MessagesFailed)
		fmt.Printf("Duplicates skipped: %d\n", result.DuplicatesSkipped)
		for _, e := range result.Errors {
			fmt.Printf("  error: %s\n", e)
		}
		return nil
	},
}

var exportMaildirCmd = &cobra.Command{
	Use:   "export-maildir <account-id> <folder> <output-root> <hostname>",
	Short: "Export a stored folder to a Maildir tree on disk",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID, folderName, root, hostname := args[0], args[1], args[2], args[3]

		st, err := openStores()
		if err != nil {
			return err
		}
		defer st.Close()

		msgs, err := st.messages.GetMessages(accountID, folderName, -1)
		if err != nil {
			return fmt.Errorf("failed to load messages: %w", err)
		}

		exporter := maildir.NewExporter(hostname)
		result, err := exporter.ExportFolder(root, folderName, msgs)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		fmt.Printf("Messages exported: %d\n", result.MessagesExported)
		fmt.Printf("Messages failed:   %d\n", result.MessagesFailed)
		for _, e := range result.Errors {
			fmt.Printf("  error: %s\n", e)
		}
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <account-id> <query>",
	Short: "Full-text search a message store",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID, query := args[0], args[1]

		st, err := openStores()
		if err != nil {
			return err
		}
		defer st.Close()

		results, err := st.messages.Search(accountID, query, 50)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		for _, r := range results {
			fmt.Printf("%-8.3f %-30s %s\n", r.Rank, r.Message.FromEmail, r.Message.Subject)
		}
		return nil
	},
}

var threadsCmd = &cobra.Command{
	Use:   "threads <account-id> <folder>",
	Short: "Group a folder's messages into conversation trees",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		accountID, folderName := args[0], args[1]

		st, err := openStores()
		if err != nil {
			return err
		}
		defer st.Close()

		msgs, err := st.messages.GetMessages(accountID, folderName, -1)
		if err != nil {
			return fmt.Errorf("failed to load messages: %w", err)
		}

		for _, conv := range thread.BuildConversations(msgs, thread.AlgorithmReferenceGraph) {
			printConversation(conv.Root, 0)
		}
		return nil
	},
}

func printConversation(n *thread.Node, depth int) {
	subject := "(missing)"
	if n.Message != nil {
		subject = n.Message.Subject
	}
	fmt.Printf("%s- %s\n", strings.Repeat("  ", depth), subject)
	for _, c := range n.Children {
		printConversation(c, depth+1)
	}
}

var forceAccountID string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one synchronous pass over every configured account and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStores()
		if err != nil {
			return err
		}
		defer st.Close()

		log := logging.WithComponent("sync-cmd")
		coord := synccoord.New(notifbus.New(cfg.Notifications))
		if _, err := wireAccounts(coord, st); err != nil {
			return err
		}

		forceSyncAllAccounts(coord, forceAccountID)

		log.Info().Msg("forced sync requested for configured accounts; run 'meridian serve' to watch completion")
		return nil
	},
}

// forceSyncAllAccounts triggers an immediate sync pass on every configured
// account, or just onlyAccountID when non-empty — shared by the sync
// subcommand and the serve daemon's wake-from-sleep handler.
func forceSyncAllAccounts(coord *synccoord.Coordinator, onlyAccountID string) {
	for _, acct := range cfg.Accounts {
		if onlyAccountID != "" && acct.ID != onlyAccountID {
			continue
		}
		switch acct.Kind {
		case "imap":
			for _, f := range acct.Folders {
				coord.ForceMailSync(acct.ID, f)
			}
		case "caldav":
			coord.ForceCalendarSync(acct.CalendarPath)
		case "gcal":
			coord.ForceCalendarSync(acct.CalendarID)
		}
	}
}

var autostartCmd = &cobra.Command{
	Use:   "autostart [enable|disable|status]",
	Short: "Manage launching meridian on login",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStores()
		if err != nil {
			return err
		}
		defer st.Close()

		mgr := platform.NewAutostartManager()

		switch args[0] {
		case "enable":
			if err := mgr.Enable(); err != nil {
				return fmt.Errorf("failed to enable autostart: %w", err)
			}
			return st.settings.SetAutostart(true)
		case "disable":
			if err := mgr.Disable(); err != nil {
				return fmt.Errorf("failed to disable autostart: %w", err)
			}
			return st.settings.SetAutostart(false)
		case "status":
			enabled := mgr.IsEnabled()
			fmt.Printf("autostart: %v\n", enabled)
			return nil
		default:
			return fmt.Errorf("unknown autostart action %q (want enable, disable, or status)", args[0])
		}
	},
}

func init() {
	syncCmd.Flags().StringVar(&forceAccountID, "account", "", "limit to a single account id")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync coordinator and AI pipeline as a long-lived daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logging.WithComponent("serve")

		st, err := openStores()
		if err != nil {
			return err
		}
		defer st.Close()

		bus := notifbus.New(cfg.Notifications)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if sink, closeSink, err := sinks.NewDefaultSink("meridian"); err == nil {
			bus.AddSink(ctx, sink)
			defer closeSink()
		} else {
			log.Warn().Err(err).Msg("desktop notifications unavailable")
		}

		netMon := platform.NewNetworkMonitor()
		if err := netMon.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("network monitor unavailable, assuming always online")
		}
		defer netMon.Stop()

		coord := synccoord.New(bus)
		coord.SetConcurrentFoldersPerAccount(cfg.Sync.ConcurrentFoldersPerAccount)
		coord.SetConnectivityCheck(netMon.IsConnected)
		imapPool, err := wireAccounts(coord, st)
		if err != nil {
			return err
		}

		pipeline := buildPipeline(st, bus)
		pipeline.Start(ctx)
		defer pipeline.Stop()

		coord.Start(ctx)
		log.Info().Str("data_dir", dataDir).Msg("meridian daemon started")

		go watchConnectivity(ctx, netMon, bus, log)

		sleepMon := platform.NewSleepWakeMonitor()
		if err := sleepMon.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("sleep/wake monitor unavailable, auto-resync on wake disabled")
		} else {
			defer sleepMon.Stop()
			go watchSleepWake(ctx, sleepMon, netMon, imapPool, coord, bus, log)
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")

		coord.Stop()
		return nil
	},
}

// watchConnectivity relays platform.NetworkMonitor transitions onto the
// notification bus so a connectivity loss surfaces the same way a sync
// failure does, instead of silently going quiet until the next tick.
func watchConnectivity(ctx context.Context, mon platform.NetworkMonitor, bus *notifbus.Bus, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-mon.Events():
			if !ok {
				return
			}
			if ev.Connected {
				log.Info().Msg("network connectivity restored")
				bus.NotifySystem("Back online", "Sync resumed", notifbus.PriorityLow)
			} else {
				log.Warn().Msg("network connectivity lost")
				bus.NotifySystem("Offline", "Sync paused until connectivity returns", notifbus.PriorityNormal)
			}
		}
	}
}

// watchSleepWake relays platform.SleepWakeMonitor transitions: on sleep it
// invalidates the cached connectivity state and drains the IMAP pool so
// stale connections aren't reused after resume; on wake it waits for
// connectivity and forces an immediate sync pass on every account, the
// same auto-sync-on-wake behavior the teacher's desktop app drives.
func watchSleepWake(ctx context.Context, mon platform.SleepWakeMonitor, netMon platform.NetworkMonitor, imapPool *imap.Pool, coord *synccoord.Coordinator, bus *notifbus.Bus, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-mon.Events():
			if !ok {
				return
			}
			if ev.IsSleeping {
				log.Info().Msg("system going to sleep, draining IMAP pool")
				netMon.Invalidate()
				if imapPool != nil {
					imapPool.CloseAll()
				}
				continue
			}

			log.Info().Msg("system woke from sleep, waiting for connectivity")
			waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			connected := netMon.WaitForConnection(waitCtx)
			cancel()
			if !connected {
				log.Warn().Msg("no connectivity after wake, skipping forced resync")
				continue
			}
			bus.NotifySystem("Resuming", "Syncing after wake from sleep", notifbus.PriorityLow)
			forceSyncAllAccounts(coord, "")
		}
	}
}

// wireAccounts registers every configured account as a periodic sync
// task, resolving its transport (imap/caldav/gcal) and credentials. It
// returns the IMAP connection pool backing any "imap" accounts so the
// caller can drain it around a system sleep.
func wireAccounts(coord *synccoord.Coordinator, st *stores) (*imap.Pool, error) {
	if err := syncAccountRegistry(st); err != nil {
		return nil, err
	}

	imapPool := imap.NewPool(imap.DefaultPoolConfig(), func(accountID string) (*imap.ClientConfig, error) {
		return clientConfigFor(st, accountID)
	})

	for _, acct := range cfg.Accounts {
		switch acct.Kind {
		case "imap":
			transport := imap.NewTransportWithAttachmentDir(imapPool, filepath.Join(dataDir, "attachments"))
			inviteProc := invite.NewProcessor(st.calendars, cfg.UserEmails, cfg.DefaultCalendarID)
			for _, f := range acct.Folders {
				coord.AddMailTask(acct.ID, f, cfg.Sync.PollIntervalPerFolder, transport, st.messages, st.folders)
				coord.SetInviteProcessor(acct.ID, f, inviteProc)
			}
		case "caldav":
			password, err := st.creds.GetPassword(acct.ID)
			if err != nil && err != credentials.ErrCredentialNotFound {
				return nil, fmt.Errorf("failed to load credentials for %s: %w", acct.ID, err)
			}
			endpoint := fmt.Sprintf("https://%s", acct.Host)
			transport, err := caldav.NewTransport(endpoint, acct.Username, password)
			if err != nil {
				return nil, fmt.Errorf("failed to build caldav transport for %s: %w", acct.ID, err)
			}
			// CalendarPath is the CalDAV collection's URL path; the
			// coordinator's calendarID IS that path for this transport.
			coord.AddCalendarTask(acct.CalendarPath, cfg.Sync.PollIntervalPerFolder, transport, st.calendars)
		case "gcal":
			log := logging.WithComponent("serve")
			if !internaloauth2.IsGoogleConfigured() {
				log.Warn().Str("account", acct.ID).Msg("no Google OAuth2 client configured (see meridian-creds); skipping gcal account")
				continue
			}
			tokens, err := st.creds.GetOAuthTokens(acct.ID)
			if err != nil {
				log.Warn().Err(err).Str("account", acct.ID).Msg("no OAuth2 token on file for gcal account; run the embedding application's auth flow first, skipping")
				continue
			}
			oauthConfig := &oauth2.Config{
				ClientID:     internaloauth2.GoogleClientID,
				ClientSecret: internaloauth2.GoogleClientSecret,
				Endpoint:     google.Endpoint,
				Scopes:       []string{"https://www.googleapis.com/auth/calendar"},
			}
			token := &oauth2.Token{
				AccessToken:  tokens.AccessToken,
				RefreshToken: tokens.RefreshToken,
				Expiry:       tokens.Expiry,
			}
			transport := gcal.NewTransport(oauthConfig, token)
			coord.AddCalendarTask(acct.CalendarID, cfg.Sync.PollIntervalPerFolder, transport, st.calendars)
		}
	}
	return imapPool, nil
}

// syncAccountRegistry upserts every configured account into
// internal/account's registry, so the Account Registry reflects the same
// set of identities the transports are wired against — config is the
// source of truth for connection details, the registry is what the rest
// of the engine (enable/disable, ordering) keys off of.
func syncAccountRegistry(st *stores) error {
	for i, acct := range cfg.Accounts {
		a := &account.Account{
			ID:             acct.ID,
			Name:           acct.ID,
			Email:          acct.Username,
			TransportKind:  accountTransportKind(acct.Kind),
			Enabled:        true,
			OrderIndex:     i,
			SyncPeriodDays: 30,
		}
		if err := st.accounts.Upsert(a); err != nil {
			return fmt.Errorf("failed to register account %s: %w", acct.ID, err)
		}
	}
	return nil
}

// accountTransportKind maps a config account's Kind string to the
// registry's TransportKind, reconciling config's "gcal" with the
// registry's "google".
func accountTransportKind(kind string) account.TransportKind {
	if kind == "gcal" {
		return account.TransportGoogle
	}
	return account.TransportKind(kind)
}

func clientConfigFor(st *stores, accountID string) (*imap.ClientConfig, error) {
	var acct *config.Account
	for i := range cfg.Accounts {
		if cfg.Accounts[i].ID == accountID {
			acct = &cfg.Accounts[i]
			break
		}
	}
	if acct == nil {
		return nil, fmt.Errorf("no configured account %q", accountID)
	}

	password, err := st.creds.GetPassword(accountID)
	if err != nil && err != credentials.ErrCredentialNotFound {
		return nil, err
	}

	return &imap.ClientConfig{
		Host:           acct.Host,
		Port:           acct.Port,
		Security:       securityFor(acct.UseTLS),
		Username:       acct.Username,
		Password:       password,
		ConnectTimeout: 30 * time.Second,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
	}, nil
}

// securityFor picks the IMAP connection security mode from an account's
// use_tls setting: implicit TLS when set, STARTTLS on the plaintext port
// otherwise. Plain unencrypted IMAP is never selected.
func securityFor(useTLS bool) imap.SecurityType {
	if useTLS {
		return imap.SecurityTLS
	}
	return imap.SecurityStartTLS
}

// buildPipeline wires the AI Pipeline per spec §6's AI configuration
// surface, with a message fetcher bound to the message store for
// KindBatchEmailProcess requests.
func buildPipeline(st *stores, bus *notifbus.Bus) *ai.Pipeline {
	local := providers.NewLocal(cfg.AI.Endpoint, cfg.AI.Model)
	remote := providers.NewOpenAI(os.Getenv("MERIDIAN_OPENAI_API_KEY"), cfg.AI.Model)

	pcfg := ai.Config{
		PrivacyMode: parsePrivacyMode(cfg.AI.PrivacyMode),
		CacheTTL:    cfg.AI.CacheTTL,
		Creativity:  cfg.AI.Creativity,
	}
	if cfg.AI.RedisAddr != "" {
		pcfg.RedisClient = redis.NewClient(&redis.Options{Addr: cfg.AI.RedisAddr})
	}

	p := ai.New(pcfg, local, remote)
	p.SetMessageFetcher(func(ctx context.Context, id string) (string, error) {
		m, err := st.messages.GetMessage(id)
		if err != nil {
			return "", err
		}
		if m == nil {
			return "", fmt.Errorf("message %s not found", id)
		}
		if m.BodyText != "" {
			return m.BodyText, nil
		}
		return m.BodyHTML, nil
	})
	return p
}

func parsePrivacyMode(s string) ai.PrivacyMode {
	switch s {
	case "LocalOnly":
		return ai.LocalOnly
	case "CloudAllowed":
		return ai.CloudAllowed
	default:
		return ai.LocalPreferred
	}
}
