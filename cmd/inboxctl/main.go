package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aradsms/inbox_services/internal/inbound_processor_service/domain"
	"github.com/aradsms/inbox_services/internal/inboxctl"
	"github.com/aradsms/inbox_services/internal/platform/config"
	"github.com/aradsms/inbox_services/internal/platform/logger"
	"github.com/aradsms/inbox_services/internal/platform/messagebroker"
)

const clientName = "inboxctl"

var (
	cfg       *config.Config
	appLogger *slog.Logger

	adminURL string
	subject  string
	tokenTTL time.Duration
)

func main() {
	root := &cobra.Command{
		Use:           clientName,
		Short:         "Operate a running inbound processor service",
		Long:          "inboxctl manages blocking rules, contacts, preferences and the active conversation through the admin API, and publishes synthetic inbound events for testing.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(clientName)
			if err != nil {
				return err
			}
			cfg = loaded
			appLogger = logger.NewWithWriter(cfg.LogLevel, os.Stderr).With("client", clientName)
			if adminURL == "" {
				adminURL = fmt.Sprintf("http://localhost:%d", cfg.AdminHTTPPort)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&adminURL, "admin-url", "", "admin API base URL (default: http://localhost:<ADMIN_HTTP_PORT>)")
	root.PersistentFlags().StringVar(&subject, "as", "inboxctl", "subject recorded for admin calls")
	root.PersistentFlags().DurationVar(&tokenTTL, "token-ttl", 5*time.Minute, "lifetime of the minted admin token")

	root.AddCommand(tokenCmd())
	root.AddCommand(rulesCmd())
	root.AddCommand(contactsCmd())
	root.AddCommand(activeCmd())
	root.AddCommand(conversationsCmd())
	root.AddCommand(prefsCmd())
	root.AddCommand(publishCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func adminClient() (*inboxctl.AdminClient, error) {
	token, err := inboxctl.MintToken([]byte(cfg.AdminJWTSecret), subject, tokenTTL)
	if err != nil {
		return nil, err
	}
	return inboxctl.NewAdminClient(adminURL, token, nil, appLogger), nil
}

// runAdmin wraps an admin call and prints its response body, if any.
func runAdmin(call func(ctx context.Context, c *inboxctl.AdminClient) ([]byte, error)) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		client, err := adminClient()
		if err != nil {
			return err
		}
		body, err := call(cmd.Context(), client)
		if err != nil {
			return err
		}
		if len(body) > 0 {
			fmt.Fprint(cmd.OutOrStdout(), string(body))
		}
		return nil
	}
}

func tokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print a signed admin API bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := inboxctl.MintToken([]byte(cfg.AdminJWTSecret), subject, tokenTTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage per-address blocking rules",
	}

	var (
		action string
		reason string
	)
	set := &cobra.Command{
		Use:   "set ADDRESS",
		Short: "Create or replace the rule for ADDRESS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := domain.ParseBlockingAction(action, reason)
			if err != nil {
				return err
			}
			return runAdmin(func(ctx context.Context, c *inboxctl.AdminClient) ([]byte, error) {
				return c.SetBlockingRule(ctx, args[0], parsed)
			})(cmd, args)
		},
	}
	set.Flags().StringVar(&action, "action", "block", "block, unblock or none")
	set.Flags().StringVar(&reason, "reason", "", "block reason shown to the user")

	rm := &cobra.Command{
		Use:   "rm ADDRESS",
		Short: "Remove the rule for ADDRESS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdmin(func(ctx context.Context, c *inboxctl.AdminClient) ([]byte, error) {
				return nil, c.RemoveBlockingRule(ctx, args[0])
			})(cmd, args)
		},
	}

	cmd.AddCommand(set, rm)
	return cmd
}

func contactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "Manage the address book",
	}

	var name string
	add := &cobra.Command{
		Use:   "add NUMBER",
		Short: "Add NUMBER as a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdmin(func(ctx context.Context, c *inboxctl.AdminClient) ([]byte, error) {
				return c.AddContact(ctx, args[0], name)
			})(cmd, args)
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name")

	cmd.AddCommand(add)
	return cmd
}

func activeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "active",
		Short: "Inspect or change the conversation the user is viewing",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Show the active conversation",
		Args:  cobra.NoArgs,
		RunE: runAdmin(func(ctx context.Context, c *inboxctl.AdminClient) ([]byte, error) {
			return c.ActiveConversation(ctx)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set THREAD_ID",
		Short: "Mark THREAD_ID as the active conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			threadID, err := parseThreadID(args[0])
			if err != nil {
				return err
			}
			return runAdmin(func(ctx context.Context, c *inboxctl.AdminClient) ([]byte, error) {
				return c.SetActiveConversation(ctx, threadID)
			})(cmd, args)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Clear the active conversation",
		Args:  cobra.NoArgs,
		RunE: runAdmin(func(ctx context.Context, c *inboxctl.AdminClient) ([]byte, error) {
			return nil, c.ClearActiveConversation(ctx)
		}),
	})
	return cmd
}

func parseThreadID(arg string) (int64, error) {
	threadID, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid thread id %q: %w", arg, err)
	}
	return threadID, nil
}

func conversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conversations",
		Short: "Archive or restore conversations",
	}

	setArchived := func(archived bool) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			threadID, err := parseThreadID(args[0])
			if err != nil {
				return err
			}
			return runAdmin(func(ctx context.Context, c *inboxctl.AdminClient) ([]byte, error) {
				return c.SetArchived(ctx, threadID, archived)
			})(cmd, args)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "archive THREAD_ID",
		Short: "Move THREAD_ID to the archive",
		Args:  cobra.ExactArgs(1),
		RunE:  setArchived(true),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "unarchive THREAD_ID",
		Short: "Bring THREAD_ID back to the inbox",
		Args:  cobra.ExactArgs(1),
		RunE:  setArchived(false),
	})
	return cmd
}

func prefsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Inspect or replace the blocking preferences",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Show the current preferences",
		Args:  cobra.NoArgs,
		RunE: runAdmin(func(ctx context.Context, c *inboxctl.AdminClient) ([]byte, error) {
			return c.Preferences(ctx)
		}),
	})

	var (
		dropBlocked bool
		manager     string
	)
	set := &cobra.Command{
		Use:   "set",
		Short: "Replace the preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			prefs := domain.Preferences{DropBlocked: dropBlocked, BlockingManager: domain.BlockingManager(manager)}
			if !prefs.BlockingManager.Valid() {
				return fmt.Errorf("unknown blocking manager %q", manager)
			}
			return runAdmin(func(ctx context.Context, c *inboxctl.AdminClient) ([]byte, error) {
				return c.UpdatePreferences(ctx, prefs)
			})(cmd, args)
		},
	}
	set.Flags().BoolVar(&dropBlocked, "drop-blocked", false, "discard blocked messages instead of storing them")
	set.Flags().StringVar(&manager, "manager", string(domain.BlockingManagerQKSMS), "blocking manager: qksms, call_blocker, call_control or should_i_answer")

	cmd.AddCommand(set)
	return cmd
}

func publishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish synthetic inbound events to NATS",
	}

	withPublisher := func(fn func(ctx context.Context, p *inboxctl.EventPublisher) error) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			nc, err := messagebroker.NewNATSClient(cfg.NATSURL, appLogger, clientName)
			if err != nil {
				return err
			}
			defer nc.Close()
			return fn(cmd.Context(), inboxctl.NewEventPublisher(nc, cfg.InboundSMSSubject, cfg.InboundMMSSubject))
		}
	}

	var (
		from           string
		parts          []string
		subscriptionID int
	)
	sms := &cobra.Command{
		Use:   "sms",
		Short: "Publish a received SMS; repeat --body to split it into frames",
		Args:  cobra.NoArgs,
		RunE: withPublisher(func(ctx context.Context, p *inboxctl.EventPublisher) error {
			return p.PublishSMS(ctx, subscriptionID, from, parts, time.Now().UnixMilli())
		}),
	}
	sms.Flags().StringVar(&from, "from", "", "originating address")
	sms.Flags().StringArrayVar(&parts, "body", nil, "text of one frame")
	sms.Flags().IntVar(&subscriptionID, "sub", -1, "subscription (SIM) id")
	_ = sms.MarkFlagRequired("from")

	var locator string
	mms := &cobra.Command{
		Use:   "mms",
		Short: "Announce an MMS already stored by the transport",
		Args:  cobra.NoArgs,
		RunE: withPublisher(func(ctx context.Context, p *inboxctl.EventPublisher) error {
			return p.PublishMMS(ctx, locator)
		}),
	}
	mms.Flags().StringVar(&locator, "locator", "", "content locator of the stored MMS")
	_ = mms.MarkFlagRequired("locator")

	cmd.AddCommand(sms, mms)
	return cmd
}
