// Package commands is the messenger command line: a thin presentation layer
// over the protocol client.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tukib/dtec-messenger-electron/internal/client"
	"github.com/tukib/dtec-messenger-electron/internal/config"
	"github.com/tukib/dtec-messenger-electron/internal/keystore"
	"github.com/tukib/dtec-messenger-electron/internal/kv"
)

var (
	envFile  string
	password string
	timeout  time.Duration

	cfg   *config.Client
	state kv.Store
	msgr  *client.Client
)

func Execute() error {
	root := &cobra.Command{
		Use:          "messenger",
		Short:        "End-to-end encrypted messenger",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.LoadClient(envFile)
			if err != nil {
				return err
			}
			if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
				logrus.SetLevel(level)
			}

			state, err = kv.Open(cfg.StatePath)
			if err != nil {
				return err
			}
			msgr, err = client.New(state,
				client.WithKeyGenerator(keystore.New(keystore.WithKeyBits(cfg.KeyBits))),
				client.WithWatchdog(cfg.Watchdog),
			)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			msgr.Close()
			return state.Close()
		},
	}

	root.PersistentFlags().StringVar(&envFile, "config", "", "path to a .env file")
	root.PersistentFlags().StringVarP(&password, "password", "p", "", "password protecting the local key")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "how long to wait for the server")

	root.AddCommand(registerCmd(), loginCmd(), sendCmd(), listenCmd(), resetCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return root.ExecuteContext(ctx)
}

func requirePassword() error {
	if password == "" {
		return fmt.Errorf("password required (-p)")
	}
	return nil
}

func connect(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := msgr.Dial(dialCtx, cfg.ServerURL); err != nil {
		return err
	}
	_, err := waitFor(ctx, client.EventConnected)
	return err
}

// waitFor consumes events until one of the wanted types arrives. Losing the
// connection or running out of time is an error.
func waitFor(ctx context.Context, types ...client.EventType) (client.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		select {
		case ev := <-msgr.Events():
			for _, t := range types {
				if ev.Type == t {
					return ev, nil
				}
			}
			if ev.Type == client.EventDisconnected {
				return ev, fmt.Errorf("disconnected from server: %v", ev.Err)
			}
			logrus.Debugf("event %s", ev.Type)
		case <-ctx.Done():
			return client.Event{}, fmt.Errorf("waiting for %v: %w", types, ctx.Err())
		}
	}
}

// login authenticates and returns the timeline the server sends after.
func login(ctx context.Context) ([]client.Entry, error) {
	if err := requirePassword(); err != nil {
		return nil, err
	}
	if err := connect(ctx); err != nil {
		return nil, err
	}
	if err := msgr.Login(password); err != nil {
		return nil, err
	}
	if _, err := waitFor(ctx, client.EventLoggedIn); err != nil {
		return nil, err
	}
	ev, err := waitFor(ctx, client.EventHistory)
	return ev.History, err
}

func printEntry(e client.Entry) {
	ts := time.UnixMilli(e.Time).Format(time.DateTime)
	switch {
	case e.Err != nil:
		fmt.Printf("%s  %s -> %s: <%v>\n", ts, e.From, e.To, e.Err)
	case e.Outgoing:
		fmt.Printf("%s  you -> %s: %s\n", ts, e.To, e.Content)
	default:
		fmt.Printf("%s  %s: %s\n", ts, e.From, e.Content)
	}
}
