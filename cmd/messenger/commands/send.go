package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tukib/dtec-messenger-electron/internal/client"
)

func sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send [recipient] [message...]",
		Short: "Encrypt and send a message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if _, err := login(ctx); err != nil {
				return err
			}

			id, err := msgr.Submit(args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			for {
				ev, err := waitFor(ctx, client.EventSent, client.EventFailed)
				if err != nil {
					return err
				}
				if ev.ID != id {
					continue
				}
				if ev.Type == client.EventFailed {
					return ev.Err
				}
				fmt.Printf("Sent %s\n", id)
				return nil
			}
		},
	}
}

func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Print history, then incoming messages until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			history, err := login(ctx)
			if err != nil {
				return err
			}
			for _, e := range history {
				printEntry(e)
			}

			for {
				select {
				case ev := <-msgr.Events():
					switch ev.Type {
					case client.EventMessage:
						printEntry(*ev.Entry)
					case client.EventDisconnected:
						return fmt.Errorf("disconnected from server: %v", ev.Err)
					}
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
}
