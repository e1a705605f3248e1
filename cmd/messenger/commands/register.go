package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tukib/dtec-messenger-electron/internal/client"
)

func registerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "register [username]",
		Short: "Create a key pair if needed and claim a username with it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requirePassword(); err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := connect(ctx); err != nil {
				return err
			}
			if err := msgr.Register(args[0], password); err != nil {
				return err
			}
			ev, err := waitFor(ctx, client.EventLoggedIn, client.EventRegisterFailed)
			if err != nil {
				return err
			}
			if ev.Type == client.EventRegisterFailed {
				return fmt.Errorf("%s: %w", ev.Username, ev.Err)
			}
			fmt.Printf("Registered and logged in as %s\n", ev.Username)
			return nil
		},
	}
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in and print your message history",
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := login(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Logged in as %s\n", msgr.Username())
			for _, e := range history {
				printEntry(e)
			}
			return nil
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete the local key pair and sent message history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := msgr.Reset(); err != nil {
				return err
			}
			fmt.Println("Local state cleared")
			return nil
		},
	}
}
