package commands

import (
	"errors"

	"github.com/spf13/cobra"
)

var listUser string

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "Inspect conversations",
}

var chatsListCmd = &cobra.Command{
	Use:   "list --user <id>",
	Short: "List a user's conversations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		if listUser == "" {
			return errors.New("flag --user is required")
		}
		store, closeFn, err := openStore()
		if err != nil {
			return err
		}
		defer closeFn()
		convs, err := store.ListConversations(cmd.Context(), listUser)
		if err != nil {
			return err
		}
		return output(cmd, convs)
	},
}

var chatsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a conversation and its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openStore()
		if err != nil {
			return err
		}
		defer closeFn()
		c, err := store.GetConversation(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		msgs, err := store.Messages(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return output(cmd, map[string]any{"conversation": c, "messages": msgs})
	},
}

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Inspect artifacts",
}

var docsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show every version of an artifact and its suggestions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openStore()
		if err != nil {
			return err
		}
		defer closeFn()
		versions, err := store.Versions(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			return errors.New("document not found")
		}
		suggs, err := store.Suggestions(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return output(cmd, map[string]any{"versions": versions, "suggestions": suggs})
	},
}

func init() {
	chatsListCmd.Flags().StringVar(&listUser, "user", "", "user id")
	chatsCmd.AddCommand(chatsListCmd, chatsShowCmd)
	docsCmd.AddCommand(docsGetCmd)
	rootCmd.AddCommand(chatsCmd, docsCmd)
}
