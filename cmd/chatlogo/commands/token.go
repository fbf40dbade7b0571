package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/chatlogo/pkg/auth"
)

var (
	tokenUser string
	tokenType string
	tokenTTL  time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token --user <id>",
	Short: "Issue a bearer token signed with auth.jwtSecret",
	RunE: func(cmd *cobra.Command, args []string) error {
		if tokenUser == "" {
			return errors.New("flag --user is required")
		}
		typ := auth.UserType(tokenType)
		if typ != auth.UserGuest && typ != auth.UserRegular {
			return fmt.Errorf("unknown user type %q", tokenType)
		}
		jwt, err := newAuthenticator(globalConfig)
		if err != nil {
			return err
		}
		tok, err := jwt.Issue(auth.User{ID: tokenUser, Type: typ}, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUser, "user", "", "user id (sub claim)")
	tokenCmd.Flags().StringVar(&tokenType, "type", string(auth.UserRegular), "user type (guest, regular)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime, 0 for none")
	rootCmd.AddCommand(tokenCmd)
}
