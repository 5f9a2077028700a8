package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/yapper-sdk-go/store"
)

var (
	loginToken    string
	loginUserID   string
	loginUsername string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an auth token and the user it belongs to",
	Long: `Store an auth token and user id for later commands.

Examples:
  yapper login --token eyJhbGciOi... --user-id u1
  yapper login --token eyJhbGciOi... --user-id u1 --username alice`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if loginToken == "" || loginUserID == "" {
			return errors.New("--token and --user-id are required")
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.SaveToken(loginToken); err != nil {
			return fmt.Errorf("save token: %w", err)
		}
		if err := st.SaveUser(store.DBUser{ID: loginUserID, UserName: loginUsername}); err != nil {
			return fmt.Errorf("save user: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", loginUserID)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Logout(); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginToken, "token", "", "auth token")
	loginCmd.Flags().StringVar(&loginUserID, "user-id", "", "id of the user the token belongs to")
	loginCmd.Flags().StringVar(&loginUsername, "username", "", "username, for display only")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
}
