package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/yapper-sdk-go/yapper"
	"github.com/vovakirdan/yapper-sdk-go/yapper/chatlist"
	"github.com/vovakirdan/yapper-sdk-go/yapper/rest"
)

var (
	chatsSearch string
	chatsPages  int
)

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List chats",
	Long: `List the signed-in user's chats, newest first.

Examples:
  yapper chats                   # first page
  yapper chats --pages 3         # first three pages
  yapper chats --search alice    # filter loaded chats by name or username`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), func(ctx context.Context, s *yapper.Session) error {
			list := chatlist.New(s)
			defer list.Close()

			if err := list.Open(ctx); err != nil {
				return err
			}
			for i := 1; i < chatsPages && list.HasMore(); i++ {
				if err := list.LoadMore(ctx); err != nil {
					return err
				}
			}
			list.SetSearch(chatsSearch)

			printChats(cmd.OutOrStdout(), list.Chats())
			if list.HasMore() {
				fmt.Fprintln(cmd.OutOrStdout(), "(more available, use --pages)")
			}
			return nil
		})
	},
}

func printChats(w io.Writer, chats []rest.Chat) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tUNREAD\tLAST MESSAGE\tUPDATED")
	for _, c := range chats {
		name := c.Participant.Name
		if name == "" {
			name = c.Participant.Username
		}
		last := ""
		if c.LastMessage != nil {
			last = truncate(c.LastMessage.Content, 40)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", c.ID, name, c.UnreadCount, last, c.UpdatedAt.Local().Format(time.DateTime))
	}
	_ = tw.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func init() {
	chatsCmd.Flags().StringVar(&chatsSearch, "search", "", "only show chats whose participant matches")
	chatsCmd.Flags().IntVar(&chatsPages, "pages", 1, "number of pages to load")
	rootCmd.AddCommand(chatsCmd)
}
