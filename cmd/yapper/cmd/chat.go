package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/yapper-sdk-go/yapper"
	"github.com/vovakirdan/yapper-sdk-go/yapper/conversation"
	"github.com/vovakirdan/yapper-sdk-go/yapper/rest"
)

var chatCmd = &cobra.Command{
	Use:   "chat <chat-id>",
	Short: "Show one chat and its latest messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		chatID := args[0]
		return withSession(cmd.Context(), func(ctx context.Context, s *yapper.Session) error {
			chat, err := s.API().GetChat(ctx, chatID)
			if err != nil {
				return err
			}
			page, err := s.API().GetMessages(ctx, rest.MessagesParams{
				ChatID: chatID,
				Limit:  s.Config().MessagesPerPage,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Chat %s with %s (@%s), %d unread\n\n",
				chat.ID, displayName(chat.Participant), chat.Participant.Username, chat.UnreadCount)
			for _, m := range page.Messages {
				printMessage(out, m, conversation.IsOwn(m, page.Sender, s.UserID()))
			}
			if page.Pagination.HasMore {
				fmt.Fprintln(out, "(older messages available)")
			}
			return nil
		})
	},
}

func displayName(p rest.Participant) string {
	if p.Name != "" {
		return p.Name
	}
	return p.Username
}

func printMessage(w io.Writer, m rest.Message, own bool) {
	who := "them"
	if own {
		who = "me"
	}
	fmt.Fprintf(w, "[%s] %-4s %s\n", m.CreatedAt.Local().Format(time.TimeOnly), who, m.Content)
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
