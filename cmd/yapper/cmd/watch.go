package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/yapper-sdk-go/yapper"
	"github.com/vovakirdan/yapper-sdk-go/yapper/conversation"
)

var watchCmd = &cobra.Command{
	Use:   "watch <chat-id>",
	Short: "Follow a chat live and send stdin lines as messages",
	Long: `Follow a chat: new messages and typing indicators are printed as they
arrive, and every line read from stdin is sent as a message. Stop with Ctrl-C
or end of input.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		chatID := args[0]
		return withSession(ctx, func(ctx context.Context, s *yapper.Session) error {
			if err := s.Start(ctx); err != nil && !yapper.IsConnectionError(err) {
				return err
			}

			conv := conversation.New(s, chatID)
			defer conv.Close()

			changes, err := conv.Watch(ctx)
			if err != nil {
				return err
			}
			if err := conv.Open(ctx); err != nil {
				logger.Warn("initial load failed", "chat_id", chatID, "error", err)
			}

			g, gCtx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return render(gCtx, cmd.OutOrStdout(), conv, changes)
			})
			g.Go(func() error {
				err := sendLines(gCtx, cmd.InOrStdin(), conv)
				stop()
				return err
			})
			return g.Wait()
		})
	},
}

// render prints messages not shown before and typing transitions.
func render(ctx context.Context, w io.Writer, conv *conversation.Conversation, changes <-chan struct{}) error {
	printed := make(map[string]struct{})
	typing := false

	show := func() {
		snap := conv.Snapshot()
		for _, m := range snap.Messages {
			if _, ok := printed[m.ID]; ok {
				continue
			}
			printed[m.ID] = struct{}{}
			printMessage(w, m, conversation.IsOwn(m, snap.Sender, snap.CurrentUserID))
		}
		if snap.OtherUserTyping != typing {
			typing = snap.OtherUserTyping
			if typing {
				fmt.Fprintln(w, "... typing")
			}
		}
	}

	show()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			show()
		}
	}
}

func sendLines(ctx context.Context, r io.Reader, conv *conversation.Conversation) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case line := <-lines:
			conv.HandleTextChange(line)
			conv.HandleSend()
		}
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
