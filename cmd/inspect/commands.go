package main

import (
	"fmt"
	"io"
	"mini-chat/domain"
	"mini-chat/infrastructure/storage"
	"os"
	"strconv"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
)

func identityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "identity",
		Short: "Print the local identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			identity, ok, err := storage.NewIdentityRepository(kv).Load()
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("no identity stored yet")
			}
			header(os.Stdout, "Identity")
			fmt.Printf("User ID:  %s\nNickname: %s\n", identity.UserID, identity.Nickname)
			return nil
		},
	}
}

func sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List the stored sessions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, _, err := storage.NewSessionRepository(kv).Load()
			if err != nil {
				return err
			}
			header(os.Stdout, "Sessions")
			renderSessions(os.Stdout, sessions)
			return nil
		},
	}
}

func messagesCmd() *cobra.Command {
	var topic string
	var limit int
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Print the history of a topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			all, err := storage.NewMessageRepository(kv, logger).LoadAll()
			if err != nil {
				return err
			}
			messages, ok := all[topic]
			if !ok {
				return fmt.Errorf("no history for topic %s", topic)
			}
			header(os.Stdout, topic)
			renderMessages(os.Stdout, lastN(messages, limit))
			return nil
		},
	}
	cmd.Flags().StringVar(&topic, "topic", domain.LobbyTopic, "topic to print")
	cmd.Flags().IntVar(&limit, "limit", 0, "only print the last n messages")
	return cmd
}

func header(w io.Writer, title string) {
	line := fmt.Sprintf("  ====== %s ======", title)
	if config.Colours {
		line = color.New(color.BgBlack, color.FgGreen).Render(line)
	}
	fmt.Fprintln(w, line)
}

func newTable(w io.Writer, headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func renderSessions(w io.Writer, sessions []domain.Session) {
	table := newTable(w, []string{"ID", "Name", "Kind", "Topic", "Created"})
	for _, s := range sessions {
		created := "-"
		if !s.CreatedAt.IsZero() {
			created = s.CreatedAt.Local().Format(time.DateTime)
		}
		table.Append([]string{s.ID, s.Avatar + " " + s.Name, string(s.Kind), s.Topic, created})
	}
	table.Render()
}

func renderMessages(w io.Writer, messages []domain.Message) {
	table := newTable(w, []string{"Time", "Sender", "Type", "Content", "ID"})
	for _, m := range messages {
		content := m.Text()
		switch {
		case m.Revoked:
			content = "(revoked)"
		case m.IsRevoke():
			content = "-> " + m.Target()
		}
		sender := m.Sender
		if m.SenderName != "" {
			sender = m.SenderName + " (" + m.Sender + ")"
		}
		table.Append([]string{
			time.UnixMilli(m.Timestamp).Local().Format(time.TimeOnly),
			sender,
			string(m.Kind),
			content,
			shortID(m.ID),
		})
	}
	table.SetFooter([]string{"", "", "", "Total", strconv.Itoa(len(messages))})
	table.Render()
}

func lastN(messages []domain.Message, n int) []domain.Message {
	if n <= 0 || n >= len(messages) {
		return messages
	}
	return lo.Subset(messages, -n, uint(n))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
