package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/dashboard"
	"github.com/zulandar/switchboard/internal/store"
)

func newChatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "Inspect handoff chats",
	}

	cmd.AddCommand(newChatsListCmd())
	cmd.AddCommand(newChatsShowCmd())
	return cmd
}

func newChatsListCmd() *cobra.Command {
	var (
		configPath string
		filter     store.ChatFilter
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List chats, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChatsList(cmd, configPath, filter)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	cmd.Flags().StringVar(&filter.Status, "status", "", "filter by status (pending, active, closed, rejected)")
	cmd.Flags().Int64Var(&filter.UserID, "user", 0, "filter by user id")
	cmd.Flags().IntVar(&filter.Limit, "limit", 20, "maximum number of chats")
	return cmd
}

func runChatsList(cmd *cobra.Command, configPath string, filter store.ChatFilter) error {
	_, st, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	chats, err := st.ListChats(cmd.Context(), filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(chats) == 0 {
		fmt.Fprintln(out, "No chats found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tSTATUS\tCREATED\tRATING")
	for i := range chats {
		v := dashboard.NewChatView(&chats[i])
		user := v.User
		if user == "" {
			user = strconv.FormatInt(v.UserID, 10)
		}
		rating := "-"
		if v.Rating != nil {
			rating = strconv.Itoa(*v.Rating)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
			v.ID, truncate(user, 40), v.Status, v.CreatedAt.Format(time.DateTime), rating)
	}
	w.Flush()
	return nil
}

func newChatsShowCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a chat and its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChatsShow(cmd, configPath, args[0])
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Switchboard config file")
	return cmd
}

func runChatsShow(cmd *cobra.Command, configPath, rawID string) error {
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat id %q", rawID)
	}
	_, st, err := connectFromConfig(configPath)
	if err != nil {
		return err
	}

	detail, err := dashboard.LoadChatDetail(cmd.Context(), st, uint(id))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	c := detail.Chat
	fmt.Fprintf(out, "Chat #%d\n", c.ID)
	fmt.Fprintf(out, "User:     %s (%d)\n", c.User, c.UserID)
	fmt.Fprintf(out, "Manager:  %d\n", c.ManagerID)
	fmt.Fprintf(out, "Status:   %s\n", c.Status)
	fmt.Fprintf(out, "Created:  %s\n", c.CreatedAt.Format(time.DateTime))
	if c.AcceptedAt != nil {
		fmt.Fprintf(out, "Accepted: %s\n", c.AcceptedAt.Format(time.DateTime))
	}
	if c.ClosedAt != nil {
		fmt.Fprintf(out, "Closed:   %s\n", c.ClosedAt.Format(time.DateTime))
	}
	if c.Rating != nil {
		fmt.Fprintf(out, "Rating:   %d/5\n", *c.Rating)
	}

	fmt.Fprintf(out, "\nTranscript (%d messages):\n", len(detail.Transcript))
	for _, m := range detail.Transcript {
		fmt.Fprintf(out, "  [%s] %-7s %s\n", m.CreatedAt.Format(time.TimeOnly), m.From, m.Text)
	}
	return nil
}

// truncate shortens s to n runes, appending "..." when cut.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
