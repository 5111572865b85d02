package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"clenja-agent-go/internal/models"

	"github.com/spf13/cobra"
)

var sayCmd = &cobra.Command{
	Use:   "say <message>",
	Short: "Send a single message and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return turn(cmd.Context(), strings.Join(args, " "))
	},
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Start an interactive conversation",
	Long: `Start an interactive conversation. Confirmation codes, OTPs and "yes" are
typed as ordinary messages. Type "exit" or press Ctrl+D to leave.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Chatting as %s. Type \"help\" for examples, \"exit\" to leave.\n", userId)

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				fmt.Println()
				return scanner.Err()
			}

			text := strings.TrimSpace(scanner.Text())
			switch strings.ToLower(text) {
			case "":
				continue
			case "exit", "quit":
				return nil
			}

			if err := turn(cmd.Context(), text); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
			}
		}
	},
}

func turn(ctx context.Context, text string) error {
	reply, err := services.Chat.HandleMessage(ctx, models.MessageRequest{UserId: userId, Text: text})
	if reply != nil {
		fmt.Println(reply.Reply)
		if reply.ChallengeId != "" {
			fmt.Printf("  (challenge %s)\n", reply.ChallengeId)
		}
	}
	return err
}
