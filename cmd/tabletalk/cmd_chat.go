package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"tabletalk/internal/agent"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive session with conversation history",
	Long: `Start an interactive prompt. Follow-up questions see the earlier
turns, so "now only the north region" refines the previous answer.

Commands inside the session:
  /history   show the conversation so far
  /quit      leave`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	eng, err := buildEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.close()

	if cfg.Schema.Watch {
		go func() {
			if err := eng.registry.Watch(ctx, cfg.Schema.Dir); err != nil && ctx.Err() == nil {
				fmt.Fprintln(os.Stderr, "schema watch stopped:", err)
			}
		}()
	}

	sess := agent.NewSession(eng.agent)
	scanner := bufio.NewScanner(os.Stdin)
	cmd.Printf("tabletalk %s. Ask about your tables; /quit to leave.\n", version)

	for {
		cmd.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit", line == "/exit":
			return nil
		case line == "/history":
			for i, turn := range sess.History() {
				cmd.Printf("%d. Q: %s\n   A: %s\n", i+1, turn.Query, turn.Answer)
			}
			continue
		}

		result, err := sess.Ask(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}
		printResult(cmd, result)
	}
	return scanner.Err()
}
