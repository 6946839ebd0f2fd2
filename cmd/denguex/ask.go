package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fyrsmithlabs/denguex/internal/chatbot"
	"github.com/fyrsmithlabs/denguex/internal/knowledge"
	"github.com/spf13/cobra"
)

// errEmptyQuestion mirrors the HTTP 400 for blank questions.
var errEmptyQuestion = errors.New("please type a dengue-related question")

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question and print the reply as JSON",
		Long: `Answer one question and print the reply as JSON on stdout.

Examples:
  denguex ask "how does dengue spread"
  denguex ask "I have a fever and bleeding gums" | jq .urgency`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.TrimSpace(strings.Join(args, " "))
			if text == "" {
				return errEmptyQuestion
			}

			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			engine, err := a.loadEngine(ctx)
			if err != nil {
				return fmt.Errorf("failed to load engine: %w", err)
			}
			defer engine.Close()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(engine.Answer(ctx, text))
		},
	}
}

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Ask questions interactively",
		Long: `Ask questions interactively. Each line is one question; type "exit" or
"quit" (or send EOF) to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			engine, err := a.loadEngine(ctx)
			if err != nil {
				return fmt.Errorf("failed to load engine: %w", err)
			}
			defer engine.Close()

			return chatLoop(ctx, engine, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

type answerer interface {
	Answer(ctx context.Context, text string) chatbot.QueryResult
}

// chatLoop reads one question per line until EOF, exit or quit.
func chatLoop(ctx context.Context, engine answerer, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Ask a dengue question (type \"exit\" to quit).")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(text) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		res := engine.Answer(ctx, text)
		fmt.Fprintln(out, res.Reply)
		if res.Urgency == knowledge.UrgencyUrgent && len(res.MatchedWarningSigns) > 0 {
			fmt.Fprintf(out, "(warning signs: %s)\n", strings.Join(res.MatchedWarningSigns, ", "))
		}
		fmt.Fprintln(out)
	}
}
