package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/railguard/pkg/cli"
	"mercator-hq/railguard/pkg/config"
	"mercator-hq/railguard/pkg/engine"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with a bundle interactively",
	Long: `Read user turns from standard input and print the guarded answers.

The conversation history is sent with every turn. Turns that were blocked
or failed are not added to the history. Type "exit" or "quit", or send EOF,
to leave.

Examples:
  railguard chat --config configs/topical
  railguard chat --config configs/actions --nim`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	addNIMFlags(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	announceEndpoint(errOut)

	ctx, cancel := cli.SetupSignalHandler(commandContext(cmd))
	defer cancel()

	opts, err := loadOptions(ctx)
	if err != nil {
		return err
	}
	b, err := config.Load(bundlePath("."), opts...)
	if err != nil {
		return cli.NewCommandError("chat", err)
	}
	logger, err := newLogger(b, errOut, true)
	if err != nil {
		return err
	}

	eng, err := engine.New(ctx, b, engine.WithLogger(logger))
	if err != nil {
		return cli.NewCommandError("chat", err)
	}
	defer eng.Close()

	fmt.Fprintf(out, "Chatting with bundle %q. Type \"exit\" to quit.\n", b.Name)

	var history []engine.Message
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "User: ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		turn := append(history, engine.Message{Role: "user", Content: line})
		resp, err := eng.Generate(ctx, turn)
		if err != nil {
			logger.ErrorContext(ctx, "chat turn failed", "error", err)
		}
		fmt.Fprintf(out, "Assistant: %s\n", resp.Content)

		if err == nil && !resp.Blocked {
			history = append(turn, engine.Message{Role: "assistant", Content: resp.Content})
		}
		if ctx.Err() != nil {
			break
		}
	}
	return scanner.Err()
}
