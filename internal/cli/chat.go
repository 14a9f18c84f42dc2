package cli

import (
	"bufio"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nox-kernel/central/internal/chatclient"
	"github.com/nox-kernel/central/internal/config"
	"github.com/nox-kernel/central/internal/costs"
	"github.com/nox-kernel/central/internal/logging"
)

func newChatCmd() *cobra.Command {
	var prompt string
	var describe bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Send a message (or start an interactive chat without -p)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			report, err := config.ValidateStartup(cfg)
			if err != nil {
				return err
			}
			for _, warning := range report.Warnings {
				logging.Logger().Warn(warning)
			}

			tracker := costs.New(filepath.Join(cfg.HomeDir, "costs.jsonl"))
			client, label, err := chatclient.Connect(cfg, chatclient.DefaultConnectTimeout, tracker)
			if err != nil {
				return err
			}
			logging.Logger().Info("connected", "runtime", label)

			if describe {
				fmt.Fprintf(cmd.OutOrStdout(), "%+v\n", client.DescribeTarget())
				return nil
			}

			out := cmd.OutOrStdout()
			onDelta := func(s string) { fmt.Fprint(out, s) }

			if trimmed := strings.TrimSpace(prompt); trimmed != "" {
				reply, err := client.OneTurn(cmd.Context(), trimmed, onDelta)
				if err != nil {
					return err
				}
				if !cfg.LLM.Stream && reply != nil {
					fmt.Fprintln(out, *reply)
				} else if cfg.LLM.Stream {
					fmt.Fprintln(out)
				}
				if _, err := client.EnsureAutoTitle(); err != nil {
					return err
				}
				return finishSession(client)
			}

			return runInteractive(cmd, client)
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Send a single prompt and exit")
	cmd.Flags().BoolVar(&describe, "describe", false, "Print the resolved target configuration and exit")

	return cmd
}

func runInteractive(cmd *cobra.Command, client *chatclient.Client) error {
	out := cmd.OutOrStdout()
	scanner := bufio.NewScanner(cmd.InOrStdin())
	onDelta := func(s string) { fmt.Fprint(out, s) }

	for {
		fmt.Fprint(out, "you> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/exit" || line == "/quit" {
			break
		}

		if chatclient.WantsInstrument(line) {
			fmt.Fprintln(out, "(message requests an instrument; it was not sent, and this chat does not forward instrument results)")
			continue
		}

		reply, err := client.OneTurn(cmd.Context(), line, onDelta)
		if err != nil {
			logging.Logger().Error("turn failed", "error", err)
			continue
		}
		fmt.Fprintln(out)
		if reply != nil && chatclient.WantsInstrument(*reply) {
			fmt.Fprintln(out, "(model requested an instrument; this chat does not forward instrument results back to the model)")
		}
	}

	if _, err := client.EnsureAutoTitle(); err != nil {
		return err
	}
	return finishSession(client)
}

func finishSession(client *chatclient.Client) error {
	deleted, err := client.MaybeDeleteEmptySession()
	if err != nil {
		return err
	}
	if deleted {
		return nil
	}
	_, err = client.AppendSessionToDayLog()
	return err
}

// IsNoRuntimeReachable reports whether err represents every fallback
// candidate failing its connectivity check.
func IsNoRuntimeReachable(err error) bool {
	return errors.Is(err, chatclient.ErrNoRuntimeReachable)
}
