package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/solatis/mario/internal/core/api"
	"github.com/solatis/mario/internal/types"
)

// apiKeyEnv holds the key send authenticates with.
const apiKeyEnv = "MARIO_API_KEY"

var sendCmd = &cobra.Command{
	Use:   "send [raw|text|url] <message>",
	Short: "Plumb a message through a running 'mario serve'",
	Args:  cobra.RangeArgs(0, 2),
	RunE:  runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().String("addr", "", "server address host:port (default from config)")
	sendCmd.Flags().Bool("guess", false, "let the server guess the kind")
	sendCmd.Flags().Bool("dry-run", false, "report the matching rule without running its actions")
	sendCmd.Flags().Bool("list-rules", false, "print the server's rules instead of sending a message")
}

func runSend(cmd *cobra.Command, args []string) error {
	guess, _ := cmd.Flags().GetBool("guess")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	listRules, _ := cmd.Flags().GetBool("list-rules")

	key := os.Getenv(apiKeyEnv)
	if key == "" {
		return fmt.Errorf("no API key (set %s)", apiKeyEnv)
	}

	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		addr = net.JoinHostPort(cfg.Serve.Host, strconv.Itoa(cfg.Serve.Port))
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	client := api.NewPlumberClient(conn)
	ctx := metadata.AppendToOutgoingContext(context.Background(), "x-api-key", key)
	out := cmd.OutOrStdout()

	if listRules {
		req, err := api.NewRulesRequest("")
		if err != nil {
			return err
		}
		raw, err := client.ListRules(ctx, req)
		if err != nil {
			return err
		}
		for i, r := range api.DecodeRulesResponse(raw).Rules {
			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprint(out, r.Source)
		}
		return nil
	}

	msg, err := readMessage(cmd.InOrStdin(), args, guess)
	if err != nil {
		return err
	}
	if guess {
		// The server guesses with the same heuristics
		msg.Kind = types.KindUnspecified
	}

	req, err := api.PlumbRequest{Message: msg, DryRun: dryRun}.Encode()
	if err != nil {
		return err
	}
	raw, err := client.Plumb(ctx, req)
	if err != nil {
		return err
	}

	resp := api.DecodePlumbResponse(raw)
	if !resp.Matched {
		fmt.Fprintln(out, "no match")
		return nil
	}
	fmt.Fprintf(out, "rule %s (completed: %t)\n", resp.RuleName, resp.Completed)
	for _, a := range resp.Actions {
		state := "ok"
		switch {
		case a.Skipped:
			state = "skipped"
		case !a.Succeeded:
			state = "failed: " + a.Detail
		}
		fmt.Fprintf(out, "  %s %s [%s]\n", a.Verb, a.Argument, state)
	}
	if resp.DispatchID != "" {
		fmt.Fprintf(out, "dispatch %s\n", resp.DispatchID)
	}
	return nil
}
