package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/danielpatrickdp/afinia/internal/orchestrator"
	"github.com/danielpatrickdp/afinia/internal/rpc"
)

var (
	chatUser   string
	chatRemote string
)

// chatCmd is an interactive terminal session, either in-process or against a
// running server's gRPC listener.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat from the terminal",
	Long: `Read messages from stdin and print the coach's replies along with any
parameter changes. Type 'quit' or 'exit' to leave.

Examples:
  afinia chat --user ana
  afinia chat --user ana --remote localhost:50051`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatUser, "user", "default", "user id")
	chatCmd.Flags().StringVar(&chatRemote, "remote", "", "gRPC address of a running server")
}

// turnLine is one reply plus a one-line change summary.
type turnLine struct {
	reply   string
	turnID  string
	changes []string
	warning string
}

type turnFunc func(ctx context.Context, message string) (turnLine, error)

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	var turn turnFunc
	if chatRemote != "" {
		cc, err := grpc.NewClient(chatRemote, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("dial %s: %w", chatRemote, err)
		}
		defer cc.Close()
		turn = remoteTurn(rpc.NewClient(cc), chatUser)
	} else {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck
		if err := cfg.RequireAPIKey(); err != nil {
			return err
		}
		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		turn = localTurn(a.orch, chatUser)
	}

	return chatLoop(ctx, os.Stdin, cmd.OutOrStdout(), turn)
}

// chatLoop reads one message per line until EOF or quit.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, turn turnFunc) error {
	fmt.Fprintln(out, "Type a message (or 'quit' to exit):")
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		msg := strings.TrimSpace(scanner.Text())
		if msg == "" {
			continue
		}
		if msg == "quit" || msg == "exit" {
			break
		}

		line, err := turn(ctx, msg)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "\n%s\n\n", line.reply)
		if len(line.changes) > 0 {
			fmt.Fprintf(out, "[%s] %s\n", line.turnID, strings.Join(line.changes, ", "))
		}
		if line.warning != "" {
			fmt.Fprintf(out, "[%s] warning: %s\n", line.turnID, line.warning)
		}
	}
	return scanner.Err()
}

func localTurn(o *orchestrator.Orchestrator, userID string) turnFunc {
	return func(ctx context.Context, message string) (turnLine, error) {
		res, err := o.Turn(ctx, orchestrator.TurnRequest{UserID: userID, Message: message})
		if err != nil && res.Reply == "" {
			return turnLine{}, err
		}
		line := turnLine{reply: res.Reply, turnID: res.TurnID}
		for _, c := range res.Changes {
			line.changes = append(line.changes, fmt.Sprintf("%s %d→%d", c.Name, c.From, c.To))
		}
		if err != nil {
			line.warning = err.Error()
		}
		return line, nil
	}
}

func remoteTurn(c *rpc.Client, userID string) turnFunc {
	return func(ctx context.Context, message string) (turnLine, error) {
		out, err := c.Chat(ctx, userID, message)
		if err != nil {
			return turnLine{}, err
		}
		line := turnLine{}
		line.reply, _ = out["reply"].(string)
		line.turnID, _ = out["turnId"].(string)
		line.warning, _ = out["error"].(string)
		changes, _ := out["changes"].([]any)
		for _, raw := range changes {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			from, _ := m["from"].(float64)
			to, _ := m["to"].(float64)
			line.changes = append(line.changes, fmt.Sprintf("%v %d→%d", m["name"], int(from), int(to)))
		}
		return line, nil
	}
}
