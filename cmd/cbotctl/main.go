// Command cbotctl is the control client for cbotd: a cobra command tree
// mirroring the original run_client.py's do_*/complete_* pairs 1:1, plus an
// interactive REPL shell over the same TCP framing.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wpolak/cbotgo/internal/controlclient"
	"github.com/wpolak/cbotgo/pkg/protocol"
)

var (
	serverAddr string
	verbosity  int
	singleShot string
)

func main() {
	root := &cobra.Command{
		Use:   "cbotctl",
		Short: "Control client for the cbotd trading-task orchestrator",
	}
	root.PersistentFlags().StringVar(&serverAddr, "server", "localhost:2268", "cbotd control address, host[:port]")
	root.PersistentFlags().IntVarP(&verbosity, "verbosity", "v", 1, "output verbosity")
	root.PersistentFlags().StringVarP(&singleShot, "e", "e", "", "execute a single raw command line and exit")

	for _, name := range []string{
		"ping", "crypto_ticker", "crypto_order", "crypto_tsl", "crypto_pf",
		"crypto_stats", "cmc_latest", "bin_live",
		"ps", "reload", "stats", "kill", "clean", "info", "modify", "pause",
		"get", "cron", "ifttt", "memstore", "savegame", "sendmail", "quit",
	} {
		root.AddCommand(passthroughCmd(name))
	}
	root.AddCommand(shellCmd())

	cobra.OnInitialize(func() {
		if singleShot != "" {
			runLine(serverAddr, singleShot)
			os.Exit(0)
		}
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// passthroughCmd builds a cobra command that forwards its name plus every
// argument verbatim as one raw_input line — the client never re-interprets
// kwarg syntax, it just hands the operator's tokens to the server parser,
// the same division of labor as the original shell's do_* handlers.
func passthroughCmd(name string) *cobra.Command {
	return &cobra.Command{
		Use:                name + " [args...]",
		Short:              "Send " + strings.ToUpper(name) + " to the server",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			line := name
			if len(args) > 0 {
				line = name + " " + strings.Join(args, " ")
			}
			runLine(serverAddr, line)
			return nil
		},
	}
}

func shellCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive REPL, reading commands from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(serverAddr)
		},
	}
}

func runShell(addr string) error {
	client := controlclient.New(addr)
	defer client.Close()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprintf(os.Stdout, "cbot> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Fprintf(os.Stdout, "cbot> ")
			continue
		}
		printResult(client.CallRaw(line))
		if strings.EqualFold(line, "quit") {
			break
		}
		fmt.Fprintf(os.Stdout, "cbot> ")
	}
	return scanner.Err()
}

func runLine(addr, line string) {
	client := controlclient.New(addr)
	defer client.Close()
	printResult(client.CallRaw(line))
}

// printResult prints a call's outcome as text: connection/transport errors
// go to stderr, the output field is printed as-is if it is a string,
// joined with newlines if it is a list, and rendered as JSON otherwise.
func printResult(resp *protocol.ResponseFrame, err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	if resp.RespCode == protocol.RespErr {
		fmt.Fprintln(os.Stderr, formatOutput(resp.Output))
		return
	}
	if resp.Output != nil {
		fmt.Println(formatOutput(resp.Output))
		return
	}
	if resp.Data != nil {
		fmt.Println(formatOutput(resp.Data))
	}
}

func formatOutput(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = formatOutput(item)
		}
		return strings.Join(parts, "\n")
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}
