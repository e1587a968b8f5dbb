package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	sdklending "sbtlend/sdk/lending"
)

const defaultEndpoint = "http://127.0.0.1:8480"

// requestTimeout bounds every daemon call.
const requestTimeout = 15 * time.Second

type globals struct {
	endpoint string
	token    string
}

var newClient = func(g globals) (*sdklending.Client, error) {
	return sdklending.New(g.endpoint, sdklending.WithToken(g.token))
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	g, rest, err := parseGlobals(args)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	if len(rest) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch rest[0] {
	case "keygen":
		return runKeygen(stdout, stderr)
	case "token":
		return runToken(rest[1:], stdout, stderr)
	case "lending":
		return runLendingCommand(g, rest[1:], stdout, stderr)
	case "rep":
		return runReputationCommand(g, rest[1:], stdout, stderr)
	case "bank":
		return runBankCommand(g, rest[1:], stdout, stderr)
	case "events":
		return runEventsCommand(g, rest[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", rest[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

// parseGlobals consumes --url and --token ahead of the command name. The
// environment supplies defaults through SBTLEND_URL and SBTLEND_TOKEN.
func parseGlobals(args []string) (globals, []string, error) {
	g := globals{
		endpoint: strings.TrimSpace(os.Getenv("SBTLEND_URL")),
		token:    strings.TrimSpace(os.Getenv("SBTLEND_TOKEN")),
	}
	if g.endpoint == "" {
		g.endpoint = defaultEndpoint
	}
	for len(args) > 0 {
		name, value, hasValue := strings.Cut(args[0], "=")
		switch name {
		case "--url", "--token":
		default:
			return g, args, nil
		}
		if !hasValue {
			if len(args) < 2 {
				return g, nil, fmt.Errorf("%s requires a value", name)
			}
			value = args[1]
			args = args[1:]
		}
		args = args[1:]
		if name == "--url" {
			g.endpoint = strings.TrimSpace(value)
		} else {
			g.token = strings.TrimSpace(value)
		}
	}
	return g, args, nil
}

func usage() string {
	return strings.TrimSpace(`
Usage: lend-cli [--url URL] [--token JWT] <command> [args]

Commands:
  keygen                                   generate a key pair and print its address
  token --subject ADDR [--ttl 1h]          sign an operator token (secret from SBTLEND_JWT_SECRET or prompt)
  lending init|deposit|borrow|repay|withdraw|liquidate
  lending profile|loan|stats|health|max-borrow|utilization
  rep init|mint|update|increase|decrease|batch
  rep get|has|multiplier|can|thresholds
  bank balance|credit
  events list|verify
`)
}

func parseFlags(fs *flag.FlagSet, args []string, stderr io.Writer) bool {
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return false
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return false
	}
	return true
}

func requireFlag(stderr io.Writer, name, value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		fmt.Fprintf(stderr, "Error: --%s is required\n", name)
		return "", false
	}
	return trimmed, true
}

func requireUint(stderr io.Writer, name, value string) (uint64, bool) {
	trimmed, ok := requireFlag(stderr, name, value)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		fmt.Fprintf(stderr, "Error: --%s must be a non-negative integer\n", name)
		return 0, false
	}
	return v, true
}

func writeResult(stdout io.Writer, v interface{}) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
	return 0
}

func handleError(stderr io.Writer, err error) int {
	var apiErr *sdklending.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintf(stderr, "Error: %s: %s\n", apiErr.Code, apiErr.Message)
		return 2
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}
