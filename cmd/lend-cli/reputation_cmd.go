package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	sdklending "sbtlend/sdk/lending"
)

func runReputationCommand(g globals, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "init":
		fs := flag.NewFlagSet("rep init", flag.ContinueOnError)
		var collection string
		fs.StringVar(&collection, "collection", "", "collection name")
		if !parseFlags(fs, rest, stderr) {
			return 1
		}
		return call(g, stdout, stderr, func(ctx context.Context, c *sdklending.Client) (interface{}, error) {
			if err := c.InitializeRegistry(ctx, collection); err != nil {
				return nil, err
			}
			return c.Thresholds(ctx)
		})
	case "mint", "update":
		return runReputationWrite(g, sub, "score", rest, stdout, stderr)
	case "increase", "decrease":
		return runReputationWrite(g, sub, "points", rest, stdout, stderr)
	case "batch":
		return runReputationBatch(g, rest, stdout, stderr)
	case "get", "has", "multiplier":
		fs := flag.NewFlagSet("rep "+sub, flag.ContinueOnError)
		var raw string
		fs.StringVar(&raw, "addr", "", "bech32 address")
		if !parseFlags(fs, rest, stderr) {
			return 1
		}
		addr, ok := requireFlag(stderr, "addr", raw)
		if !ok {
			return 1
		}
		return call(g, stdout, stderr, func(ctx context.Context, c *sdklending.Client) (interface{}, error) {
			switch sub {
			case "get":
				return c.Reputation(ctx, addr)
			case "has":
				has, err := c.HasSBT(ctx, addr)
				return map[string]bool{"value": has}, err
			default:
				return valueResult(c.Multiplier(ctx, addr))
			}
		})
	case "can":
		fs := flag.NewFlagSet("rep can", flag.ContinueOnError)
		var raw, rawRequired string
		fs.StringVar(&raw, "addr", "", "bech32 address")
		fs.StringVar(&rawRequired, "required", "", "minimum score")
		if !parseFlags(fs, rest, stderr) {
			return 1
		}
		addr, ok := requireFlag(stderr, "addr", raw)
		if !ok {
			return 1
		}
		required, ok := requireUint(stderr, "required", rawRequired)
		if !ok {
			return 1
		}
		return call(g, stdout, stderr, func(ctx context.Context, c *sdklending.Client) (interface{}, error) {
			allowed, err := c.CanPerformAction(ctx, addr, required)
			return map[string]bool{"value": allowed}, err
		})
	case "thresholds":
		if !parseFlags(flag.NewFlagSet("rep thresholds", flag.ContinueOnError), rest, stderr) {
			return 1
		}
		return call(g, stdout, stderr, func(ctx context.Context, c *sdklending.Client) (interface{}, error) {
			return c.Thresholds(ctx)
		})
	default:
		fmt.Fprintf(stderr, "Unknown rep subcommand: %s\n", sub)
		return 1
	}
}

func runReputationWrite(g globals, sub, valueFlag string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("rep "+sub, flag.ContinueOnError)
	var rawUser, rawValue string
	fs.StringVar(&rawUser, "user", "", "bech32 address of the token holder")
	fs.StringVar(&rawValue, valueFlag, "", valueFlag)
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	user, ok := requireFlag(stderr, "user", rawUser)
	if !ok {
		return 1
	}
	value, ok := requireUint(stderr, valueFlag, rawValue)
	if !ok {
		return 1
	}
	return call(g, stdout, stderr, func(ctx context.Context, c *sdklending.Client) (interface{}, error) {
		switch sub {
		case "mint":
			return c.Mint(ctx, user, value)
		case "update":
			return c.UpdateScore(ctx, user, value)
		case "increase":
			return c.IncreaseScore(ctx, user, value)
		default:
			return c.DecreaseScore(ctx, user, value)
		}
	})
}

// runReputationBatch takes repeated --entry ADDR=SCORE flags.
func runReputationBatch(g globals, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("rep batch", flag.ContinueOnError)
	var entries multiFlag
	fs.Var(&entries, "entry", "ADDR=SCORE, repeatable")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	if len(entries) == 0 {
		fmt.Fprintln(stderr, "Error: at least one --entry is required")
		return 1
	}
	users := make([]string, 0, len(entries))
	scores := make([]uint64, 0, len(entries))
	for _, entry := range entries {
		addr, rawScore, found := strings.Cut(entry, "=")
		score, err := strconv.ParseUint(strings.TrimSpace(rawScore), 10, 64)
		if !found || strings.TrimSpace(addr) == "" || err != nil {
			fmt.Fprintf(stderr, "Error: invalid entry %q\n", entry)
			return 1
		}
		users = append(users, strings.TrimSpace(addr))
		scores = append(scores, score)
	}
	return call(g, stdout, stderr, func(ctx context.Context, c *sdklending.Client) (interface{}, error) {
		return c.BatchUpdate(ctx, users, scores)
	})
}

type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}
