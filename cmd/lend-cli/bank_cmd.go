package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	sdklending "sbtlend/sdk/lending"
)

func runBankCommand(g globals, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	sub, rest := args[0], args[1:]
	fs := flag.NewFlagSet("bank "+sub, flag.ContinueOnError)
	var rawAddr, rawAmount string
	fs.StringVar(&rawAddr, "addr", "", "bech32 address")
	if sub == "credit" {
		fs.StringVar(&rawAmount, "amount", "", "amount in base units")
	}
	switch sub {
	case "balance", "credit":
	default:
		fmt.Fprintf(stderr, "Unknown bank subcommand: %s\n", sub)
		return 1
	}
	if !parseFlags(fs, rest, stderr) {
		return 1
	}
	addr, ok := requireFlag(stderr, "addr", rawAddr)
	if !ok {
		return 1
	}
	if sub == "balance" {
		return call(g, stdout, stderr, func(ctx context.Context, c *sdklending.Client) (interface{}, error) {
			return valueResult(c.Balance(ctx, addr))
		})
	}
	amount, ok := requireUint(stderr, "amount", rawAmount)
	if !ok {
		return 1
	}
	return call(g, stdout, stderr, func(ctx context.Context, c *sdklending.Client) (interface{}, error) {
		return valueResult(c.Credit(ctx, addr, amount))
	})
}

func runEventsCommand(g globals, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "list":
		fs := flag.NewFlagSet("events list", flag.ContinueOnError)
		var after uint64
		var limit int
		fs.Uint64Var(&after, "after", 0, "return entries after this sequence number")
		fs.IntVar(&limit, "limit", 100, "page size")
		if !parseFlags(fs, rest, stderr) {
			return 1
		}
		return call(g, stdout, stderr, func(ctx context.Context, c *sdklending.Client) (interface{}, error) {
			return c.Events(ctx, after, limit)
		})
	case "verify":
		if !parseFlags(flag.NewFlagSet("events verify", flag.ContinueOnError), rest, stderr) {
			return 1
		}
		return call(g, stdout, stderr, func(ctx context.Context, c *sdklending.Client) (interface{}, error) {
			return c.VerifyEvents(ctx)
		})
	default:
		fmt.Fprintf(stderr, "Unknown events subcommand: %s\n", sub)
		return 1
	}
}
