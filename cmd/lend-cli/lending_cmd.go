package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	sdklending "sbtlend/sdk/lending"
)

// call runs fn against the daemon and prints its result.
func call(g globals, stdout, stderr io.Writer, fn func(ctx context.Context, c *sdklending.Client) (interface{}, error)) int {
	client, err := newClient(g)
	if err != nil {
		return handleError(stderr, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	result, err := fn(ctx, client)
	if err != nil {
		return handleError(stderr, err)
	}
	return writeResult(stdout, result)
}

func valueResult(v uint64, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	return map[string]uint64{"value": v}, nil
}

func runLendingCommand(g globals, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "init":
		if !parseFlags(flag.NewFlagSet("lending init", flag.ContinueOnError), rest, stderr) {
			return 1
		}
		return call(g, stdout, stderr, func(ctx context.Context, c *sdklending.Client) (interface{}, error) {
			return c.InitializePool(ctx)
		})
	case "deposit", "borrow", "repay", "withdraw":
		return runLendingAmount(g, sub, rest, stdout, stderr)
	case "liquidate":
		fs := flag.NewFlagSet("lending liquidate", flag.ContinueOnError)
		var borrower string
		fs.StringVar(&borrower, "borrower", "", "bech32 address of the borrower")
		if !parseFlags(fs, rest, stderr) {
			return 1
		}
		addr, ok := requireFlag(stderr, "borrower", borrower)
		if !ok {
			return 1
		}
		return call(g, stdout, stderr, func(ctx context.Context, c *sdklending.Client) (interface{}, error) {
			return c.Liquidate(ctx, addr)
		})
	case "profile", "loan", "health", "max-borrow":
		return runLendingAddressQuery(g, sub, rest, stdout, stderr)
	case "stats":
		if !parseFlags(flag.NewFlagSet("lending stats", flag.ContinueOnError), rest, stderr) {
			return 1
		}
		return call(g, stdout, stderr, func(ctx context.Context, c *sdklending.Client) (interface{}, error) {
			return c.Stats(ctx)
		})
	case "utilization":
		if !parseFlags(flag.NewFlagSet("lending utilization", flag.ContinueOnError), rest, stderr) {
			return 1
		}
		return call(g, stdout, stderr, func(ctx context.Context, c *sdklending.Client) (interface{}, error) {
			return valueResult(c.Utilization(ctx))
		})
	default:
		fmt.Fprintf(stderr, "Unknown lending subcommand: %s\n", sub)
		return 1
	}
}

func runLendingAmount(g globals, sub string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("lending "+sub, flag.ContinueOnError)
	var raw string
	fs.StringVar(&raw, "amount", "", "amount in base units")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	amount, ok := requireUint(stderr, "amount", raw)
	if !ok {
		return 1
	}
	return call(g, stdout, stderr, func(ctx context.Context, c *sdklending.Client) (interface{}, error) {
		switch sub {
		case "deposit":
			return c.Deposit(ctx, amount)
		case "borrow":
			return c.Borrow(ctx, amount)
		case "repay":
			return c.Repay(ctx, amount)
		default:
			return c.Withdraw(ctx, amount)
		}
	})
}

func runLendingAddressQuery(g globals, sub string, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("lending "+sub, flag.ContinueOnError)
	var raw string
	fs.StringVar(&raw, "addr", "", "bech32 address")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	addr, ok := requireFlag(stderr, "addr", raw)
	if !ok {
		return 1
	}
	return call(g, stdout, stderr, func(ctx context.Context, c *sdklending.Client) (interface{}, error) {
		switch sub {
		case "profile":
			return c.Profile(ctx, addr)
		case "loan":
			return c.Loan(ctx, addr)
		case "health":
			return valueResult(c.HealthFactor(ctx, addr))
		default:
			return valueResult(c.MaxBorrowable(ctx, addr))
		}
	})
}
