package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"time"

	"sbtlend/cmd/internal/passphrase"
	"sbtlend/crypto"
	"sbtlend/services/lending/server"
)

var secretSource = passphrase.NewSource("SBTLEND_JWT_SECRET", "jwt signing secret")

func runKeygen(stdout, stderr io.Writer) int {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return handleError(stderr, err)
	}
	return writeResult(stdout, map[string]string{
		"address":    key.PubKey().Address().String(),
		"privateKey": hex.EncodeToString(key.Bytes()),
	})
}

func runToken(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	var subject, issuer, audience string
	var ttl time.Duration
	fs.StringVar(&subject, "subject", "", "bech32 address the token authenticates")
	fs.StringVar(&issuer, "issuer", "", "token issuer")
	fs.StringVar(&audience, "audience", "", "token audience")
	fs.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	if !parseFlags(fs, args, stderr) {
		return 1
	}
	raw, ok := requireFlag(stderr, "subject", subject)
	if !ok {
		return 1
	}
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid subject: %v\n", err)
		return 1
	}
	secret, err := secretSource.Get()
	if err != nil {
		return handleError(stderr, err)
	}
	token, err := server.IssueToken(server.AuthConfig{HMACSecret: secret, Issuer: issuer, Audience: audience}, addr, ttl)
	if err != nil {
		return handleError(stderr, err)
	}
	fmt.Fprintln(stdout, token)
	return 0
}
