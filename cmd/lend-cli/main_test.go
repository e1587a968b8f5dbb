package main

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"sbtlend/crypto"
	"sbtlend/native/lending"
	"sbtlend/services/lending/engine"
	"sbtlend/services/lending/server"
	"sbtlend/storage"
)

var testAuth = server.AuthConfig{HMACSecret: "cli-test-secret"}

func testAddress(b byte) crypto.Address {
	raw := make([]byte, crypto.AddressLength)
	raw[crypto.AddressLength-1] = b
	return crypto.NewAddress(crypto.AccountPrefix, raw)
}

func startDaemon(t *testing.T) string {
	t.Helper()
	svc, err := engine.New(storage.NewMemDB(), engine.Options{Params: lending.DefaultParams()})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	srv, err := server.New(svc, nil, nil, server.Config{Auth: testAuth})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func tokenFor(t *testing.T, addr crypto.Address) string {
	t.Helper()
	token, err := server.IssueToken(testAuth, addr, time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func TestArgValidation(t *testing.T) {
	cases := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"no command", nil, "Usage:"},
		{"unknown command", []string{"frobnicate"}, "Unknown command"},
		{"deposit without amount", []string{"lending", "deposit"}, "--amount is required"},
		{"negative amount", []string{"lending", "borrow", "--amount", "-1"}, "non-negative integer"},
		{"liquidate without borrower", []string{"lending", "liquidate"}, "--borrower is required"},
		{"mint without user", []string{"rep", "mint", "--score", "5"}, "--user is required"},
		{"batch without entries", []string{"rep", "batch"}, "at least one --entry"},
		{"batch malformed entry", []string{"rep", "batch", "--entry", "nope"}, "invalid entry"},
		{"credit without amount", []string{"bank", "credit", "--addr", "x"}, "--amount is required"},
		{"token without subject", []string{"token"}, "--subject is required"},
		{"dangling url", []string{"--url"}, "requires a value"},
		{"positional junk", []string{"lending", "stats", "extra"}, "unexpected positional"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stdout := &bytes.Buffer{}
			stderr := &bytes.Buffer{}
			if code := run(tc.args, stdout, stderr); code != 1 {
				t.Fatalf("unexpected exit code %d", code)
			}
			if stdout.Len() != 0 {
				t.Fatalf("expected empty stdout, got %q", stdout.String())
			}
			if !strings.Contains(stderr.String(), tc.wantErr) {
				t.Fatalf("stderr %q does not mention %q", stderr.String(), tc.wantErr)
			}
		})
	}
}

func TestParseGlobals(t *testing.T) {
	t.Setenv("SBTLEND_URL", "")
	t.Setenv("SBTLEND_TOKEN", "env-token")
	g, rest, err := parseGlobals([]string{"--url=http://example:1", "--token", "flag-token", "lending", "stats"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if g.endpoint != "http://example:1" || g.token != "flag-token" {
		t.Fatalf("unexpected globals %+v", g)
	}
	if len(rest) != 2 || rest[0] != "lending" {
		t.Fatalf("unexpected rest %v", rest)
	}
	g, _, _ = parseGlobals([]string{"lending"})
	if g.endpoint != defaultEndpoint || g.token != "env-token" {
		t.Fatalf("unexpected defaults %+v", g)
	}
}

func TestCommandsAgainstDaemon(t *testing.T) {
	url := startDaemon(t)
	admin, user := testAddress(0xA0), testAddress(0x01)
	adminArgs := []string{"--url", url, "--token", tokenFor(t, admin)}
	userArgs := []string{"--url", url, "--token", tokenFor(t, user)}

	exec := func(base []string, args ...string) map[string]interface{} {
		t.Helper()
		stdout := &bytes.Buffer{}
		stderr := &bytes.Buffer{}
		if code := run(append(append([]string{}, base...), args...), stdout, stderr); code != 0 {
			t.Fatalf("%v: exit %d: %s", args, code, stderr.String())
		}
		out := map[string]interface{}{}
		if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
			t.Fatalf("%v: decode output %q: %v", args, stdout.String(), err)
		}
		return out
	}

	exec(adminArgs, "lending", "init")
	exec(adminArgs, "rep", "init")
	if got := exec(adminArgs, "bank", "credit", "--addr", user.String(), "--amount", "500"); got["value"] != float64(500) {
		t.Fatalf("unexpected credit output %v", got)
	}
	if got := exec(userArgs, "lending", "deposit", "--amount", "300"); got["totalCollateral"] != "300" {
		t.Fatalf("unexpected deposit output %v", got)
	}
	if got := exec(userArgs, "lending", "max-borrow", "--addr", user.String()); got["value"] != float64(200) {
		t.Fatalf("unexpected max borrow %v", got)
	}
	if got := exec(adminArgs, "rep", "mint", "--user", user.String(), "--score", "1500"); got["level"] != "Gold" {
		t.Fatalf("unexpected mint output %v", got)
	}

	stderr := &bytes.Buffer{}
	code := run(append(append([]string{}, userArgs...), "lending", "borrow", "--amount", "250"), &bytes.Buffer{}, stderr)
	if code != 2 {
		t.Fatalf("expected api error exit code, got %d", code)
	}
	if !strings.Contains(stderr.String(), "insufficient_collateral") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}
