package crypto

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := make([]byte, AddressLength)
	raw[0] = 0x01
	raw[19] = 0xff
	addr := NewAddress(AccountPrefix, raw)

	encoded := addr.String()
	if !strings.HasPrefix(encoded, "sbt1") {
		t.Fatalf("unexpected encoding: %s", encoded)
	}
	decoded, err := DecodeAddress(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != addr {
		t.Fatalf("round trip mismatch: %s != %s", decoded, addr)
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "   ", "sbt1invalid", "not-bech32"} {
		if _, err := DecodeAddress(input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}

func TestAddressJSON(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()

	payload, err := json.Marshal(struct {
		User Address `json:"user"`
	}{User: addr})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out struct {
		User Address `json:"user"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !out.User.Equal(addr) {
		t.Fatalf("expected %s, got %s", addr, out.User)
	}
}

func TestModuleAddressDeterministic(t *testing.T) {
	owner := NewAddress(AccountPrefix, make([]byte, AddressLength))
	a := ModuleAddress("lending", owner)
	b := ModuleAddress("lending", owner)
	c := ModuleAddress("reputation", owner)
	if a != b {
		t.Fatalf("module address not deterministic")
	}
	if a.Equal(c) {
		t.Fatalf("distinct modules must not share custody")
	}
	if a.Prefix() != ModulePrefix {
		t.Fatalf("unexpected prefix %s", a.Prefix())
	}
}
