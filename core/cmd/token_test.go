package cmd

import (
	"strings"
	"testing"

	"github.com/zalando/go-keyring"

	coreconfig "github.com/m3rciful/gatekeeper/core/config"
)

func TestStoreTokenSavesFirstLine(t *testing.T) {
	keyring.MockInit()
	if err := StoreToken(" main ", strings.NewReader("7:secret\nignored\n")); err != nil {
		t.Fatalf("store: %v", err)
	}
	got, err := coreconfig.TokenFromKeyring("main")
	if err != nil || got != "7:secret" {
		t.Fatalf("keyring = %q, %v", got, err)
	}
}

func TestStoreTokenRejectsEmptyInput(t *testing.T) {
	keyring.MockInit()
	if err := StoreToken("main", strings.NewReader("  \n")); err == nil {
		t.Fatal("expected error for empty token")
	}
	if err := StoreToken("", strings.NewReader("7:secret")); err == nil {
		t.Fatal("expected error for empty account")
	}
}
