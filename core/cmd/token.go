package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	coreconfig "github.com/m3rciful/gatekeeper/core/config"
)

const storeTokenCommand = "store-token"

// StoreToken reads a bot token from the first line of r and saves it in the
// system keychain under account, for use with token_keyring_account.
func StoreToken(account string, r io.Reader) error {
	account = strings.TrimSpace(account)
	if account == "" {
		return errors.New("cmd: keyring account is required")
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("cmd: read token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return errors.New("cmd: empty token")
	}
	if err := coreconfig.StoreTokenInKeyring(account, token); err != nil {
		return fmt.Errorf("cmd: store token: %w", err)
	}
	return nil
}
