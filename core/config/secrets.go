package config

import "github.com/zalando/go-keyring"

const keyringService = "gatekeeper"

// TokenFromKeyring reads the bot token stored in the system keychain under account.
func TokenFromKeyring(account string) (string, error) {
	return keyring.Get(keyringService, account)
}

// StoreTokenInKeyring saves the bot token in the system keychain under account.
func StoreTokenInKeyring(account, token string) error {
	return keyring.Set(keyringService, account, token)
}
