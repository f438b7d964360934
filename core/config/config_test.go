package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestLoadMissingFileFallsBackToEnv(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q", cfg.Telegram.RunMode)
	}
	if *cfg.Bot.FeatureHour != 21 || *cfg.Bot.FeatureMinute != 37 {
		t.Fatalf("feature window = %d:%d", *cfg.Bot.FeatureHour, *cfg.Bot.FeatureMinute)
	}
	if cfg.Storage.Driver != StorageMemory {
		t.Fatalf("driver = %q", cfg.Storage.Driver)
	}
	if len(cfg.Verification.Decoys) != DecoyCount {
		t.Fatalf("decoys = %v", cfg.Verification.Decoys)
	}
}

func TestLoadMissingFileWithoutTokenFails(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !strings.Contains(err.Error(), "token") {
		t.Fatalf("expected token error, got %v", err)
	}
}

func TestLoadJSONProperties(t *testing.T) {
	t.Setenv("BOT_TOKEN", "")
	path := filepath.Join(t.TempDir(), "properties.json")
	body := `{
  "telegram": {"token": "42:xyz"},
  "bot": {"chat_id": -100500, "group_link": "https://t.me/example", "media_index_url": "https://example.org/list.txt", "feature_hour": 0, "feature_minute": 5}
}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Bot.ChatID != -100500 || cfg.Bot.GroupLink != "https://t.me/example" {
		t.Fatalf("bot config = %+v", cfg.Bot)
	}
	if *cfg.Bot.FeatureHour != 0 || *cfg.Bot.FeatureMinute != 5 {
		t.Fatalf("explicit zero hour lost: %d:%d", *cfg.Bot.FeatureHour, *cfg.Bot.FeatureMinute)
	}
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("telegram: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadTokenFromKeyring(t *testing.T) {
	keyring.MockInit()
	t.Setenv("BOT_TOKEN", "")
	t.Setenv("BOT_TOKEN_KEYRING_ACCOUNT", "main")
	if err := StoreTokenInKeyring("main", "7:secret"); err != nil {
		t.Fatalf("store: %v", err)
	}
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Telegram.Token != "7:secret" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
}

func TestNormalizeRejectsInvalidValues(t *testing.T) {
	bad := 24
	cases := map[string]func(*Config){
		"run mode":     func(c *Config) { c.Telegram.RunMode = "carrier-pigeon" },
		"feature hour": func(c *Config) { c.Bot.FeatureHour = &bad },
		"decoys": func(c *Config) {
			c.Verification.CorrectAnswer = "yes"
			c.Verification.Decoys = []string{"no"}
		},
		"driver":   func(c *Config) { c.Storage.Driver = "floppy" },
		"redis":    func(c *Config) { c.Storage.Driver = StorageRedis },
		"postgres": func(c *Config) { c.Storage.Driver = StoragePostgres },
		"timezone": func(c *Config) { c.Bot.Timezone = "Mars/Olympus" },
		"exclude":  func(c *Config) { c.RateLimit.ExcludeUpdates = []string{"poll"} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := &Config{Telegram: TelegramConfig{Token: "1:x"}}
			mutate(cfg)
			if err := Normalize(cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNormalizeFillsMessages(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{Token: "1:x"}}
	cfg.Messages.Forbidden = "Brak uprawnień."
	if err := Normalize(cfg); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cfg.Messages.Forbidden != "Brak uprawnień." {
		t.Fatalf("custom message overwritten: %q", cfg.Messages.Forbidden)
	}
	if cfg.Messages.AlreadyVerified == "" || cfg.Messages.RulesUsage == "" {
		t.Fatal("defaults not applied")
	}
}
