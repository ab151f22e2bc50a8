package config_test

import (
	"strings"
	"testing"
	"time"

	"github.com/threadring/ringhub/internal/config"
)

func validConfig() *config.Config {
	return &config.Config{
		Hub: config.HubConfig{
			Port:     8080,
			URL:      "https://hub.example",
			Name:     "Ring Hub",
			RootSlug: "spool",
		},
		DID:        config.DIDConfig{CacheTTL: time.Hour},
		Profile:    config.ProfileConfig{TTL: 24 * time.Hour},
		Invitation: config.InvitationConfig{TTL: 168 * time.Hour},
	}
}

func TestValidateAccepts(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantMsg string
	}{
		{
			name:    "port out of range",
			mutate:  func(c *config.Config) { c.Hub.Port = 70000 },
			wantMsg: "hub.port",
		},
		{
			name:    "bad hub url",
			mutate:  func(c *config.Config) { c.Hub.URL = "not a url" },
			wantMsg: "hub.url",
		},
		{
			name:    "bad root slug",
			mutate:  func(c *config.Config) { c.Hub.RootSlug = "Bad Slug!" },
			wantMsg: "hub.root_slug",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *config.Config) { c.Security.JWTSecret = "short" },
			wantMsg: "security.jwt_secret",
		},
		{
			name:    "zero cache ttl",
			mutate:  func(c *config.Config) { c.DID.CacheTTL = 0 },
			wantMsg: "did.cache_ttl",
		},
		{
			name:    "invitation ttl too short",
			mutate:  func(c *config.Config) { c.Invitation.TTL = time.Minute },
			wantMsg: "invitation.ttl",
		},
		{
			name: "smtp port out of range",
			mutate: func(c *config.Config) {
				c.SMTP.Host = "mail.example"
				c.SMTP.Port = 0
			},
			wantMsg: "notify.smtp_port",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tc.wantMsg)
			}
		})
	}
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Hub.Port = 0
	cfg.Hub.RootSlug = "-bad-"
	cfg.Security.JWTSecret = "short"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"hub.port", "hub.root_slug", "security.jwt_secret"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("aggregate error %q is missing %q", err, want)
		}
	}
}

func TestRedisAddr(t *testing.T) {
	r := config.RedisConfig{Host: "cache.example", Port: 6380}
	if got := r.Addr(); got != "cache.example:6380" {
		t.Errorf("Addr = %q, want cache.example:6380", got)
	}
}
