package redisutil

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()
	if err := client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got := mr.Exists("k"); !got {
		t.Fatalf("expected key written to miniredis")
	}
}

func TestConnectRejectsBadURL(t *testing.T) {
	if _, err := Connect(context.Background(), "not-a-url://x"); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestTLSConfigFromEnvDisabled(t *testing.T) {
	t.Setenv(envRedisTLSCA, "")
	t.Setenv(envRedisTLSServerName, "")
	t.Setenv(envRedisTLSInsecure, "")
	cfg, err := tlsConfigFromEnv(nil)
	if err != nil {
		t.Fatalf("tls config: %v", err)
	}
	if cfg != nil {
		t.Fatalf("expected no tls config")
	}
}

func TestTLSConfigFromEnvServerName(t *testing.T) {
	t.Setenv(envRedisTLSServerName, "redis.internal")
	t.Setenv(envRedisTLSInsecure, "yes")
	cfg, err := tlsConfigFromEnv(nil)
	if err != nil {
		t.Fatalf("tls config: %v", err)
	}
	if cfg == nil || cfg.ServerName != "redis.internal" || !cfg.InsecureSkipVerify {
		t.Fatalf("unexpected tls config: %+v", cfg)
	}
}

func TestParseAddrList(t *testing.T) {
	got := parseAddrList(" a:1, b:2\nc:3 ")
	if len(got) != 3 || got[2] != "c:3" {
		t.Fatalf("unexpected addrs: %v", got)
	}
	if parseAddrList("") != nil {
		t.Fatalf("expected nil for empty list")
	}
}
