package rediscache

import (
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
)

func TestBanKeyIncludesTodaysDateAndScope(t *testing.T) {
	c := &Cache{prefix: "mjproxy"}
	key := c.banKey("user", "u1")

	today := time.Now().Format("20060102")
	if !strings.HasPrefix(key, "mjproxy:banned:"+today) {
		t.Fatalf("expected key to start with mjproxy:banned:%s, got %s", today, key)
	}
	if !strings.HasSuffix(key, "user:u1") {
		t.Fatalf("expected key to end with user:u1, got %s", key)
	}
}

func TestAccountKeyNamespacesByPrefix(t *testing.T) {
	c := &Cache{prefix: "mjproxy"}
	if got := c.accountKey("acc-1"); got != "mjproxy:account:acc-1" {
		t.Fatalf("unexpected account key: %s", got)
	}
}

func TestNewDefaultsEmptyPrefix(t *testing.T) {
	c := New(&redis.Options{}, "")
	defer c.Close()
	if c.prefix != keyPrefix {
		t.Fatalf("expected default prefix %s, got %s", keyPrefix, c.prefix)
	}
}
