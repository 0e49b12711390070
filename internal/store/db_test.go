package store

import (
	"testing"
	"time"
)

func TestPoolOptionsDefaults(t *testing.T) {
	got := PoolOptions{}.withDefaults()
	want := PoolOptions{MaxOpenConns: 20, MaxIdleConns: 10, ConnMaxLifetime: 30 * time.Minute, ConnMaxIdleTime: 5 * time.Minute}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}

	got = PoolOptions{MaxOpenConns: 4, MaxIdleConns: 9}.withDefaults()
	if got.MaxOpenConns != 4 || got.MaxIdleConns != 4 {
		t.Fatalf("idle connections must not exceed open connections: %+v", got)
	}
}
