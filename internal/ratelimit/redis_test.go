package ratelimit

import (
	"testing"
	"time"

	"github.com/johnrirwin/topicbuddy/internal/testutil"
)

func TestRedisLimiter_Window(t *testing.T) {
	client := testutil.NewTestRedis(t)
	limiter := NewRedis(client, testutil.RedisPrefix(t), 200*time.Millisecond)

	if !limiter.Allow("sync:10.0.0.1") {
		t.Error("Allow() should return true for the first trigger")
	}
	if limiter.Allow("sync:10.0.0.1") {
		t.Error("Allow() should return false inside the window")
	}
	if !limiter.Allow("sync:10.0.0.2") {
		t.Error("Allow() should track clients separately")
	}

	time.Sleep(400 * time.Millisecond)
	if !limiter.Allow("sync:10.0.0.1") {
		t.Error("Allow() should return true after the window expires")
	}
}

func TestRedisLimiter_SharedAcrossInstances(t *testing.T) {
	client := testutil.NewTestRedis(t)
	prefix := testutil.RedisPrefix(t)
	first := NewRedis(client, prefix, time.Minute)
	second := NewRedis(client, prefix, time.Minute)

	if !first.Allow("sync:1.2.3.4") {
		t.Fatal("Allow() should return true for the first trigger")
	}
	if second.Allow("sync:1.2.3.4") {
		t.Error("a second instance should see the window set by the first")
	}
}

func TestRedisLimiter_ZeroWindowAllows(t *testing.T) {
	limiter := NewRedis(nil, "", 0)
	for i := 0; i < 3; i++ {
		if !limiter.Allow("sync:any") {
			t.Errorf("Allow() #%d with zero window = false, want true", i+1)
		}
	}
	if limiter.prefix != "ratelimit:" {
		t.Errorf("default prefix = %q, want ratelimit:", limiter.prefix)
	}
}
