//go:build integration

package dialog

import (
	"context"
	"os"
	"testing"
	"time"
)

func TestRedisStore_Integration(t *testing.T) {
	url := os.Getenv("SB_TEST_REDIS_URL")
	if url == "" {
		t.Skip("SB_TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	r, err := NewRedisStore(ctx, url, time.Minute)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer r.Close()
	r.prefix = "switchboard:test:" + time.Now().Format("150405.000") + ":"

	st, err := r.Get(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st.Step != StepIdle {
		t.Errorf("Step = %q, want idle for unknown user", st.Step)
	}

	if err := r.Set(ctx, 1, State{Step: StepInChat, ChatID: 12}); err != nil {
		t.Fatalf("set: %v", err)
	}
	st, err = r.Get(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st.Step != StepInChat || st.ChatID != 12 {
		t.Errorf("state = %+v", st)
	}

	ttl, err := r.client.TTL(ctx, r.key(1)).Result()
	if err != nil {
		t.Fatalf("ttl: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("ttl = %v, want within a minute", ttl)
	}

	if err := r.Clear(ctx, 1); err != nil {
		t.Fatalf("clear: %v", err)
	}
	st, _ = r.Get(ctx, 1)
	if st.Step != StepIdle {
		t.Errorf("Step after clear = %q", st.Step)
	}
}
