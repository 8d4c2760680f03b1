package parallel

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestFor_VisitsEveryIndex(t *testing.T) {
	configs := map[string]Config{
		"sequential": Sequential(),
		"parallel":   {Enabled: true, NumWorkers: 4, MinChunkSize: 1},
		"small n":    {Enabled: true, NumWorkers: 4, MinChunkSize: 1000},
	}
	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			const n = 100
			var hits [n]int32
			err := For(context.Background(), n, func(_ context.Context, i int) error {
				atomic.AddInt32(&hits[i], 1)
				return nil
			}, cfg)
			if err != nil {
				t.Fatalf("For: %v", err)
			}
			for i, h := range hits {
				if h != 1 {
					t.Errorf("index %d visited %d times", i, h)
				}
			}
		})
	}
}

func TestFor_ReturnsFirstError(t *testing.T) {
	boom := errors.New("boom")
	cfg := Config{Enabled: true, NumWorkers: 2, MinChunkSize: 1}

	err := For(context.Background(), 50, func(ctx context.Context, i int) error {
		if i == 7 {
			return boom
		}
		return nil
	}, cfg)
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want %v", err, boom)
	}
}

func TestFor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	err := For(ctx, 10, func(context.Context, int) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}, Sequential())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("ran %d iterations after cancel", calls)
	}
}
