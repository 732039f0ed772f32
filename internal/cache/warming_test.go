package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

type fakePrefetcher struct {
	mu     sync.Mutex
	cities []string
	failOn map[string]error
}

func (f *fakePrefetcher) Prefetch(ctx context.Context, city string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cities = append(f.cities, city)
	return f.failOn[city]
}

func TestWarmer_Warm_Success(t *testing.T) {
	p := &fakePrefetcher{}
	w := NewWarmer(p, nil)

	if err := w.Warm(context.Background(), []string{"Bengaluru", "Pune"}); err != nil {
		t.Fatalf("Warm() error = %v, want nil", err)
	}
	if len(p.cities) != 2 {
		t.Errorf("prefetched %d cities, want 2", len(p.cities))
	}
}

func TestWarmer_Warm_EmptyCities(t *testing.T) {
	w := NewWarmer(&fakePrefetcher{}, nil)

	if err := w.Warm(context.Background(), nil); err != nil {
		t.Fatalf("Warm(nil) error = %v, want nil", err)
	}
}

func TestWarmer_Warm_PartialFailure(t *testing.T) {
	p := &fakePrefetcher{failOn: map[string]error{"Atlantis": errors.New("not found")}}
	w := NewWarmer(p, nil)

	err := w.Warm(context.Background(), []string{"Pune", "Atlantis"})
	if err == nil {
		t.Fatal("Warm() error = nil, want non-nil")
	}
	if !strings.Contains(err.Error(), "warm Atlantis") {
		t.Errorf("Warm() error = %q, want it to name the failed city", err)
	}
}

func TestWarmer_WarmPeriodic_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := NewWarmer(&fakePrefetcher{}, nil)

	if err := w.WarmPeriodic(ctx, []string{"Pune"}, 1<<40); !errors.Is(err, context.Canceled) {
		t.Errorf("WarmPeriodic() error = %v, want context.Canceled", err)
	}
}
