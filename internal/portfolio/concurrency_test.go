package portfolio_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nivesha/portfolio/internal/ledger"
	"github.com/nivesha/portfolio/internal/model"
	"github.com/nivesha/portfolio/internal/portfolio"
	"github.com/nivesha/portfolio/internal/store"
)

func TestApply_ConcurrentSameUserLosesNoUpdates(t *testing.T) {
	ms := store.NewMemoryStore()
	svc := portfolio.NewService(ms, nil)
	ctx := context.Background()

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sym := "AAPL"
			if i%2 == 1 {
				sym = "aapl"
			}
			if _, err := svc.Apply(ctx, "user1", model.Transaction{Symbol: sym, Quantity: 2, Price: 10}); err != nil {
				t.Errorf("apply %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	p, err := svc.Get(ctx, "user1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(p.Holdings) != 1 {
		t.Fatalf("expected 1 holding, got %+v", p.Holdings)
	}
	if p.Holdings[0].Quantity != 2*workers {
		t.Errorf("lost updates: expected qty=%d, got %d", 2*workers, p.Holdings[0].Quantity)
	}
	if p.Version != workers {
		t.Errorf("expected version=%d, got %d", workers, p.Version)
	}
}

func TestApply_ConcurrentResultMatchesASequentialOrder(t *testing.T) {
	start := []model.Holding{{Symbol: "AAPL", Quantity: 10, AverageCost: 100}}
	t1 := model.Transaction{Symbol: "AAPL", Quantity: 10, Price: 200}
	t2 := model.Transaction{Symbol: "AAPL", Quantity: -15, Price: 0}

	// These two orders diverge: t2 first closes the position.
	orderA := ledger.Merge(ledger.Merge(start, t1), t2)
	orderB := ledger.Merge(ledger.Merge(start, t2), t1)

	for run := 0; run < 20; run++ {
		ms := store.NewMemoryStore()
		seed := model.NewEmptyPortfolio("user1")
		seed.Holdings = start
		if err := ms.SavePortfolio(context.Background(), seed); err != nil {
			t.Fatalf("seed: %v", err)
		}
		svc := portfolio.NewService(ms, nil)

		var wg sync.WaitGroup
		for _, tr := range []model.Transaction{t1, t2} {
			wg.Add(1)
			go func(tr model.Transaction) {
				defer wg.Done()
				svc.Apply(context.Background(), "user1", tr)
			}(tr)
		}
		wg.Wait()

		got, _ := svc.Summary(context.Background(), "user1")
		if !sameHoldings(got, orderA) && !sameHoldings(got, orderB) {
			t.Fatalf("run %d: %+v matches neither %+v nor %+v", run, got, orderA, orderB)
		}
	}
}

// racingStore simulates a writer on another instance: right before the
// first save it commits a competing transaction straight to the store.
type racingStore struct {
	*store.MemoryStore
	once     sync.Once
	conflict model.Transaction
}

func (r *racingStore) SavePortfolio(ctx context.Context, p *model.Portfolio) error {
	r.once.Do(func() {
		other, err := r.MemoryStore.GetPortfolio(ctx, p.UserID)
		if err != nil {
			other = model.NewEmptyPortfolio(p.UserID)
		}
		other.Holdings = ledger.Merge(other.Holdings, r.conflict)
		r.MemoryStore.SavePortfolio(ctx, other)
	})
	return r.MemoryStore.SavePortfolio(ctx, p)
}

func TestApply_RetriesOnVersionConflict(t *testing.T) {
	st := &racingStore{
		MemoryStore: store.NewMemoryStore(),
		conflict:    model.Transaction{Symbol: "MSFT", Quantity: 3, Price: 300},
	}
	svc := portfolio.NewService(st, nil)

	p, err := svc.Apply(context.Background(), "user1", model.Transaction{Symbol: "AAPL", Quantity: 10, Price: 100})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	want := []model.Holding{
		{Symbol: "MSFT", Quantity: 3, AverageCost: 300},
		{Symbol: "AAPL", Quantity: 10, AverageCost: 100},
	}
	if !sameHoldings(p.Holdings, want) {
		t.Errorf("expected both writes to survive, got %+v", p.Holdings)
	}
	if p.Version != 2 {
		t.Errorf("expected version 2, got %d", p.Version)
	}
}

// blockingStore parks loads for one user until released.
type blockingStore struct {
	*store.MemoryStore
	blockUser string
	entered   chan struct{}
	release   chan struct{}
}

func (b *blockingStore) GetPortfolio(ctx context.Context, userID string) (*model.Portfolio, error) {
	if userID == b.blockUser {
		b.entered <- struct{}{}
		<-b.release
	}
	return b.MemoryStore.GetPortfolio(ctx, userID)
}

func TestApply_DifferentUsersDoNotBlockEachOther(t *testing.T) {
	st := &blockingStore{
		MemoryStore: store.NewMemoryStore(),
		blockUser:   "slow",
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	svc := portfolio.NewService(st, nil)
	ctx := context.Background()

	slowDone := make(chan error, 1)
	go func() {
		_, err := svc.Apply(ctx, "slow", model.Transaction{Symbol: "AAPL", Quantity: 1, Price: 1})
		slowDone <- err
	}()
	<-st.entered

	fastDone := make(chan error, 1)
	go func() {
		_, err := svc.Apply(ctx, "fast", model.Transaction{Symbol: "AAPL", Quantity: 1, Price: 1})
		fastDone <- err
	}()

	select {
	case err := <-fastDone:
		if err != nil {
			t.Fatalf("fast apply: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("apply for another user was blocked")
	}

	close(st.release)
	if err := <-slowDone; err != nil {
		t.Fatalf("slow apply: %v", err)
	}
}

func TestApply_HonorsContextWhileWaitingForLock(t *testing.T) {
	st := &blockingStore{
		MemoryStore: store.NewMemoryStore(),
		blockUser:   "user1",
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
	svc := portfolio.NewService(st, nil)

	go svc.Apply(context.Background(), "user1", model.Transaction{Symbol: "AAPL", Quantity: 1, Price: 1})
	<-st.entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := svc.Apply(ctx, "user1", model.Transaction{Symbol: "AAPL", Quantity: 1, Price: 1})
	if err != context.DeadlineExceeded {
		t.Errorf("expected DeadlineExceeded while waiting for the user lock, got %v", err)
	}

	close(st.release)
}

func sameHoldings(a, b []model.Holding) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Symbol != b[i].Symbol || a[i].Quantity != b[i].Quantity || !approxEqual(a[i].AverageCost, b[i].AverageCost) {
			return false
		}
	}
	return true
}

func ExampleService_Apply() {
	svc := portfolio.NewService(store.NewMemoryStore(), nil)
	ctx := context.Background()

	svc.Apply(ctx, "user1", model.Transaction{Symbol: "AAPL", Quantity: 10, Price: 100})
	p, _ := svc.Apply(ctx, "user1", model.Transaction{Symbol: "aapl", Quantity: 10, Price: 200})

	for _, h := range p.Holdings {
		fmt.Printf("%s %d @ %.2f\n", h.Symbol, h.Quantity, h.AverageCost)
	}
	// Output: AAPL 20 @ 150.00
}
