package repository_test

import (
	"sync"
	"testing"
	"time"

	"github.com/kjannette/quote-relay/internal/models"
	"github.com/kjannette/quote-relay/internal/repository"
)

func TestTickRepo(t *testing.T) {
	repo := repository.NewTickRepo()

	if repo.HasTick() {
		t.Fatal("fresh repo should have no tick")
	}
	if _, ok := repo.GetLatest(); ok {
		t.Fatal("GetLatest should report no tick")
	}

	repo.Record(models.Quote{Symbol: "X", Price: 10, Time: time.Now()})
	repo.Record(models.Quote{Symbol: "X", Price: 11, Time: time.Now()})

	latest, ok := repo.GetLatest()
	if !ok {
		t.Fatal("expected latest tick")
	}
	if latest.Price != 11 {
		t.Fatalf("latest should be overwritten, got %v", latest.Price)
	}
	if repo.Count() != 2 {
		t.Fatalf("count: got %d", repo.Count())
	}
	t.Logf("Latest: %s %.2f", latest.Symbol, latest.Price)
}

func TestTickRepo_ConcurrentReaders(t *testing.T) {
	repo := repository.NewTickRepo()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			repo.Record(models.Quote{Symbol: "X", Price: float64(i)})
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				if q, ok := repo.GetLatest(); ok && q.Symbol != "X" {
					t.Errorf("torn read: %+v", q)
					return
				}
			}
		}()
	}
	wg.Wait()

	if latest, _ := repo.GetLatest(); latest.Price != 999 {
		t.Fatalf("expected final write to win, got %v", latest.Price)
	}
}
