package service

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ifeelsam/core-bet/internal/domain"
)

var testAddress = common.HexToAddress("0x00000000000000000000000000000000000000a1")

// waitFor ждет условие: колбэки таймеров fake clock идут в своих горутинах
func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("не дождались: %s", what)
}

func activeStatus(mines int, revealed ...int) *domain.GameStatus {
	st := &domain.GameStatus{
		BetAmount: big.NewInt(1e18),
		MineCount: uint8(mines),
		Seed:      common.HexToHash("0x01"),
		Active:    true,
	}
	for _, i := range revealed {
		st.Revealed[i] = domain.TileStatus{IsRevealed: true}
		st.RevealedCount++
	}
	return st
}

type readResult struct {
	status *domain.GameStatus
	err    error
	gate   chan struct{}
}

// stubReader отвечает по сценарию: scripted[n] для n-го чтения, иначе status/err
type stubReader struct {
	mu       sync.Mutex
	calls    int
	status   *domain.GameStatus
	err      error
	scripted map[int]readResult
}

func (r *stubReader) ReadGameStatus(ctx context.Context, player common.Address) (*domain.GameStatus, error) {
	r.mu.Lock()
	n := r.calls
	r.calls++
	res, ok := r.scripted[n]
	if !ok {
		res = readResult{status: r.status, err: r.err}
	}
	r.mu.Unlock()

	if res.gate != nil {
		select {
		case <-res.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if res.err != nil {
		return nil, res.err
	}
	st := *res.status
	return &st, nil
}

func (r *stubReader) set(st *domain.GameStatus, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status, r.err = st, err
}

func (r *stubReader) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// memCache StatusCache в памяти
type memCache struct {
	mu    sync.Mutex
	snaps map[common.Address]domain.SyncSnapshot
}

func newMemCache() *memCache {
	return &memCache{snaps: make(map[common.Address]domain.SyncSnapshot)}
}

func (c *memCache) Get(ctx context.Context, address common.Address) (domain.SyncSnapshot, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.snaps[address]
	return s, ok, nil
}

func (c *memCache) Set(ctx context.Context, address common.Address, snap domain.SyncSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[address] = snap
	return nil
}

func (c *memCache) Delete(ctx context.Context, address common.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snaps, address)
	return nil
}

func (c *memCache) has(address common.Address) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.snaps[address]
	return ok
}
