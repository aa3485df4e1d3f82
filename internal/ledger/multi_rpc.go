package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"YONASettlement/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var rpcFailovers = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "yona_ledger_rpc_failovers_total",
	Help: "Ledger endpoint rotations after failed calls",
}, []string{"endpoint"})

// MultiRPCClient rotates across ledger nodes when calls fail at the transport level.
type MultiRPCClient struct {
	clients       []*RPCClient
	index         int
	failCount     int
	failThreshold int
	mu            sync.Mutex
}

func NewMultiRPCClient(endpoints []string, failThreshold int, timeout time.Duration) (*MultiRPCClient, error) {
	list := sanitizeEndpoints(endpoints)
	if len(list) == 0 {
		return nil, errors.New("rpc endpoints is empty")
	}
	if failThreshold <= 0 {
		failThreshold = 3
	}
	clients := make([]*RPCClient, 0, len(list))
	for _, ep := range list {
		clients = append(clients, NewRPCClient(ep, timeout))
	}
	return &MultiRPCClient{
		clients:       clients,
		failThreshold: failThreshold,
	}, nil
}

func (m *MultiRPCClient) BaseURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients[m.index].baseURL
}

func (m *MultiRPCClient) BookOffers(ctx context.Context, pair models.BookPair, limit int) ([]models.Offer, error) {
	return withFailover(ctx, m, func(c *RPCClient) ([]models.Offer, error) {
		return c.BookOffers(ctx, pair, limit)
	})
}

func (m *MultiRPCClient) AccountInfo(ctx context.Context, account string) (*AccountInfo, error) {
	return withFailover(ctx, m, func(c *RPCClient) (*AccountInfo, error) {
		return c.AccountInfo(ctx, account)
	})
}

func (m *MultiRPCClient) Fee(ctx context.Context) (*FeeInfo, error) {
	return withFailover(ctx, m, func(c *RPCClient) (*FeeInfo, error) {
		return c.Fee(ctx)
	})
}

func (m *MultiRPCClient) LedgerCurrent(ctx context.Context) (uint32, error) {
	return withFailover(ctx, m, func(c *RPCClient) (uint32, error) {
		return c.LedgerCurrent(ctx)
	})
}

func (m *MultiRPCClient) Simulate(ctx context.Context, tx PaymentTx) (*SimulateResult, error) {
	return withFailover(ctx, m, func(c *RPCClient) (*SimulateResult, error) {
		return c.Simulate(ctx, tx)
	})
}

func (m *MultiRPCClient) Tx(ctx context.Context, hash string) (*models.LedgerTransaction, error) {
	return withFailover(ctx, m, func(c *RPCClient) (*models.LedgerTransaction, error) {
		return c.Tx(ctx, hash)
	})
}

func (m *MultiRPCClient) AccountTx(ctx context.Context, account string, limit int, marker json.RawMessage) (*AccountTxPage, error) {
	return withFailover(ctx, m, func(c *RPCClient) (*AccountTxPage, error) {
		return c.AccountTx(ctx, account, limit, marker)
	})
}

// withFailover retries transport failures on the next node. Errors reported by a
// node (RPCError) and context cancellation are returned as-is.
func withFailover[T any](ctx context.Context, m *MultiRPCClient, fn func(*RPCClient) (T, error)) (T, error) {
	m.mu.Lock()
	start := m.index
	m.mu.Unlock()

	var zero T
	var lastErr error
	for attempts := 0; attempts < len(m.clients); attempts++ {
		client, idx := m.currentClient()
		out, err := fn(client)
		if err == nil {
			m.resetFailures(idx)
			return out, nil
		}
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) || ctx.Err() != nil {
			return zero, err
		}
		lastErr = err
		m.noteFailure(idx)
		if m.shouldRotate() || len(m.clients) > 1 {
			m.rotate()
			rpcFailovers.WithLabelValues(client.baseURL).Inc()
		}
		if idx == start && attempts > 0 {
			break
		}
	}
	return zero, lastErr
}

func (m *MultiRPCClient) currentClient() (*RPCClient, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients[m.index], m.index
}

func (m *MultiRPCClient) resetFailures(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == idx {
		m.failCount = 0
	}
}

func (m *MultiRPCClient) noteFailure(idx int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index == idx {
		m.failCount++
	}
}

func (m *MultiRPCClient) shouldRotate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failCount >= m.failThreshold
}

func (m *MultiRPCClient) rotate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = (m.index + 1) % len(m.clients)
	m.failCount = 0
}

func sanitizeEndpoints(endpoints []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(endpoints))
	for _, ep := range endpoints {
		ep = strings.TrimSpace(ep)
		if ep == "" {
			continue
		}
		ep = strings.TrimRight(ep, "/")
		if _, ok := seen[ep]; ok {
			continue
		}
		seen[ep] = struct{}{}
		out = append(out, ep)
	}
	return out
}
