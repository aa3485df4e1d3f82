package worker

import (
	"context"
	"time"

	"YONASettlement/internal/ledger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Run streams validated transactions for watched accounts until ctx is done, rotating to the
// next websocket endpoint after repeated failures.
func (w *Worker) Run(ctx context.Context) {
	if len(w.WSEndpoints) == 0 {
		w.logger().Warn("ws disabled: no ws_endpoints configured")
		return
	}
	threshold := w.WSFailoverThreshold
	if threshold <= 0 {
		threshold = 3
	}
	delay := w.ReconnectDelay
	if delay <= 0 {
		delay = 3 * time.Second
	}

	idx, failures := 0, 0
	for ctx.Err() == nil {
		endpoint := w.WSEndpoints[idx]
		if err := w.session(ctx, endpoint); err != nil && ctx.Err() == nil {
			failures++
			w.logger().Warn("ws session ended", zap.String("endpoint", endpoint), zap.Int("failures", failures), zap.Error(err))
			if failures >= threshold && len(w.WSEndpoints) > 1 {
				idx = (idx + 1) % len(w.WSEndpoints)
				failures = 0
				w.logger().Info("ws failover", zap.String("endpoint", w.WSEndpoints[idx]))
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (w *Worker) session(ctx context.Context, endpoint string) error {
	client := ledger.NewWSClient(endpoint)
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()
	w.logger().Info("ws connected", zap.String("endpoint", endpoint))

	accounts, err := w.Refresh(ctx)
	if err != nil {
		return err
	}
	if err := client.Subscribe(ctx, accounts); err != nil {
		return err
	}
	w.Backfill(ctx, accounts)

	g, gctx := errgroup.WithContext(ctx)
	msgs := make(chan []byte, 64)

	g.Go(func() error {
		defer close(msgs)
		for {
			msg, err := client.Read(gctx)
			if err != nil {
				return err
			}
			select {
			case msgs <- msg:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	g.Go(func() error {
		interval := w.RefreshInterval
		if interval <= 0 {
			interval = 15 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		current := accounts
		for {
			select {
			case <-gctx.Done():
				client.Close()
				return gctx.Err()
			case <-ticker.C:
				next, err := w.Refresh(gctx)
				if err != nil {
					w.logger().Warn("refresh watched intents failed", zap.Error(err))
					continue
				}
				added, removed := diff(current, next)
				if err := client.Subscribe(gctx, added); err != nil {
					return err
				}
				if err := client.Unsubscribe(gctx, removed); err != nil {
					return err
				}
				w.Backfill(gctx, added)
				current = next
			case msg, ok := <-msgs:
				if !ok {
					return nil
				}
				tx, isTx, err := ledger.ParseStreamTx(msg)
				if err != nil {
					w.logger().Warn("ws parse failed", zap.Error(err))
					continue
				}
				if isTx {
					w.Observe(gctx, *tx, "stream")
				}
			}
		}
	})

	return g.Wait()
}

// diff returns accounts present only in next (added) and only in current (removed).
func diff(current, next []string) (added, removed []string) {
	cur := make(map[string]struct{}, len(current))
	for _, a := range current {
		cur[a] = struct{}{}
	}
	nxt := make(map[string]struct{}, len(next))
	for _, a := range next {
		nxt[a] = struct{}{}
		if _, ok := cur[a]; !ok {
			added = append(added, a)
		}
	}
	for _, a := range current {
		if _, ok := nxt[a]; !ok {
			removed = append(removed, a)
		}
	}
	return added, removed
}
