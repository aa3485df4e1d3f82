// Package assets resolves the issuing account of a currency from the member directory.
package assets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"YONASettlement/internal/currency"

	"go.uber.org/zap"
)

var ErrIssuerNotFound = errors.New("issuer not found")

type Directory interface {
	IssuerForCurrency(ctx context.Context, code, memberID string) (string, error)
}

type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

type Resolver struct {
	Directory Directory
	Cache     Cache
	Logger    *zap.Logger
}

func NewResolver(dir Directory, cache Cache, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{Directory: dir, Cache: cache, Logger: logger}
}

// IssuerFor returns the issuer of code as listed by memberID, or by any member when memberID
// is empty. XRP has no issuer.
func (r *Resolver) IssuerFor(ctx context.Context, code, memberID string) (string, error) {
	if currency.Equal(code, currency.Native) {
		return "", nil
	}
	key := cacheKey(code, memberID)
	if r.Cache != nil {
		issuer, ok, err := r.Cache.Get(ctx, key)
		if err != nil {
			r.Logger.Warn("issuer cache read failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			return issuer, nil
		}
	}

	issuer, err := r.Directory.IssuerForCurrency(ctx, code, memberID)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrIssuerNotFound, code, err)
	}
	if issuer == "" {
		return "", fmt.Errorf("%w: %s", ErrIssuerNotFound, code)
	}

	if r.Cache != nil {
		if err := r.Cache.Set(ctx, key, issuer); err != nil {
			r.Logger.Warn("issuer cache write failed", zap.String("key", key), zap.Error(err))
		}
	}
	return issuer, nil
}

func cacheKey(code, memberID string) string {
	if memberID == "" {
		memberID = "*"
	}
	return memberID + ":" + strings.ToUpper(code)
}
