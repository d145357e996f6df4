package blockchains

import (
	"context"
	"slices"
	"sort"

	"golang.org/x/exp/maps"

	"github.com/sand/wallet-transactions/backend/internal/core/ports"
	"github.com/sand/wallet-transactions/backend/internal/entities"
)

// SliceFetcher loads up to limit transactions of slug older than beforeTxID.
type SliceFetcher func(ctx context.Context, slug, beforeTxID string, limit int) ([]entities.Transaction, error)

// ClampLimit applies the default page size and the upper bound.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return ports.DefaultSliceLimit
	}
	if limit > ports.MaxSliceLimit {
		return ports.MaxSliceLimit
	}
	return limit
}

// SortTransactions orders newest first, tx id breaking ties.
func SortTransactions(txs []entities.Transaction) {
	slices.SortStableFunc(txs, func(a, b entities.Transaction) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		switch {
		case a.TxID > b.TxID:
			return -1
		case a.TxID < b.TxID:
			return 1
		}
		return 0
	})
}

// MergeTransactionSlices pages every asset from its own cursor and merges the
// pages into one, newest first. Slugs of defaultSlugs without a cursor in
// lastTxIDs are paged from the top, since none of their transactions made it
// into an earlier page.
func MergeTransactionSlices(
	ctx context.Context,
	lastTxIDs entities.TxIDBySlug,
	defaultSlugs []string,
	limit int,
	fetch SliceFetcher,
) ([]entities.Transaction, error) {
	limit = ClampLimit(limit)

	cursors := make(entities.TxIDBySlug, len(defaultSlugs)+len(lastTxIDs))
	for _, slug := range defaultSlugs {
		cursors[slug] = ""
	}
	for slug, txID := range lastTxIDs {
		cursors[slug] = txID
	}

	slugs := maps.Keys(cursors)
	sort.Strings(slugs)

	merged := make([]entities.Transaction, 0, limit)
	for _, slug := range slugs {
		txs, err := fetch(ctx, slug, cursors[slug], limit)
		if err != nil {
			return nil, err
		}
		merged = append(merged, txs...)
	}

	SortTransactions(merged)

	if len(merged) > limit {
		merged = merged[:limit]
	}

	return merged, nil
}
