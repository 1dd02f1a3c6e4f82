package ledger

import "context"

// Repository is the persistence boundary for the ledger. The contract is
// load-all / save-all: an ingestion run reads the full set, merges, and
// rewrites it atomically. The full rewrite is an implementation detail of
// the store, not something callers sequence themselves.
type Repository interface {
	// LoadAll returns every entry, month totals included, in time order.
	LoadAll(ctx context.Context) ([]Entry, error)

	// SaveAll replaces the stored set with entries in one transaction.
	SaveAll(ctx context.Context, entries []Entry) error

	// AppendCorrection appends one record to the correction history.
	AppendCorrection(ctx context.Context, rec CorrectionRecord) error

	// ListCorrections returns the correction history, oldest first.
	ListCorrections(ctx context.Context) ([]CorrectionRecord, error)

	Close() error
}
