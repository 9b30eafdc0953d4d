package storage

// Storage composes the full data layer. Components should depend on the
// granular interfaces (AccountStore, TransferStore, ReconStore) instead of
// this one; the composition exists for wiring in the mains.
type Storage interface {
	AccountStore
	TransferStore
	ReconStore
	LedgerReader
}
