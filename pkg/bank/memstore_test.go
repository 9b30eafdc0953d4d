package bank

import (
	"context"
	"sync"
	"time"

	"github.com/finvault/mybank/pkg/models"
	"github.com/finvault/mybank/pkg/storage"
)

// memStore is an in-memory AccountStore and TransferStore with the same
// compare-and-swap semantics as the DynamoDB implementation, so engine
// tests can exercise real contention.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	records  map[string]*models.TransferRecord

	// commitConflicts forces the next n transfer commits to lose their
	// version race, for contention tests.
	commitConflicts int
}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[string]*models.Account),
		records:  make(map[string]*models.TransferRecord),
	}
}

func (m *memStore) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return nil, storage.ErrAccountNotFound
	}
	copied := *acct
	return &copied, nil
}

func (m *memStore) CreateAccount(ctx context.Context, account *models.Account) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *account
	m.accounts[account.ID] = &copied
	return account, nil
}

func (m *memStore) UpdateBalance(ctx context.Context, id string, newBalance, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return storage.ErrAccountNotFound
	}
	if acct.Version != expectedVersion {
		return storage.ErrVersionConflict
	}
	acct.Balance = newBalance
	acct.Version++
	return nil
}

func (m *memStore) UpdateStatus(ctx context.Context, id string, status models.AccountStatus, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[id]
	if !ok {
		return storage.ErrAccountNotFound
	}
	if acct.Version != expectedVersion {
		return storage.ErrVersionConflict
	}
	acct.Status = status
	acct.Version++
	return nil
}

func (m *memStore) GetTransferRecord(ctx context.Context, key string) (*models.TransferRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[key]
	if !ok {
		return nil, storage.ErrRecordNotFound
	}
	copied := *record
	return &copied, nil
}

func (m *memStore) CreateTransferRecord(ctx context.Context, record *models.TransferRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[record.Key]; ok {
		return storage.ErrRecordExists
	}
	copied := *record
	m.records[record.Key] = &copied
	return nil
}

func (m *memStore) FinishTransferRecord(ctx context.Context, key string, status models.TransferStatus, completedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[key]
	if !ok {
		return storage.ErrRecordNotFound
	}
	if record.Status != models.PENDING {
		return storage.ErrRecordFinished
	}
	record.Status = status
	record.CompletedAt = &completedAt
	return nil
}

func (m *memStore) CommitTransfer(ctx context.Context, record *models.TransferRecord, from, to *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.commitConflicts > 0 {
		m.commitConflicts--
		return storage.ErrVersionConflict
	}

	storedFrom, ok := m.accounts[from.ID]
	if !ok {
		return storage.ErrAccountNotFound
	}
	storedTo, ok := m.accounts[to.ID]
	if !ok {
		return storage.ErrAccountNotFound
	}
	if storedFrom.Version != from.Version || storedTo.Version != to.Version {
		return storage.ErrVersionConflict
	}

	stored, ok := m.records[record.Key]
	if !ok {
		return storage.ErrRecordNotFound
	}
	if stored.Status != models.PENDING {
		return storage.ErrRecordFinished
	}

	storedFrom.Balance = from.Balance - record.Amount
	storedFrom.Version++
	storedTo.Balance = to.Balance + record.Amount
	storedTo.Version++

	completedAt := time.Now().UTC()
	stored.Status = models.COMPLETED
	stored.CompletedAt = &completedAt

	record.Status = models.COMPLETED
	record.CompletedAt = &completedAt
	return nil
}

func (m *memStore) GetStuckTransferRecords(ctx context.Context, maxAge time.Duration) ([]models.TransferRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	var stuck []models.TransferRecord
	for _, record := range m.records {
		if record.Status == models.PENDING && record.CreatedAt.Before(cutoff) {
			stuck = append(stuck, *record)
		}
	}
	return stuck, nil
}

// seedAccount inserts an account directly, bypassing validation.
func (m *memStore) seedAccount(id string, balance int64, status models.AccountStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accounts[id] = &models.Account{
		ID:        id,
		OwnerName: "Seeded Owner",
		Balance:   balance,
		Status:    status,
		Version:   1,
		CreatedAt: time.Now().UTC(),
	}
}

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu        sync.Mutex
	published []capturedEvent
	err       error
}

type capturedEvent struct {
	topic        string
	partitionKey string
	payload      any
}

func (p *capturePublisher) Publish(ctx context.Context, topic, partitionKey string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, capturedEvent{topic: topic, partitionKey: partitionKey, payload: payload})
	return nil
}

func (p *capturePublisher) events() []capturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]capturedEvent, len(p.published))
	copy(out, p.published)
	return out
}
