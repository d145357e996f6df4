package usecases

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/sand/wallet-transactions/backend/internal/core/ports"
	"github.com/sand/wallet-transactions/backend/internal/entities"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type adapterCall struct {
	Method     string
	Storage    ports.Storage
	AccountID  string
	Slug       string
	BeforeTxID string
	AfterTxID  string
	Limit      int
	LastTxIDs  entities.TxIDBySlug
	Password   string
	ToAddress  string
	Amount     string
	Comment    string
}

// MockAdapter records every call and answers with canned values.
type MockAdapter struct {
	mu    sync.Mutex
	calls []adapterCall

	Transactions []entities.Transaction
	Draft        *entities.DraftCheckResult
	Address      string
	SubmitResult *entities.SubmitTransferResult
	Err          error
	SubmitErr    error
	Derived      map[string]string
	NetworkName  string
}

var _ ports.BlockchainAdapter = (*MockAdapter)(nil)

func (m *MockAdapter) record(call adapterCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *MockAdapter) Calls() []adapterCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]adapterCall(nil), m.calls...)
}

func (m *MockAdapter) GetAccountTransactionSlice(_ context.Context, storage ports.Storage, accountID string) ([]entities.Transaction, error) {
	m.record(adapterCall{Method: "GetAccountTransactionSlice", Storage: storage, AccountID: accountID})
	return m.Transactions, m.Err
}

func (m *MockAdapter) GetTokenTransactionSlice(_ context.Context, storage ports.Storage, accountID, slug, beforeTxID, afterTxID string, limit int) ([]entities.Transaction, error) {
	m.record(adapterCall{
		Method:     "GetTokenTransactionSlice",
		Storage:    storage,
		AccountID:  accountID,
		Slug:       slug,
		BeforeTxID: beforeTxID,
		AfterTxID:  afterTxID,
		Limit:      limit,
	})
	return m.Transactions, m.Err
}

func (m *MockAdapter) GetMergedTransactionSlice(_ context.Context, storage ports.Storage, accountID string, lastTxIDs entities.TxIDBySlug, limit int) ([]entities.Transaction, error) {
	m.record(adapterCall{Method: "GetMergedTransactionSlice", Storage: storage, AccountID: accountID, LastTxIDs: lastTxIDs, Limit: limit})
	return m.Transactions, m.Err
}

func (m *MockAdapter) CheckTransactionDraft(_ context.Context, storage ports.Storage, accountID, slug, toAddress, amount, comment string) (*entities.DraftCheckResult, error) {
	m.record(adapterCall{
		Method:    "CheckTransactionDraft",
		Storage:   storage,
		AccountID: accountID,
		Slug:      slug,
		ToAddress: toAddress,
		Amount:    amount,
		Comment:   comment,
	})
	return m.Draft, m.Err
}

func (m *MockAdapter) FetchAddress(_ context.Context, storage ports.Storage, accountID string) (string, error) {
	m.record(adapterCall{Method: "FetchAddress", Storage: storage, AccountID: accountID})
	return m.Address, m.Err
}

func (m *MockAdapter) SubmitTransfer(_ context.Context, storage ports.Storage, accountID, password, slug, toAddress, amount, comment string) (*entities.SubmitTransferResult, error) {
	m.record(adapterCall{
		Method:    "SubmitTransfer",
		Storage:   storage,
		AccountID: accountID,
		Password:  password,
		Slug:      slug,
		ToAddress: toAddress,
		Amount:    amount,
		Comment:   comment,
	})
	return m.SubmitResult, m.SubmitErr
}

func (m *MockAdapter) AddressFromMnemonic(mnemonic string) (string, error) {
	return m.Derived[mnemonic], nil
}

func (m *MockAdapter) Network() string {
	return m.NetworkName
}

// MockStorage is an in-memory ports.Storage.
type MockStorage struct {
	mu        sync.Mutex
	accounts  map[string]*entities.Account
	nextIndex int
}

func NewMockStorage() *MockStorage {
	return &MockStorage{accounts: make(map[string]*entities.Account)}
}

func (s *MockStorage) GetAccount(_ context.Context, accountID string) (*entities.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[accountID], nil
}

func (s *MockStorage) ListAccounts(_ context.Context, blockchain entities.BlockchainKey) ([]entities.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var accounts []entities.Account
	for _, account := range s.accounts {
		if account.Blockchain == blockchain {
			accounts = append(accounts, *account)
		}
	}
	return accounts, nil
}

func (s *MockStorage) InsertAccount(_ context.Context, account *entities.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.accounts {
		if existing.Blockchain == account.Blockchain && existing.Network == account.Network && existing.Address == account.Address {
			return entities.ErrAccountExists
		}
	}
	s.accounts[account.ID] = account
	return nil
}

func (s *MockStorage) SaveTransactions(context.Context, string, []entities.Transaction) error {
	return nil
}

func (s *MockStorage) FindTransactions(context.Context, entities.TransactionQuery) ([]entities.Transaction, error) {
	return nil, nil
}

func (s *MockStorage) NextAccountIndex(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := s.nextIndex
	s.nextIndex++
	return index, nil
}

// MockPublisher collects published updates.
type MockPublisher struct {
	mu      sync.Mutex
	updates []entities.Update
	signal  chan struct{}
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{signal: make(chan struct{}, 16)}
}

func (p *MockPublisher) Publish(update entities.Update) {
	p.mu.Lock()
	p.updates = append(p.updates, update)
	p.mu.Unlock()
	p.signal <- struct{}{}
}

func (p *MockPublisher) Updates() []entities.Update {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]entities.Update(nil), p.updates...)
}

// MockWatcher resolves a watch with whatever is sent on Complete.
type MockWatcher struct {
	Complete chan string
	Started  chan [2]string
	Origins  chan transferOrigin
}

func NewMockWatcher() *MockWatcher {
	return &MockWatcher{
		Complete: make(chan string, 1),
		Started:  make(chan [2]string, 1),
		Origins:  make(chan transferOrigin, 1),
	}
}

func (w *MockWatcher) WhenTxComplete(ctx context.Context, address, amount string) (string, error) {
	select {
	case w.Origins <- transferOriginFrom(ctx):
	default:
	}
	w.Started <- [2]string{address, amount}
	select {
	case txID := <-w.Complete:
		return txID, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
