// Package enginetest provides in-memory test doubles for the lifecycle
// engine's collaborators: a Ledger with the same compare-and-set resolution
// semantics as the Postgres store, and a Sender that records every outbound
// message.
package enginetest

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/paymebot/payrelay/internal/domain"
	"github.com/paymebot/payrelay/internal/store"
	"github.com/paymebot/payrelay/internal/transport"
)

// Message is one recorded outbound delivery.
type Message struct {
	RecipientID int64
	Kind        transport.MediaKind
	Text        string
	MediaRef    string
	Caption     string
}

// Content returns the text or caption, whichever the kind carries.
func (m Message) Content() string {
	if m.Kind == transport.MediaText {
		return m.Text
	}
	return m.Caption
}

// Sender records outbound messages instead of delivering them.
type Sender struct {
	mu       sync.Mutex
	messages []Message
	Fail     error // when set, every send returns this error
}

func (s *Sender) SendMessage(ctx context.Context, recipientID int64, text string) error {
	return s.record(Message{RecipientID: recipientID, Kind: transport.MediaText, Text: text})
}

func (s *Sender) SendPhoto(ctx context.Context, recipientID int64, photoRef, caption string) error {
	return s.record(Message{RecipientID: recipientID, Kind: transport.MediaPhoto, MediaRef: photoRef, Caption: caption})
}

func (s *Sender) SendDocument(ctx context.Context, recipientID int64, documentRef, caption string) error {
	return s.record(Message{RecipientID: recipientID, Kind: transport.MediaDocument, MediaRef: documentRef, Caption: caption})
}

func (s *Sender) record(m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail != nil {
		return s.Fail
	}
	s.messages = append(s.messages, m)
	return nil
}

// Messages returns a copy of everything sent so far.
func (s *Sender) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// MessagesFor returns everything sent to one recipient.
func (s *Sender) MessagesFor(recipientID int64) []Message {
	var out []Message
	for _, m := range s.Messages() {
		if m.RecipientID == recipientID {
			out = append(out, m)
		}
	}
	return out
}

// LastFor returns the most recent message to a recipient, if any.
func (s *Sender) LastFor(recipientID int64) (Message, bool) {
	msgs := s.MessagesFor(recipientID)
	if len(msgs) == 0 {
		return Message{}, false
	}
	return msgs[len(msgs)-1], true
}

// ContainsFor reports whether any message to the recipient contains substr.
func (s *Sender) ContainsFor(recipientID int64, substr string) bool {
	for _, m := range s.MessagesFor(recipientID) {
		if strings.Contains(m.Content(), substr) {
			return true
		}
	}
	return false
}

// Reset clears the recording.
func (s *Sender) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}

// Ledger is an in-memory engine.Ledger. ResolveTransaction applies the same
// pending-only compare-and-set as the real store, under one mutex, so it is
// safe for concurrent resolution tests.
type Ledger struct {
	mu       sync.Mutex
	users    map[int64]*domain.User
	txs      map[int64]*domain.Transaction
	config   map[string]string
	nextTxID int64
	Err      error // when set, every operation fails with it
}

func NewLedger() *Ledger {
	return &Ledger{
		users:  make(map[int64]*domain.User),
		txs:    make(map[int64]*domain.Transaction),
		config: make(map[string]string),
	}
}

// AddUser installs a user directly, bypassing EnsureUser semantics.
func (l *Ledger) AddUser(u domain.User) {
	l.mu.Lock()
	defer l.mu.Unlock()
	copied := u
	l.users[u.ID] = &copied
}

// Transaction returns a stored transaction by id for assertions.
func (l *Ledger) Transaction(id int64) (domain.Transaction, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.txs[id]
	if !ok {
		return domain.Transaction{}, false
	}
	return *t, true
}

func (l *Ledger) EnsureUser(ctx context.Context, id int64, handle string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return l.Err
	}
	if _, ok := l.users[id]; !ok {
		l.users[id] = &domain.User{ID: id, Handle: handle, Balance: decimal.Zero}
	}
	return nil
}

func (l *Ledger) GetUser(ctx context.Context, id int64) (domain.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return domain.User{}, l.Err
	}
	u, ok := l.users[id]
	if !ok {
		return domain.User{}, store.ErrUserNotFound
	}
	return *u, nil
}

func (l *Ledger) GetBalance(ctx context.Context, id int64) (decimal.Decimal, error) {
	u, err := l.GetUser(ctx, id)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return u.Balance, nil
}

func (l *Ledger) SetBankName(ctx context.Context, id int64, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return l.Err
	}
	u, ok := l.users[id]
	if !ok {
		return store.ErrUserNotFound
	}
	u.BankName = name
	return nil
}

func (l *Ledger) SetAccountNumber(ctx context.Context, id int64, number string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return l.Err
	}
	u, ok := l.users[id]
	if !ok {
		return store.ErrUserNotFound
	}
	u.AccountNumber = number
	return nil
}

func (l *Ledger) CreateTransaction(ctx context.Context, userID int64, kind domain.Kind, amount decimal.NullDecimal) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return 0, l.Err
	}
	l.nextTxID++
	l.txs[l.nextTxID] = &domain.Transaction{
		ID:        l.nextTxID,
		UserID:    userID,
		Kind:      kind,
		Amount:    amount,
		Status:    domain.StatusPending,
		CreatedAt: time.Now(),
	}
	return l.nextTxID, nil
}

func (l *Ledger) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.TransactionDetail, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	var out []domain.TransactionDetail
	for _, t := range l.txs {
		if filter.UserID != 0 && t.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		d := domain.TransactionDetail{Transaction: *t}
		if u, ok := l.users[t.UserID]; ok {
			d.Handle = u.Handle
			d.BankName = u.BankName
			d.AccountNumber = u.AccountNumber
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (l *Ledger) ResolveTransaction(ctx context.Context, id int64, outcome domain.Outcome) (domain.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return domain.Transaction{}, l.Err
	}
	t, ok := l.txs[id]
	if !ok {
		return domain.Transaction{}, store.ErrNotFound
	}
	if t.Status != domain.StatusPending {
		return domain.Transaction{}, store.ErrAlreadyResolved
	}
	switch outcome.Status {
	case domain.StatusApproved:
		t.Status = domain.StatusApproved
		t.Amount = decimal.NewNullDecimal(outcome.Amount)
		if u, ok := l.users[t.UserID]; ok {
			if t.Kind == domain.KindWithdraw {
				u.Balance = u.Balance.Sub(outcome.Amount)
			} else {
				u.Balance = u.Balance.Add(outcome.Amount)
			}
		}
	case domain.StatusRejected:
		t.Status = domain.StatusRejected
		t.Reason = outcome.Reason
	}
	return *t, nil
}

func (l *Ledger) ConfigValue(ctx context.Context, key string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return "", l.Err
	}
	v, ok := l.config[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (l *Ledger) SetConfigValue(ctx context.Context, key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return l.Err
	}
	l.config[key] = value
	return nil
}

func (l *Ledger) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return domain.DashboardStats{}, l.Err
	}
	stats := domain.DashboardStats{TotalBalance: decimal.Zero}
	for _, u := range l.users {
		stats.TotalUsers++
		if u.HasBankDetails() {
			stats.UsersWithBankDetails++
		}
		stats.TotalBalance = stats.TotalBalance.Add(u.Balance)
	}
	for _, t := range l.txs {
		switch {
		case t.Status == domain.StatusPending:
			stats.PendingTransactions++
		case t.Status == domain.StatusApproved && t.Kind == domain.KindDeposit:
			stats.ApprovedDeposits++
		case t.Status == domain.StatusApproved && t.Kind == domain.KindWithdraw:
			stats.ApprovedWithdrawals++
		}
	}
	return stats, nil
}
