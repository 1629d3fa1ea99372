package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/paymebot/payrelay/internal/domain"
)

func (s *Store) CreateTransaction(ctx context.Context, userID int64, kind domain.Kind, amount decimal.NullDecimal) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `
		INSERT INTO transactions (user_id, kind, amount, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING id
	`, userID, kind, amount).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create %s transaction for user %d: %w", kind, userID, err)
	}
	return id, nil
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (domain.Transaction, error) {
	var t domain.Transaction
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, kind, amount, status, COALESCE(reason, ''), created_at
		FROM transactions WHERE id = $1
	`, id).Scan(&t.ID, &t.UserID, &t.Kind, &t.Amount, &t.Status, &t.Reason, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Transaction{}, ErrNotFound
		}
		return domain.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return t, nil
}

// ListTransactions returns transactions joined with owner profile fields,
// newest first.
func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.TransactionDetail, error) {
	query := `
		SELECT t.id, t.user_id, t.kind, t.amount, t.status, COALESCE(t.reason, ''), t.created_at,
		       COALESCE(u.handle, ''), COALESCE(u.bank_name, ''), COALESCE(u.account_number, '')
		FROM transactions t
		JOIN users u ON t.user_id = u.id
	`
	var args []any
	var conds []string
	if filter.UserID != 0 {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("t.user_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("t.status = $%d", len(args)))
	}
	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY t.created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.TransactionDetail
	for rows.Next() {
		var d domain.TransactionDetail
		if err := rows.Scan(
			&d.ID, &d.UserID, &d.Kind, &d.Amount, &d.Status, &d.Reason, &d.CreatedAt,
			&d.Handle, &d.BankName, &d.AccountNumber,
		); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ResolveTransaction applies the terminal state transition and, for approvals,
// the balance delta as one database transaction. The status update is
// conditional on the row still being pending, so concurrent resolutions settle
// exactly once: the loser gets ErrAlreadyResolved and mutates nothing.
func (s *Store) ResolveTransaction(ctx context.Context, id int64, outcome domain.Outcome) (domain.Transaction, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	var t domain.Transaction
	switch outcome.Status {
	case domain.StatusApproved:
		err = tx.QueryRow(ctx, `
			UPDATE transactions SET status = 'approved', amount = $2
			WHERE id = $1 AND status = 'pending'
			RETURNING id, user_id, kind, amount, status, COALESCE(reason, ''), created_at
		`, id, outcome.Amount).Scan(&t.ID, &t.UserID, &t.Kind, &t.Amount, &t.Status, &t.Reason, &t.CreatedAt)
	case domain.StatusRejected:
		err = tx.QueryRow(ctx, `
			UPDATE transactions SET status = 'rejected', reason = $2
			WHERE id = $1 AND status = 'pending'
			RETURNING id, user_id, kind, amount, status, COALESCE(reason, ''), created_at
		`, id, outcome.Reason).Scan(&t.ID, &t.UserID, &t.Kind, &t.Amount, &t.Status, &t.Reason, &t.CreatedAt)
	default:
		return domain.Transaction{}, fmt.Errorf("invalid outcome status %q", outcome.Status)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		// The conditional update missed: either the row does not exist or it
		// already left pending. Re-read under the same transaction to tell.
		var status string
		serr := tx.QueryRow(ctx, "SELECT status FROM transactions WHERE id = $1", id).Scan(&status)
		if errors.Is(serr, pgx.ErrNoRows) {
			return domain.Transaction{}, ErrNotFound
		}
		if serr != nil {
			return domain.Transaction{}, fmt.Errorf("resolve status check %d: %w", id, serr)
		}
		return domain.Transaction{}, ErrAlreadyResolved
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("resolve transaction %d: %w", id, err)
	}

	if outcome.Status == domain.StatusApproved {
		query := "UPDATE users SET balance = balance + $1 WHERE id = $2"
		if t.Kind == domain.KindWithdraw {
			query = "UPDATE users SET balance = balance - $1 WHERE id = $2"
		}
		if _, err := tx.Exec(ctx, query, outcome.Amount, t.UserID); err != nil {
			return domain.Transaction{}, fmt.Errorf("balance update for transaction %d: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Transaction{}, fmt.Errorf("tx commit failed: %w", err)
	}
	return t, nil
}

// DashboardStats gathers the approver dashboard aggregates. The two queries
// run outside a shared snapshot.
func (s *Store) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	var stats domain.DashboardStats
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE bank_name IS NOT NULL AND account_number IS NOT NULL),
		       COALESCE(SUM(balance), 0)
		FROM users
	`).Scan(&stats.TotalUsers, &stats.UsersWithBankDetails, &stats.TotalBalance)
	if err != nil {
		return domain.DashboardStats{}, fmt.Errorf("user stats: %w", err)
	}

	err = s.db.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE kind = 'deposit' AND status = 'approved'),
		       COUNT(*) FILTER (WHERE kind = 'withdraw' AND status = 'approved'),
		       COUNT(*) FILTER (WHERE status = 'pending')
		FROM transactions
	`).Scan(&stats.ApprovedDeposits, &stats.ApprovedWithdrawals, &stats.PendingTransactions)
	if err != nil {
		return domain.DashboardStats{}, fmt.Errorf("transaction stats: %w", err)
	}
	return stats, nil
}
