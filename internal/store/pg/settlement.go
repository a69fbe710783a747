package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"komir.org/internal/settlement"
)

const payableColumns = `id, client_id, site_id, date, coalesce(description,''), total_amount, remaining_balance, status, coalesce(proof,'{}'), coalesce(created_by,0), coalesce(modified_by,0), created_at, updated_at`

const receivableColumns = `id, client_id, site_id, date, coalesce(description,''), total_amount, remaining_balance, status, coalesce(created_by,0), coalesce(modified_by,0), created_at, updated_at`

const paymentColumns = `id, reference, client_id, site_id, payment_type, amount, payment_date, coalesce(payment_method,''), coalesce(proof,'{}'), coalesce(received_by,''), coalesce(notes,''), payable_id, receivable_id, coalesce(created_by,0), created_at`

// querier is satisfied by both *sql.DB and *sql.Tx so the row-mutating
// helpers can run inside a caller's transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanPayable(row interface{ Scan(...any) error }) (settlement.Payable, error) {
	var p settlement.Payable
	err := row.Scan(&p.ID, &p.ClientID, &p.SiteID, &p.Date, &p.Description,
		&p.TotalAmount, &p.RemainingBalance, &p.Status, pq.Array(&p.Proof),
		&p.CreatedBy, &p.ModifiedBy, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func scanReceivable(row interface{ Scan(...any) error }) (settlement.Receivable, error) {
	var r settlement.Receivable
	err := row.Scan(&r.ID, &r.ClientID, &r.SiteID, &r.Date, &r.Description,
		&r.TotalAmount, &r.RemainingBalance, &r.Status,
		&r.CreatedBy, &r.ModifiedBy, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func scanPayment(row interface{ Scan(...any) error }) (settlement.Payment, error) {
	var (
		p          settlement.Payment
		payable    sql.NullInt64
		receivable sql.NullInt64
	)
	err := row.Scan(&p.ID, &p.Reference, &p.ClientID, &p.SiteID, &p.Type, &p.Amount,
		&p.PaymentDate, &p.Method, pq.Array(&p.Proof), &p.ReceivedBy, &p.Notes,
		&payable, &receivable, &p.CreatedBy, &p.CreatedAt)
	if payable.Valid {
		p.PayableID = &payable.Int64
	}
	if receivable.Valid {
		p.ReceivableID = &receivable.Int64
	}
	return p, err
}

func (s *Store) CreatePayable(ctx context.Context, in settlement.CreatePayableInput, actorID int64) (settlement.Payable, error) {
	if !in.TotalAmount.IsPositive() {
		return settlement.Payable{}, settlement.ErrInvalidAmount
	}
	row := s.db.QueryRowContext(ctx, `
		insert into payables(client_id, site_id, date, description, total_amount, remaining_balance, status, proof, created_by, modified_by)
		values ($1,$2,$3,nullif($4,''),$5,$5,$6,$7,$8,$8)
		returning `+payableColumns,
		in.ClientID, in.SiteID, in.Date, in.Description, in.TotalAmount,
		settlement.PayableActive, pq.Array(in.Proof), actorID)
	p, err := scanPayable(row)
	if err != nil {
		return settlement.Payable{}, translateErr(err)
	}
	return p, nil
}

func (s *Store) CreateReceivable(ctx context.Context, in settlement.CreateReceivableInput, actorID int64) (settlement.Receivable, error) {
	if !in.TotalAmount.IsPositive() {
		return settlement.Receivable{}, settlement.ErrInvalidAmount
	}
	r, err := insertReceivable(ctx, s.db, in, actorID)
	if err != nil {
		return settlement.Receivable{}, translateErr(err)
	}
	return r, nil
}

func insertReceivable(ctx context.Context, q querier, in settlement.CreateReceivableInput, actorID int64) (settlement.Receivable, error) {
	row := q.QueryRowContext(ctx, `
		insert into receivables(client_id, site_id, date, description, total_amount, remaining_balance, status, created_by, modified_by)
		values ($1,$2,$3,nullif($4,''),$5,$5,$6,$7,$7)
		returning `+receivableColumns,
		in.ClientID, in.SiteID, in.Date, in.Description, in.TotalAmount,
		settlement.ReceivablePending, actorID)
	return scanReceivable(row)
}

func (s *Store) GetPayable(ctx context.Context, id int64) (settlement.Payable, error) {
	p, err := scanPayable(s.db.QueryRowContext(ctx,
		`select `+payableColumns+` from payables where id=$1`, id))
	if err != nil {
		return settlement.Payable{}, translateErr(err)
	}
	return p, nil
}

func (s *Store) GetReceivable(ctx context.Context, id int64) (settlement.Receivable, error) {
	r, err := scanReceivable(s.db.QueryRowContext(ctx,
		`select `+receivableColumns+` from receivables where id=$1`, id))
	if err != nil {
		return settlement.Receivable{}, translateErr(err)
	}
	return r, nil
}

func (s *Store) ListPayables(ctx context.Context, f settlement.PayableFilter) ([]settlement.Payable, error) {
	var (
		where []string
		args  []any
	)
	if f.ClientID != 0 {
		args = append(args, f.ClientID)
		where = append(where, fmt.Sprintf("client_id=$%d", len(args)))
	}
	if f.SiteID != 0 {
		args = append(args, f.SiteID)
		where = append(where, fmt.Sprintf("site_id=$%d", len(args)))
	}
	order := "order by date desc, id desc"
	if f.OpenOnly {
		args = append(args, settlement.PayableFullyUsed)
		where = append(where, fmt.Sprintf("status <> $%d", len(args)))
		// Drawdown consumes the oldest credit first.
		order = "order by date asc, id asc"
	}
	query := `select ` + payableColumns + ` from payables`
	if len(where) > 0 {
		query += " where " + strings.Join(where, " and ")
	}
	query += " " + order

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var res []settlement.Payable
	for rows.Next() {
		p, err := scanPayable(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *Store) ListReceivables(ctx context.Context, f settlement.ReceivableFilter) ([]settlement.Receivable, error) {
	var (
		where []string
		args  []any
	)
	if f.ClientID != 0 {
		args = append(args, f.ClientID)
		where = append(where, fmt.Sprintf("client_id=$%d", len(args)))
	}
	if f.SiteID != 0 {
		args = append(args, f.SiteID)
		where = append(where, fmt.Sprintf("site_id=$%d", len(args)))
	}
	if f.PendingOnly {
		args = append(args, settlement.ReceivableFullyPaid)
		where = append(where, fmt.Sprintf("status <> $%d", len(args)))
	}
	query := `select ` + receivableColumns + ` from receivables`
	if len(where) > 0 {
		query += " where " + strings.Join(where, " and ")
	}
	query += " order by date desc, id desc"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var res []settlement.Receivable
	for rows.Next() {
		r, err := scanReceivable(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// applyDeduction locks the payable row, validates the amount against the
// live balance, and writes the new balance and derived status. It runs on
// the caller's transaction so a payment or income insert in the same call
// commits or rolls back together with the balance change.
func applyDeduction(ctx context.Context, q querier, payableID int64, amount decimal.Decimal, actorID int64) (settlement.Payable, error) {
	if !amount.IsPositive() {
		return settlement.Payable{}, settlement.ErrInvalidAmount
	}
	p, err := scanPayable(q.QueryRowContext(ctx,
		`select `+payableColumns+` from payables where id=$1 for update`, payableID))
	if err != nil {
		return settlement.Payable{}, translateErr(err)
	}
	if amount.GreaterThan(p.RemainingBalance) {
		return settlement.Payable{}, &settlement.InsufficientBalanceError{
			Kind:      "payable",
			ID:        payableID,
			Requested: amount,
			Available: p.RemainingBalance,
		}
	}
	p.RemainingBalance = p.RemainingBalance.Sub(amount)
	p.Status = settlement.PayableStatusFor(p.RemainingBalance, p.TotalAmount)
	p.ModifiedBy = actorID
	err = q.QueryRowContext(ctx, `
		update payables set remaining_balance=$2, status=$3, modified_by=$4, updated_at=now()
		where id=$1 returning updated_at`,
		payableID, p.RemainingBalance, p.Status, actorID).Scan(&p.UpdatedAt)
	if err != nil {
		return settlement.Payable{}, translateErr(err)
	}
	return p, nil
}

func applyPayment(ctx context.Context, q querier, receivableID int64, amount decimal.Decimal, actorID int64) (settlement.Receivable, error) {
	if !amount.IsPositive() {
		return settlement.Receivable{}, settlement.ErrInvalidAmount
	}
	r, err := scanReceivable(q.QueryRowContext(ctx,
		`select `+receivableColumns+` from receivables where id=$1 for update`, receivableID))
	if err != nil {
		return settlement.Receivable{}, translateErr(err)
	}
	if amount.GreaterThan(r.RemainingBalance) {
		return settlement.Receivable{}, &settlement.InsufficientBalanceError{
			Kind:      "receivable",
			ID:        receivableID,
			Requested: amount,
			Available: r.RemainingBalance,
		}
	}
	r.RemainingBalance = r.RemainingBalance.Sub(amount)
	r.Status = settlement.ReceivableStatusFor(r.RemainingBalance, r.TotalAmount)
	r.ModifiedBy = actorID
	err = q.QueryRowContext(ctx, `
		update receivables set remaining_balance=$2, status=$3, modified_by=$4, updated_at=now()
		where id=$1 returning updated_at`,
		receivableID, r.RemainingBalance, r.Status, actorID).Scan(&r.UpdatedAt)
	if err != nil {
		return settlement.Receivable{}, translateErr(err)
	}
	return r, nil
}

func (s *Store) ApplyDeduction(ctx context.Context, payableID int64, amount decimal.Decimal, actorID int64) (settlement.Payable, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return settlement.Payable{}, err
	}
	defer func() { _ = tx.Rollback() }()

	p, err := applyDeduction(ctx, tx, payableID, amount, actorID)
	if err != nil {
		return settlement.Payable{}, err
	}
	if err := tx.Commit(); err != nil {
		return settlement.Payable{}, translateErr(err)
	}
	return p, nil
}

func (s *Store) ApplyPayment(ctx context.Context, receivableID int64, amount decimal.Decimal, actorID int64) (settlement.Receivable, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return settlement.Receivable{}, err
	}
	defer func() { _ = tx.Rollback() }()

	r, err := applyPayment(ctx, tx, receivableID, amount, actorID)
	if err != nil {
		return settlement.Receivable{}, err
	}
	if err := tx.Commit(); err != nil {
		return settlement.Receivable{}, translateErr(err)
	}
	return r, nil
}

func (s *Store) RecordPayment(ctx context.Context, in settlement.RecordPaymentInput, actorID int64) (settlement.Payment, error) {
	if err := in.Validate(); err != nil {
		return settlement.Payment{}, err
	}
	tx, err := s.begin(ctx)
	if err != nil {
		return settlement.Payment{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// Step (a): balance mutation under the row lock. If it fails, the
	// rollback above guarantees no payment row is written.
	switch in.Type {
	case settlement.PaymentPayableDeduction:
		if _, err := applyDeduction(ctx, tx, *in.PayableID, in.Amount, actorID); err != nil {
			return settlement.Payment{}, err
		}
	case settlement.PaymentReceivablePayment:
		if _, err := applyPayment(ctx, tx, *in.ReceivableID, in.Amount, actorID); err != nil {
			return settlement.Payment{}, err
		}
	}

	row := tx.QueryRowContext(ctx, `
		insert into payments(reference, client_id, site_id, payment_type, amount, payment_date, payment_method, proof, received_by, notes, payable_id, receivable_id, created_by)
		values ($1,$2,$3,$4,$5,$6,nullif($7,''),$8,nullif($9,''),nullif($10,''),$11,$12,$13)
		returning `+paymentColumns,
		uuid.NewString(), in.ClientID, in.SiteID, in.Type, in.Amount, in.PaymentDate,
		in.Method, pq.Array(in.Proof), in.ReceivedBy, in.Notes,
		in.PayableID, in.ReceivableID, actorID)
	p, err := scanPayment(row)
	if err != nil {
		return settlement.Payment{}, translateErr(err)
	}
	if err := tx.Commit(); err != nil {
		return settlement.Payment{}, translateErr(err)
	}
	return p, nil
}

func (s *Store) GetPayment(ctx context.Context, id int64) (settlement.Payment, error) {
	p, err := scanPayment(s.db.QueryRowContext(ctx,
		`select `+paymentColumns+` from payments where id=$1`, id))
	if err != nil {
		return settlement.Payment{}, translateErr(err)
	}
	return p, nil
}

func (s *Store) ListPayments(ctx context.Context, f settlement.PaymentFilter) ([]settlement.Payment, error) {
	var (
		where []string
		args  []any
	)
	if f.ClientID != 0 {
		args = append(args, f.ClientID)
		where = append(where, fmt.Sprintf("client_id=$%d", len(args)))
	}
	if f.SiteID != 0 {
		args = append(args, f.SiteID)
		where = append(where, fmt.Sprintf("site_id=$%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		where = append(where, fmt.Sprintf("payment_type=$%d", len(args)))
	}
	if f.PayableID != 0 {
		args = append(args, f.PayableID)
		where = append(where, fmt.Sprintf("payable_id=$%d", len(args)))
	}
	if f.ReceivableID != 0 {
		args = append(args, f.ReceivableID)
		where = append(where, fmt.Sprintf("receivable_id=$%d", len(args)))
	}
	query := `select ` + paymentColumns + ` from payments`
	if len(where) > 0 {
		query += " where " + strings.Join(where, " and ")
	}
	query += " order by payment_date desc, id desc"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var res []settlement.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *Store) DeletePayable(ctx context.Context, id int64) error {
	return s.deleteLedgerRecord(ctx, "payables", "payable_id", id)
}

func (s *Store) DeleteReceivable(ctx context.Context, id int64) error {
	return s.deleteLedgerRecord(ctx, "receivables", "receivable_id", id)
}

// deleteLedgerRecord is administrative removal; a record that payments or
// income postings already reference stays put.
func (s *Store) deleteLedgerRecord(ctx context.Context, table, fk string, id int64) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, src := range []string{"payments", "income"} {
		var refs int
		if err := tx.QueryRowContext(ctx,
			fmt.Sprintf(`select count(*) from %s where %s=$1`, src, fk), id).Scan(&refs); err != nil {
			return translateErr(err)
		}
		if refs > 0 {
			return settlement.ErrConflict
		}
	}
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`delete from %s where id=$1`, table), id)
	if err != nil {
		// A foreign key violation here means a reference landed after the
		// counts above; that is a conflict, not a missing record.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return settlement.ErrConflict
		}
		return translateErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return settlement.ErrNotFound
	}
	return translateErr(tx.Commit())
}
