package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"komir.org/internal/income"
	"komir.org/internal/settlement"
)

var _ income.Service = (*Store)(nil)

const incomeColumns = `id, site_id, client_id, truck_number, loading_date, coalesce(driver_name,''), coalesce(driver_phone,''), coalesce(buyer_name,''), coalesce(vehicle_number,''), coalesce(quantity_tons,0), coalesce(coal_price,0), gross_amount, coalesce(commission,0), coalesce(amount_from_payable,0), coalesce(amount_cash,0), payable_id, receivable_id, status, coalesce(evidence_photos,'{}'), coalesce(description,''), coalesce(notes,''), coalesce(created_by,0), coalesce(modified_by,0), created_at, updated_at`

func scanIncome(row interface{ Scan(...any) error }) (income.Income, error) {
	var (
		inc        income.Income
		client     sql.NullInt64
		payable    sql.NullInt64
		receivable sql.NullInt64
	)
	err := row.Scan(&inc.ID, &inc.SiteID, &client, &inc.TruckNumber, &inc.LoadingDate,
		&inc.DriverName, &inc.DriverPhone, &inc.BuyerName, &inc.VehicleNumber,
		&inc.QuantityTons, &inc.CoalPrice, &inc.GrossAmount, &inc.Commission,
		&inc.AmountFromPayable, &inc.AmountCash, &payable, &receivable, &inc.Status,
		pq.Array(&inc.EvidencePhotos), &inc.Description, &inc.Notes,
		&inc.CreatedBy, &inc.ModifiedBy, &inc.CreatedAt, &inc.UpdatedAt)
	if client.Valid {
		inc.ClientID = &client.Int64
	}
	if payable.Valid {
		inc.PayableID = &payable.Int64
	}
	if receivable.Valid {
		inc.ReceivableID = &receivable.Int64
	}
	return inc, err
}

// PostIncome runs the whole posting as one transaction: payable drawdown,
// income insert, and the shortfall receivable commit together or not at
// all.
func (s *Store) PostIncome(ctx context.Context, in income.PostIncomeInput, actorID int64) (income.View, error) {
	if err := in.Validate(); err != nil {
		return income.View{}, err
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return income.View{}, err
	}
	defer func() { _ = tx.Rollback() }()

	v := income.View{}

	site, err := getSite(ctx, tx, in.SiteID)
	if err != nil {
		return income.View{}, err
	}
	v.Site = &site
	if in.ClientID != nil {
		c, err := getClient(ctx, tx, *in.ClientID)
		if err != nil {
			return income.View{}, err
		}
		v.Client = &c
	}

	if in.PayableID != nil && in.AmountFromPayable.IsPositive() {
		p, err := applyDeduction(ctx, tx, *in.PayableID, in.AmountFromPayable, actorID)
		if err != nil {
			return income.View{}, err
		}
		v.Payable = &p
	}

	status := in.Status
	if status == "" {
		status = income.StatusDraft
	}
	inc, err := scanIncome(tx.QueryRowContext(ctx, `
		insert into income(site_id, client_id, truck_number, loading_date, driver_name, driver_phone, buyer_name, vehicle_number, quantity_tons, coal_price, gross_amount, commission, amount_from_payable, amount_cash, payable_id, status, evidence_photos, description, notes, created_by, modified_by)
		values ($1,$2,$3,$4,nullif($5,''),nullif($6,''),nullif($7,''),nullif($8,''),$9,$10,$11,$12,$13,$14,$15,$16,$17,nullif($18,''),nullif($19,''),$20,$20)
		returning `+incomeColumns,
		in.SiteID, in.ClientID, in.TruckNumber, in.LoadingDate, in.DriverName,
		in.DriverPhone, in.BuyerName, in.VehicleNumber, in.QuantityTons, in.CoalPrice,
		in.GrossAmount, in.Commission, in.AmountFromPayable, in.AmountCash,
		in.PayableID, status, pq.Array(in.EvidencePhotos), in.Description, in.Notes,
		actorID))
	if err != nil {
		return income.View{}, translateErr(err)
	}

	outstanding := inc.Net().Sub(in.AmountFromPayable.Add(in.AmountCash))
	if outstanding.IsPositive() && in.ClientID != nil {
		rec, err := insertReceivable(ctx, tx, settlement.CreateReceivableInput{
			ClientID:    *in.ClientID,
			SiteID:      in.SiteID,
			Date:        in.LoadingDate,
			TotalAmount: outstanding,
			Description: income.ShortfallDescription(inc.ID, inc.TruckNumber, inc.LoadingDate),
		}, actorID)
		if err != nil {
			return income.View{}, translateErr(err)
		}
		if err := tx.QueryRowContext(ctx, `
			update income set receivable_id=$2, updated_at=now()
			where id=$1 returning updated_at`,
			inc.ID, rec.ID).Scan(&inc.UpdatedAt); err != nil {
			return income.View{}, translateErr(err)
		}
		inc.ReceivableID = &rec.ID
		v.Receivable = &rec
	}

	if err := tx.Commit(); err != nil {
		return income.View{}, translateErr(err)
	}
	v.Income = inc
	return v, nil
}

func (s *Store) GetIncome(ctx context.Context, id int64) (income.View, error) {
	inc, err := scanIncome(s.db.QueryRowContext(ctx,
		`select `+incomeColumns+` from income where id=$1`, id))
	if err != nil {
		if translated := translateErr(err); translated == settlement.ErrNotFound {
			return income.View{}, income.ErrNotFound
		}
		return income.View{}, err
	}

	v := income.View{Income: inc}
	if site, err := getSite(ctx, s.db, inc.SiteID); err == nil {
		v.Site = &site
	}
	if inc.ClientID != nil {
		if c, err := getClient(ctx, s.db, *inc.ClientID); err == nil {
			v.Client = &c
		}
	}
	if inc.PayableID != nil {
		if p, err := s.GetPayable(ctx, *inc.PayableID); err == nil {
			v.Payable = &p
		}
	}
	if inc.ReceivableID != nil {
		if r, err := s.GetReceivable(ctx, *inc.ReceivableID); err == nil {
			v.Receivable = &r
		}
	}
	return v, nil
}

func (s *Store) ListIncome(ctx context.Context, f income.Filter) ([]income.Income, error) {
	var (
		where []string
		args  []any
	)
	if f.SiteID != 0 {
		args = append(args, f.SiteID)
		where = append(where, fmt.Sprintf("site_id=$%d", len(args)))
	}
	if f.ClientID != 0 {
		args = append(args, f.ClientID)
		where = append(where, fmt.Sprintf("client_id=$%d", len(args)))
	}
	query := `select ` + incomeColumns + ` from income`
	if len(where) > 0 {
		query += " where " + strings.Join(where, " and ")
	}
	query += " order by loading_date desc, id desc"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateErr(err)
	}
	defer rows.Close()
	var res []income.Income
	for rows.Next() {
		inc, err := scanIncome(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, inc)
	}
	return res, rows.Err()
}
