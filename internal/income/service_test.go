package income

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"komir.org/internal/directory"
	"komir.org/internal/settlement"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

type fixture struct {
	ledger *settlement.InMemory
	dir    *directory.InMemory
	svc    *InMemory
	site   directory.Site
	client directory.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	ledger := settlement.NewInMemory()
	dir := directory.NewInMemory()
	site, err := dir.CreateSite(ctx, "North Pit", "Qaraghandy", 1)
	require.NoError(t, err)
	client, err := dir.CreateClient(ctx, "Altai Trading", "", "", 1)
	require.NoError(t, err)
	return &fixture{
		ledger: ledger,
		dir:    dir,
		svc:    NewInMemory(ledger, dir),
		site:   site,
		client: client,
	}
}

func (f *fixture) post(t *testing.T, in PostIncomeInput) View {
	t.Helper()
	v, err := f.svc.PostIncome(context.Background(), in, 42)
	require.NoError(t, err)
	return v
}

func TestPostIncomeCreatesShortfallReceivable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payable, err := f.ledger.CreatePayable(ctx, settlement.CreatePayableInput{
		ClientID:    f.client.ID,
		SiteID:      f.site.ID,
		Date:        time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		TotalAmount: dec("1500.00"),
	}, 42)
	require.NoError(t, err)

	v := f.post(t, PostIncomeInput{
		SiteID:            f.site.ID,
		ClientID:          &f.client.ID,
		TruckNumber:       "KZ-774",
		LoadingDate:       time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC),
		DriverName:        "Bolat",
		GrossAmount:       dec("5000.00"),
		Commission:        dec("200.00"),
		AmountFromPayable: dec("1000.00"),
		AmountCash:        dec("2000.00"),
		PayableID:         &payable.ID,
	})

	// net 4800, paid 3000 -> 1800 outstanding.
	require.NotNil(t, v.ReceivableID)
	require.NotNil(t, v.Receivable)
	require.True(t, v.Receivable.TotalAmount.Equal(dec("1800.00")), "total %s", v.Receivable.TotalAmount)
	require.True(t, v.Receivable.RemainingBalance.Equal(dec("1800.00")))
	require.Equal(t, settlement.ReceivablePending, v.Receivable.Status)
	require.Equal(t, ShortfallDescription(v.ID, "KZ-774", v.LoadingDate), v.Receivable.Description)

	// The payable drawdown landed too.
	require.NotNil(t, v.Payable)
	require.True(t, v.Payable.RemainingBalance.Equal(dec("500.00")))
	require.Equal(t, settlement.PayablePartiallyUsed, v.Payable.Status)

	require.Equal(t, f.client.ID, v.Client.ID)
	require.Equal(t, "North Pit", v.Site.Name)
}

func TestPostIncomeInsufficientPayableLeavesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payable, err := f.ledger.CreatePayable(ctx, settlement.CreatePayableInput{
		ClientID:    f.client.ID,
		SiteID:      f.site.ID,
		TotalAmount: dec("500.00"),
	}, 42)
	require.NoError(t, err)

	_, err = f.svc.PostIncome(ctx, PostIncomeInput{
		SiteID:            f.site.ID,
		ClientID:          &f.client.ID,
		TruckNumber:       "KZ-101",
		LoadingDate:       time.Now().UTC(),
		GrossAmount:       dec("3000.00"),
		AmountFromPayable: dec("1000.00"),
		PayableID:         &payable.ID,
	}, 42)
	require.ErrorIs(t, err, settlement.ErrInsufficientBalance)

	// No income, no receivable, payable untouched.
	items, err := f.svc.ListIncome(ctx, Filter{})
	require.NoError(t, err)
	require.Empty(t, items)
	recs, err := f.ledger.ListReceivables(ctx, settlement.ReceivableFilter{})
	require.NoError(t, err)
	require.Empty(t, recs)
	p, err := f.ledger.GetPayable(ctx, payable.ID)
	require.NoError(t, err)
	require.True(t, p.RemainingBalance.Equal(dec("500.00")))
	require.Equal(t, settlement.PayableActive, p.Status)
}

func TestPostIncomeFullyCollectedNoReceivable(t *testing.T) {
	f := newFixture(t)
	v := f.post(t, PostIncomeInput{
		SiteID:      f.site.ID,
		ClientID:    &f.client.ID,
		TruckNumber: "KZ-202",
		LoadingDate: time.Now().UTC(),
		GrossAmount: dec("1000.00"),
		Commission:  dec("100.00"),
		AmountCash:  dec("900.00"),
	})
	require.Nil(t, v.ReceivableID)
	require.Nil(t, v.Receivable)
}

func TestPostIncomeWithoutClientSkipsReceivable(t *testing.T) {
	f := newFixture(t)
	v := f.post(t, PostIncomeInput{
		SiteID:      f.site.ID,
		TruckNumber: "KZ-303",
		LoadingDate: time.Now().UTC(),
		GrossAmount: dec("1000.00"),
		AmountCash:  dec("100.00"),
	})
	// 900 uncollected, but nobody to owe it.
	require.Nil(t, v.ReceivableID)
}

func TestPostIncomeReferencesBlockLedgerDeletes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	payable, err := f.ledger.CreatePayable(ctx, settlement.CreatePayableInput{
		ClientID:    f.client.ID,
		SiteID:      f.site.ID,
		TotalAmount: dec("1000.00"),
	}, 42)
	require.NoError(t, err)

	// The drawdown leaves no payment row, only the income reference.
	v := f.post(t, PostIncomeInput{
		SiteID:            f.site.ID,
		ClientID:          &f.client.ID,
		TruckNumber:       "KZ-550",
		LoadingDate:       time.Now().UTC(),
		GrossAmount:       dec("900.00"),
		AmountFromPayable: dec("400.00"),
		PayableID:         &payable.ID,
	})
	require.NotNil(t, v.ReceivableID)

	err = f.ledger.DeletePayable(ctx, payable.ID)
	require.ErrorIs(t, err, settlement.ErrConflict)
	err = f.ledger.DeleteReceivable(ctx, *v.ReceivableID)
	require.ErrorIs(t, err, settlement.ErrConflict)

	// Both records must still resolve through the posting.
	got, err := f.svc.GetIncome(ctx, v.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Payable)
	require.True(t, got.Payable.RemainingBalance.Equal(dec("600.00")))
	require.NotNil(t, got.Receivable)
}

func TestPostIncomeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   PostIncomeInput
		want error
	}{
		{"zero gross", PostIncomeInput{SiteID: f.site.ID, GrossAmount: dec("0")}, settlement.ErrInvalidAmount},
		{"negative cash", PostIncomeInput{SiteID: f.site.ID, GrossAmount: dec("100"), AmountCash: dec("-1")}, settlement.ErrInvalidAmount},
		{"commission over gross", PostIncomeInput{SiteID: f.site.ID, GrossAmount: dec("100"), Commission: dec("101")}, settlement.ErrInvalidAmount},
		{"drawdown without payable", PostIncomeInput{SiteID: f.site.ID, GrossAmount: dec("100"), AmountFromPayable: dec("10")}, settlement.ErrInvalidReference},
		{"bad status", PostIncomeInput{SiteID: f.site.ID, GrossAmount: dec("100"), Status: "void"}, ErrInvalidStatus},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.PostIncome(ctx, tc.in, 1)
			require.ErrorIs(t, err, tc.want)
		})
	}

	_, err := f.svc.PostIncome(ctx, PostIncomeInput{SiteID: 999, GrossAmount: dec("100")}, 1)
	require.ErrorIs(t, err, directory.ErrNotFound)

	missing := int64(888)
	_, err = f.svc.PostIncome(ctx, PostIncomeInput{SiteID: f.site.ID, ClientID: &missing, GrossAmount: dec("100")}, 1)
	require.ErrorIs(t, err, directory.ErrNotFound)
}
