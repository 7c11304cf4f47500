package reports

import (
	"context"
	"sort"
	"time"

	"github.com/daaty/dashboard-mobilidade-urbana-main/models"
	"github.com/daaty/dashboard-mobilidade-urbana-main/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	defaultCategory = "Outros"
	defaultSupplier = "Não informado"
	topEntries      = 10
	topSuppliers    = 10
)

type NamedAmount struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
}

type MonthlyExpense struct {
	Month  string          `json:"month"`
	Amount decimal.Decimal `json:"amount"`
	Count  int             `json:"count"`
}

type ExpenseKPIs struct {
	WithInvoice    int             `json:"with_invoice"`
	WithoutInvoice int             `json:"without_invoice"`
	Largest        decimal.Decimal `json:"largest"`
	Smallest       decimal.Decimal `json:"smallest"`
}

type ExpenseOverviewResponse struct {
	Total             decimal.Decimal  `json:"total"`
	Count             int              `json:"count"`
	DailyAverage      decimal.Decimal  `json:"daily_average"`
	DocumentationRate float64          `json:"documentation_rate"`
	ByCategory        []NamedAmount    `json:"by_category"`
	TopSuppliers      []NamedAmount    `json:"top_suppliers"`
	ByDocumentType    []NamedAmount    `json:"by_document_type"`
	Monthly           []MonthlyExpense `json:"monthly"`
	TopEntries        []GroupedExpense `json:"top_entries"`
	KPIs              ExpenseKPIs      `json:"kpis"`
	DanglingReceipts  int              `json:"dangling_receipts"`
	PeriodDays        int              `json:"period_days"`
	From              string           `json:"from"`
	To                string           `json:"to"`
}

// ListExpenseDocumentsSince loads every document and keeps the ones whose
// date parses and falls on or after since. Dates are free text, so the
// filter cannot run in SQL.
func ListExpenseDocumentsSince(ctx context.Context, db *gorm.DB, since time.Time) ([]models.ExpenseDocument, error) {
	docs, err := models.ListExpenseDocuments(ctx, db)
	if err != nil {
		return nil, err
	}
	since = models.DayStart(since)
	kept := docs[:0]
	for _, d := range docs {
		date, ok := utils.ParseDate(d.ExpenseDate)
		if !ok || date.Before(since) {
			continue
		}
		kept = append(kept, d)
	}
	return kept, nil
}

func periodStart(now time.Time, periodDays int) time.Time {
	return models.DayStart(now).AddDate(0, 0, -periodDays)
}

// ExpenseOverview summarizes the last periodDays of expenses. Every figure
// except ByDocumentType is computed on grouped entries; ByDocumentType
// counts each raw document once.
func ExpenseOverview(ctx context.Context, db *gorm.DB, periodDays int, now time.Time) (*ExpenseOverviewResponse, error) {
	from := periodStart(now, periodDays)
	docs, err := ListExpenseDocumentsSince(ctx, db, from)
	if err != nil {
		return nil, err
	}
	grouping := GroupExpenseDocuments(docs)

	resp := &ExpenseOverviewResponse{
		Count:            len(grouping.Entries),
		DanglingReceipts: len(grouping.Dangling),
		PeriodDays:       periodDays,
		From:             from.Format("2006-01-02"),
		To:               models.DayStart(now).Format("2006-01-02"),
		TopEntries:       []GroupedExpense{},
	}

	var (
		byCategory = newAmountTally()
		bySupplier = newAmountTally()
		byType     = newAmountTally()
		monthly    = map[string]*MonthlyExpense{}
		smallest   *decimal.Decimal
	)
	for _, e := range grouping.Entries {
		resp.Total = resp.Total.Add(e.Amount)
		byCategory.add(orDefault(e.Category, defaultCategory), e.Amount)
		bySupplier.add(orDefault(e.Supplier, defaultSupplier), e.Amount)

		if date, ok := utils.ParseDate(e.ExpenseDate); ok {
			key := date.Format("2006-01")
			m, found := monthly[key]
			if !found {
				m = &MonthlyExpense{Month: key}
				monthly[key] = m
			}
			m.Amount = m.Amount.Add(e.Amount)
			m.Count++
		}

		if e.HasInvoice {
			resp.KPIs.WithInvoice++
		}
		if e.Amount.GreaterThan(resp.KPIs.Largest) {
			resp.KPIs.Largest = e.Amount
		}
		if e.Amount.IsPositive() && (smallest == nil || e.Amount.LessThan(*smallest)) {
			amount := e.Amount
			smallest = &amount
		}
	}
	for i := range docs {
		byType.add(documentLabel(&docs[i]), utils.AmountOrZero(docs[i].Amount))
	}

	resp.KPIs.WithoutInvoice = resp.Count - resp.KPIs.WithInvoice
	if smallest != nil {
		resp.KPIs.Smallest = *smallest
	}
	if periodDays > 0 {
		resp.DailyAverage = resp.Total.Div(decimal.NewFromInt(int64(periodDays))).Round(2)
	}
	if resp.Count > 0 {
		rate := decimal.NewFromInt(int64(resp.KPIs.WithInvoice)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(resp.Count))).
			Round(1)
		resp.DocumentationRate = rate.InexactFloat64()
	}

	resp.ByCategory = byCategory.sorted(0)
	resp.TopSuppliers = bySupplier.sorted(topSuppliers)
	resp.ByDocumentType = byType.sorted(0)

	resp.Monthly = make([]MonthlyExpense, 0, len(monthly))
	for _, m := range monthly {
		resp.Monthly = append(resp.Monthly, *m)
	}
	sort.Slice(resp.Monthly, func(i, j int) bool { return resp.Monthly[i].Month < resp.Monthly[j].Month })

	top := append([]GroupedExpense(nil), grouping.Entries...)
	sort.SliceStable(top, func(i, j int) bool { return top[i].Amount.GreaterThan(top[j].Amount) })
	if len(top) > topEntries {
		top = top[:topEntries]
	}
	if len(top) > 0 {
		resp.TopEntries = top
	}
	return resp, nil
}

type SupplierStats struct {
	Supplier      string          `json:"supplier"`
	Total         decimal.Decimal `json:"total"`
	Purchases     int             `json:"purchases"`
	AverageTicket decimal.Decimal `json:"average_ticket"`
	LastPurchase  *string         `json:"last_purchase"`
	DocumentTypes []string        `json:"document_types"`

	last  time.Time
	types map[string]struct{}
}

type SupplierRankingResponse struct {
	Suppliers      []SupplierStats `json:"suppliers"`
	TotalSuppliers int             `json:"total_suppliers"`
	PeriodDays     int             `json:"period_days"`
}

// SupplierRanking ranks suppliers by grouped spend. Document types include
// the receipts attached to an invoice entry.
func SupplierRanking(ctx context.Context, db *gorm.DB, periodDays, limit int, now time.Time) (*SupplierRankingResponse, error) {
	docs, err := ListExpenseDocumentsSince(ctx, db, periodStart(now, periodDays))
	if err != nil {
		return nil, err
	}
	grouping := GroupExpenseDocuments(docs)

	stats := map[string]*SupplierStats{}
	for _, e := range grouping.Entries {
		name := orDefault(e.Supplier, defaultSupplier)
		s, ok := stats[name]
		if !ok {
			s = &SupplierStats{Supplier: name, types: map[string]struct{}{}}
			stats[name] = s
		}
		s.Total = s.Total.Add(e.Amount)
		s.Purchases++
		for _, d := range e.Documents {
			s.types[d.Type] = struct{}{}
		}
		if date, ok := utils.ParseDate(e.ExpenseDate); ok && date.After(s.last) {
			s.last = date
		}
	}

	ranked := make([]SupplierStats, 0, len(stats))
	for _, s := range stats {
		s.AverageTicket = s.Total.Div(decimal.NewFromInt(int64(s.Purchases))).Round(2)
		if !s.last.IsZero() {
			v := s.last.Format("2006-01-02")
			s.LastPurchase = &v
		}
		s.DocumentTypes = make([]string, 0, len(s.types))
		for t := range s.types {
			s.DocumentTypes = append(s.DocumentTypes, t)
		}
		sort.Strings(s.DocumentTypes)
		ranked = append(ranked, *s)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if !ranked[i].Total.Equal(ranked[j].Total) {
			return ranked[i].Total.GreaterThan(ranked[j].Total)
		}
		return ranked[i].Supplier < ranked[j].Supplier
	})

	resp := &SupplierRankingResponse{TotalSuppliers: len(ranked), PeriodDays: periodDays}
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	resp.Suppliers = ranked
	return resp, nil
}

type amountTally struct {
	order  []string
	totals map[string]decimal.Decimal
}

func newAmountTally() *amountTally {
	return &amountTally{totals: map[string]decimal.Decimal{}}
}

func (t *amountTally) add(name string, amount decimal.Decimal) {
	if _, ok := t.totals[name]; !ok {
		t.order = append(t.order, name)
	}
	t.totals[name] = t.totals[name].Add(amount)
}

// sorted returns the tallies largest first; limit <= 0 keeps all of them.
func (t *amountTally) sorted(limit int) []NamedAmount {
	out := make([]NamedAmount, 0, len(t.order))
	for _, name := range t.order {
		out = append(out, NamedAmount{Name: name, Amount: t.totals[name]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Amount.GreaterThan(out[j].Amount) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
