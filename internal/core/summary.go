package core

import "sort"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

// DaySummary is one calendar cell: the day's transactions and its net total.
type DaySummary struct {
	Date         string        `json:"date"`
	Net          int64         `json:"net"`
	Transactions []Transaction `json:"transactions"`
}

// MonthOverview is a compact summary for a specific year+month.
type MonthOverview struct {
	Year       int              `json:"year"`
	Month      int              `json:"month"` // 1-12
	Income     int64            `json:"income"`
	Expense    int64            `json:"expense"`
	ByCategory []CategoryAmount `json:"byCategory"`
	Days       []DaySummary     `json:"days"`
}

// BuildMonthOverview aggregates the month's transactions. Categories only
// count expenses and are ordered by amount, largest first.
func BuildMonthOverview(year, month int, txs []Transaction) MonthOverview {
	ov := MonthOverview{Year: year, Month: month, ByCategory: []CategoryAmount{}, Days: []DaySummary{}}

	byCat := map[string]int64{}
	dayIdx := map[string]int{}
	for _, tx := range txs {
		if tx.Type == Income {
			ov.Income += tx.Amount
		} else {
			ov.Expense += tx.Amount
			byCat[tx.Category] += tx.Amount
		}

		i, ok := dayIdx[tx.Date]
		if !ok {
			i = len(ov.Days)
			dayIdx[tx.Date] = i
			ov.Days = append(ov.Days, DaySummary{Date: tx.Date})
		}
		ov.Days[i].Net += tx.Signed()
		ov.Days[i].Transactions = append(ov.Days[i].Transactions, tx)
	}

	for name, amount := range byCat {
		ov.ByCategory = append(ov.ByCategory, CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(ov.ByCategory, func(i, j int) bool {
		if ov.ByCategory[i].Amount != ov.ByCategory[j].Amount {
			return ov.ByCategory[i].Amount > ov.ByCategory[j].Amount
		}
		return ov.ByCategory[i].Name < ov.ByCategory[j].Name
	})
	sort.Slice(ov.Days, func(i, j int) bool { return ov.Days[i].Date < ov.Days[j].Date })
	return ov
}
