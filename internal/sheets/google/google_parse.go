package google

import (
	"fmt"
	"strconv"
	"strings"

	"bilancio/internal/core"
	ports "bilancio/internal/sheets"
)

// Column order: Plan, Month, Income, Expenses, Debt payments, Set aside,
// Unallocated, Left after plan, Remaining bills, On plan.
const summaryColumns = 10

func formatRow(r ports.SummaryRow) []any {
	onPlan := "NO"
	if r.OnPlan {
		onPlan = "YES"
	}
	return []any{
		r.PlanName,
		string(r.Month),
		r.Income.Major(),
		r.Expenses.Major(),
		r.DebtPayments.Major(),
		r.SetAside.Major(),
		r.Unallocated.Major(),
		r.MoneyLeftAfterPlan.Major(),
		r.RemainingBills.Major(),
		onPlan,
	}
}

// parseSummaryRows skips the header and any row that does not parse.
func parseSummaryRows(values [][]interface{}) []ports.SummaryRow {
	out := make([]ports.SummaryRow, 0, len(values))
	for _, raw := range values {
		cols := toStrings(raw)
		if len(cols) < summaryColumns {
			continue
		}
		month, err := core.ParseMonthKey(cols[1])
		if err != nil {
			continue
		}
		var amounts [7]core.Money
		ok := true
		for i := range amounts {
			cents, parsed := parseEurosToCents(cols[2+i])
			if !parsed {
				ok = false
				break
			}
			amounts[i] = core.Money{Cents: cents}
		}
		if !ok {
			continue
		}
		out = append(out, ports.SummaryRow{
			PlanName:           cols[0],
			Month:              month,
			Income:             amounts[0],
			Expenses:           amounts[1],
			DebtPayments:       amounts[2],
			SetAside:           amounts[3],
			Unallocated:        amounts[4],
			MoneyLeftAfterPlan: amounts[5],
			RemainingBills:     amounts[6],
			OnPlan:             strings.EqualFold(cols[9], "YES"),
		})
	}
	return out
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// parseEurosToCents accepts "12.34", "12,34" and "-5"; it rounds half away from zero.
func parseEurosToCents(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return core.FromMajor(f).Cents, true
}
