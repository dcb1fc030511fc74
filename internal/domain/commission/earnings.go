package commission

// Earnings summarizes commissions for one seller or the whole platform.
// Cancelled commissions are reported in ByStatus but excluded from the totals.
type Earnings struct {
	TotalSales      int64
	TotalCommission int64
	TotalPayout     int64
	PendingAmount   int64
	ApprovedAmount  int64
	PaidAmount      int64
	DisputedAmount  int64
	ByStatus        map[Status]StatusTotals
}

// Summarize folds per-status totals into an Earnings report.
func Summarize(totals []StatusTotals) Earnings {
	e := Earnings{ByStatus: make(map[Status]StatusTotals, len(totals))}
	for _, t := range totals {
		e.ByStatus[t.Status] = t
		if t.Status == StatusCancelled {
			continue
		}
		e.TotalSales += t.LineItemTotal
		e.TotalCommission += t.CommissionAmount
		e.TotalPayout += t.SellerPayout

		switch t.Status {
		case StatusPending:
			e.PendingAmount += t.SellerPayout
		case StatusApproved:
			e.ApprovedAmount += t.SellerPayout
		case StatusPaid:
			e.PaidAmount += t.SellerPayout
		case StatusDisputed:
			e.DisputedAmount += t.SellerPayout
		}
	}
	return e
}
