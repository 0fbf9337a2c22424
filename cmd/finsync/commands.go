package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"
	"time"

	"finsync/internal/budget"
	"finsync/internal/coordinator"
	"finsync/internal/core"
	"finsync/internal/recurring"
)

func (a *app) reconcile(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlags("reconcile")
	owner := fs.Int64("owner", 0, "owner id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireOwner(*owner); err != nil {
		return err
	}

	start := time.Now()
	err := a.set.ReconcileAll(ctx, *owner)
	fmt.Fprintf(out, "reconciled owner %d in %s\n", *owner, time.Since(start).Round(time.Millisecond))
	return err
}

func (a *app) pending(ctx context.Context, out io.Writer) error {
	counts, err := a.set.PendingCounts(ctx)
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tPENDING")
	for _, k := range kinds {
		fmt.Fprintf(tw, "%s\t%d\n", k, counts[k])
	}
	if ferr := tw.Flush(); ferr != nil {
		return ferr
	}
	return err
}

func (a *app) add(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlags("add")
	owner := fs.Int64("owner", 0, "owner id")
	amount := fs.String("amount", "", "positive amount, e.g. 12.50")
	category := fs.Int64("category", 0, "category id")
	kind := fs.String("type", string(core.Expense), "expense or income")
	note := fs.String("note", "", "optional note")
	at := fs.String("at", "", "date (2006-01-02), default now")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireOwner(*owner); err != nil {
		return err
	}

	amt, err := core.ParseAmount(*amount)
	if err != nil {
		return fmt.Errorf("-amount %q: %w", *amount, err)
	}
	ts, err := parseDate(*at)
	if err != nil {
		return err
	}
	tx := core.Transaction{
		Meta:       core.Meta{OwnerID: *owner},
		Amount:     amt,
		CategoryID: *category,
		Timestamp:  ts,
		Type:       core.NormalizeTransactionType(*kind),
	}
	if *note != "" {
		tx.Note = note
	}

	created, ok, err := coordinator.Settle(a.set.Transactions.Create(ctx, tx))
	if err != nil {
		if created, ok := a.pendingCopy(ctx, tx); ok {
			fmt.Fprintf(out, "saved locally as %d, waiting for the remote: %v\n", created.ID, err)
			return nil
		}
		return err
	}
	if !ok {
		return errors.New("create finished without a result")
	}
	fmt.Fprintf(out, "created transaction %d\n", created.ID)
	return nil
}

// pendingCopy finds the pending row Create left behind for tx.
func (a *app) pendingCopy(ctx context.Context, tx core.Transaction) (core.Transaction, bool) {
	pending, err := a.set.Transactions.Pending(ctx)
	if err != nil {
		return core.Transaction{}, false
	}
	for _, p := range pending {
		if p.OwnerID == tx.OwnerID && p.Amount.Equal(tx.Amount) && p.Timestamp.Equal(tx.Timestamp) {
			return p, true
		}
	}
	return core.Transaction{}, false
}

func (a *app) delete(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlags("delete")
	id := fs.Int64("id", 0, "transaction id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == 0 {
		return errors.New("-id is required")
	}

	deleted, _, err := coordinator.Settle(a.set.Transactions.Delete(ctx, *id))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted transaction %d\n", deleted)
	return nil
}

func (a *app) balance(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlags("balance")
	owner := fs.Int64("owner", 0, "owner id")
	save := fs.Bool("save", false, "store the balance on the remote profile")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireOwner(*owner); err != nil {
		return err
	}

	txs, err := a.transactions(ctx, *owner)
	if err != nil {
		return err
	}
	if !*save {
		fmt.Fprintf(out, "balance %s (%d transactions)\n", core.FormatAmount(a.calc.Compute(ctx, txs)), len(txs))
		return nil
	}
	profile, err := a.calc.Recalculate(ctx, *owner, txs)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "balance %s saved for %s\n", core.FormatAmount(profile.Balance), profile.Name)
	return nil
}

func (a *app) usage(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlags("usage")
	owner := fs.Int64("owner", 0, "owner id")
	category := fs.Int64("category", 0, "category id")
	period := fs.String("period", "Monthly", "Daily, Weekly, Monthly or Yearly")
	at := fs.String("at", "", "reference date (2006-01-02), default today")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireOwner(*owner); err != nil {
		return err
	}
	if _, ok := budget.WindowFor(*period); !ok {
		return fmt.Errorf("unknown period %q", *period)
	}
	ref, err := parseDate(*at)
	if err != nil {
		return err
	}

	txs, err := a.transactions(ctx, *owner)
	if err != nil {
		return err
	}
	u := budget.Aggregate(ref, *category, *period, txs)
	fmt.Fprintf(out, "%s spending of category %d: %s in %d transactions",
		*period, *category, core.FormatAmount(u.Sum), u.Count)
	if u.PendingCount > 0 {
		fmt.Fprintf(out, " (%s in %d pending)", core.FormatAmount(u.PendingSum), u.PendingCount)
	}
	fmt.Fprintln(out)
	return nil
}

func (a *app) limits(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlags("limits")
	owner := fs.Int64("owner", 0, "owner id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireOwner(*owner); err != nil {
		return err
	}

	limits, ok, err := coordinator.Settle(a.set.SpendingLimits.Read(ctx, *owner))
	if err != nil && !ok {
		return err
	}
	txs, err := a.transactions(ctx, *owner)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tPERIOD\tSPENT\tLIMIT\tREMAINING\tSTATUS")
	for _, s := range budget.EvaluateLimits(time.Now(), limits, txs) {
		status := "ok"
		switch {
		case !s.Known:
			status = "unknown period"
		case s.Exceeded:
			status = "exceeded"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", s.Limit.CategoryID, s.Limit.Period,
			core.FormatAmount(s.Usage.Sum), core.FormatAmount(s.Limit.Limit),
			core.FormatAmount(s.Remaining), status)
	}
	return tw.Flush()
}

func (a *app) totals(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlags("totals")
	owner := fs.Int64("owner", 0, "owner id")
	by := fs.String("by", "month", "month or year")
	local := fs.Bool("local", false, "compute from the cache instead of the remote")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireOwner(*owner); err != nil {
		return err
	}

	var g budget.Granularity
	switch *by {
	case "month":
		g = budget.ByMonth
	case "year":
		g = budget.ByYear
	default:
		return fmt.Errorf("-by must be month or year, got %q", *by)
	}

	var (
		totals []core.PeriodTotal
		err    error
	)
	switch {
	case *local:
		var txs []core.Transaction
		txs, err = a.transactions(ctx, *owner)
		totals = budget.Totals(txs, g)
	case g == budget.ByMonth:
		totals, err = a.set.Totals.MonthlyTotals(ctx, *owner)
	default:
		totals, err = a.set.Totals.YearlyTotals(ctx, *owner)
	}
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PERIOD\tINCOME\tEXPENSE")
	for _, t := range totals {
		label := fmt.Sprintf("%04d", t.Year)
		if t.Month != 0 {
			label = fmt.Sprintf("%04d-%02d", t.Year, t.Month)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", label, core.FormatAmount(t.Income), core.FormatAmount(t.Expense))
	}
	return tw.Flush()
}

func (a *app) watch(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlags("watch")
	owner := fs.Int64("owner", 0, "owner id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireOwner(*owner); err != nil {
		return err
	}

	live, err := a.set.Transactions.Watch(ctx, *owner)
	if err != nil {
		return err
	}
	defer live.Close()

	go func() {
		if err := a.set.Transactions.Reconcile(ctx, *owner); err != nil {
			a.logger.WarnContext(ctx, "Initial reconcile failed", "error", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case txs, ok := <-live.Updates():
			if !ok {
				return nil
			}
			pending := 0
			for _, tx := range txs {
				if tx.Pending {
					pending++
				}
			}
			fmt.Fprintf(out, "%s  %d transactions, %d pending, balance %s\n",
				time.Now().Format(time.TimeOnly), len(txs), pending,
				core.FormatAmount(a.calc.Compute(ctx, txs)))
		}
	}
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Now(), nil
	}
	t, err := time.ParseInLocation(time.DateOnly, s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

func (a *app) recur(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlags("recur")
	owner := fs.Int64("owner", 0, "owner id")
	since := fs.String("since", "", "materialize occurrences after this date (2006-01-02), default one month ago")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireOwner(*owner); err != nil {
		return err
	}

	now := time.Now()
	after := now.AddDate(0, -1, 0)
	if *since != "" {
		var err error
		if after, err = parseDate(*since); err != nil {
			return err
		}
	}

	rep, err := a.recurring.ProcessDue(ctx, *owner, after, now)
	fmt.Fprintf(out, "checked %d recurring payments: %d created, %d pending, %d already recorded\n",
		rep.Checked, rep.Created, rep.Pending, rep.Skipped)
	return err
}

func (a *app) upcoming(ctx context.Context, args []string, out io.Writer) error {
	fs := newFlags("upcoming")
	owner := fs.Int64("owner", 0, "owner id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := requireOwner(*owner); err != nil {
		return err
	}

	payments, ok, err := coordinator.Settle(a.set.RecurringPayments.Read(ctx, *owner))
	if err != nil && !ok {
		return err
	}

	now := time.Now()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tAMOUNT\tFREQUENCY\tNEXT")
	for _, p := range payments {
		next, ok, err := recurring.Next(p, now)
		label := "-"
		switch {
		case err != nil:
			label = "unknown frequency"
		case ok:
			label = next.Format(time.DateOnly)
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", p.ID, p.CategoryID, core.FormatAmount(p.Amount), p.Frequency, label)
	}
	return tw.Flush()
}
