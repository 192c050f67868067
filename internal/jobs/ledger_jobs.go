package jobs

import (
	"context"
	"errors"

	"library-ledger-backend/internal/domain"
	"library-ledger-backend/internal/logger"
	"library-ledger-backend/internal/utils"
)

// ExpireReservations closes reservations whose window has ended, stamping
// each with its window end.
func (jr *JobRunner) ExpireReservations() {
	jr.runWithRecovery("ExpireReservations", jr.expireReservations)
}

func (jr *JobRunner) expireReservations(ctx context.Context) error {
	lapsed, err := jr.ledger.OpenReservationsEndedBefore(ctx, jr.clock.Now())
	if err != nil {
		return err
	}

	count := 0
	for _, e := range lapsed {
		closed, err := jr.services.Lending.Expire(ctx, e.ID)
		if errors.Is(err, domain.ErrAlreadyClosed) {
			// Cancelled since the scan.
			continue
		}
		if err != nil {
			logger.ErrorContext(ctx, "Failed to expire reservation", "entry_id", e.ID, "error", err)
			continue
		}
		count++

		m, label, ok := jr.recipient(ctx, *closed)
		if !ok {
			continue
		}
		if err := jr.services.Email.SendReservationExpired(ctx, m.Email, m.Name, label, closed.DueAt); err != nil {
			logger.WarnContext(ctx, "Failed to send reservation expiry notice", "entry_id", e.ID, "error", err)
		}
	}
	logger.InfoContext(ctx, "Expired reservations", "count", count, "candidates", len(lapsed))
	return nil
}

// SendOverdueReminders emails every holder of an overdue checkout with the
// fine accrued so far.
func (jr *JobRunner) SendOverdueReminders() {
	jr.runWithRecovery("SendOverdueReminders", jr.sendOverdueReminders)
}

func (jr *JobRunner) sendOverdueReminders(ctx context.Context) error {
	now := jr.clock.Now()
	overdue, err := jr.services.Query.OverdueList(ctx, now)
	if err != nil {
		return err
	}

	sent := 0
	for _, e := range overdue {
		m, label, ok := jr.recipient(ctx, e)
		if !ok {
			continue
		}
		fine := utils.CalculateFine(e, now, jr.policy)
		if err := jr.services.Email.SendOverdueReminder(ctx, m.Email, m.Name, label, e.DueAt, fine.TotalCents); err != nil {
			logger.ErrorContext(ctx, "Failed to send overdue reminder", "entry_id", e.ID, "holder_id", e.HolderID, "error", err)
			continue
		}
		sent++
		logger.DebugContext(ctx, "Sent overdue reminder", "entry_id", e.ID, "overdue_days", fine.OverdueDays)
	}
	logger.InfoContext(ctx, "Sent overdue reminders", "count", sent)
	return nil
}

// SendDueSoonReminders emails holders whose checkouts fall due within the
// policy's due-soon window.
func (jr *JobRunner) SendDueSoonReminders() {
	jr.runWithRecovery("SendDueSoonReminders", jr.sendDueSoonReminders)
}

func (jr *JobRunner) sendDueSoonReminders(ctx context.Context) error {
	due, err := jr.services.Query.DueSoonList(ctx, jr.clock.Now())
	if err != nil {
		return err
	}

	sent := 0
	for _, e := range due {
		m, label, ok := jr.recipient(ctx, e)
		if !ok {
			continue
		}
		if err := jr.services.Email.SendDueSoonReminder(ctx, m.Email, m.Name, label, e.DueAt); err != nil {
			logger.ErrorContext(ctx, "Failed to send due-soon reminder", "entry_id", e.ID, "error", err)
			continue
		}
		sent++
	}
	logger.InfoContext(ctx, "Sent due-soon reminders", "count", sent)
	return nil
}
