package orderlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/keyxmakerx/orderhistory/internal/apperror"
)

// maxTitleLength matches the order_logs.title column.
const maxTitleLength = 255

// LogService handles business logic for order logs: compiling automated
// entries, enforcing retention and status rules, sending notifications and
// answering state/display queries.
type LogService interface {
	// Log compiles and persists the automated entry for an order event.
	// Returns (nil, nil) when there was nothing to log.
	Log(ctx context.Context, order Order, ev Event, aux map[string]any, force bool) (*LogEntry, error)

	// Record persists a manual entry, optionally starting from a preset.
	Record(ctx context.Context, order Order, preset Preset, m ManualEntry) (*LogEntry, error)

	// CurrentState returns the status representing the order's state.
	CurrentState(ctx context.Context, order Order) (string, error)

	// EntriesForDisplay returns every entry in display order.
	EntriesForDisplay(ctx context.Context, order Order) ([]DisplayEntry, error)

	// PublicEntries returns only customer-visible entries in display order.
	PublicEntries(ctx context.Context, order Order) ([]DisplayEntry, error)

	// ChangeLogOf returns a copy of an entry's structured change log.
	ChangeLogOf(entry *LogEntry) ChangeLog

	// MarkRead clears the unread flag and stamps FirstRead once.
	MarkRead(ctx context.Context, orderID, id int64) (*LogEntry, error)

	// RetrySend resends the email of an entry still awaiting it.
	RetrySend(ctx context.Context, order Order, id int64) (*LogEntry, error)

	// Delete removes one entry.
	Delete(ctx context.Context, orderID, id int64) error
}

// logService implements LogService.
type logService struct {
	repo     LogRepository
	compiler *Compiler
	notifier *Notifier
	cfg      Config
}

// NewLogService creates a log service. mailer may be nil, in which case
// entries flagged for sending fail their notification.
func NewLogService(repo LogRepository, mailer Mailer, cfg Config) LogService {
	cfg = cfg.withDefaults()
	if mailer == nil {
		mailer = noMailer{}
	}
	return &logService{
		repo:     repo,
		compiler: NewCompiler(cfg),
		notifier: NewNotifier(mailer, cfg),
		cfg:      cfg,
	}
}

// Log runs the compiler and persists its entry. The start event purges the
// order's history in the same transaction.
func (s *logService) Log(ctx context.Context, order Order, ev Event, aux map[string]any, force bool) (*LogEntry, error) {
	if !ev.Valid() {
		return nil, apperror.NewBadRequest(fmt.Sprintf("unknown order event %q", ev))
	}

	entry, err := s.compiler.Compile(order, ev, aux, force)
	if errors.Is(err, ErrCompilationSkipped) {
		slog.Debug("order event produced no log entry",
			slog.Int64("order_id", order.ID()),
			slog.String("event", string(ev)),
		)
		return nil, nil
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("compiling order log: %w", err))
	}

	return s.write(ctx, order, entry, ev == EventStart)
}

// Record validates and persists a manual entry.
func (s *logService) Record(ctx context.Context, order Order, preset Preset, m ManualEntry) (*LogEntry, error) {
	if !preset.Valid() {
		return nil, apperror.NewBadRequest(fmt.Sprintf("unknown preset %q", preset))
	}

	m.Status = strings.TrimSpace(m.Status)
	m.Title = strings.TrimSpace(m.Title)
	if preset == "" && s.cfg.Catalog.IsReserved(m.Status) {
		return nil, apperror.NewValidation(fmt.Sprintf("status %q can only be set by the system", m.Status)).
			WithInternal(ErrInvalidStatusTransition)
	}

	m, err := ApplyPreset(preset, m, order, s.cfg)
	if err != nil {
		return nil, apperror.NewBadRequest(err.Error())
	}

	if len(m.Title) > maxTitleLength {
		return nil, apperror.NewValidation(fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}

	entry := m.toEntry(order.ID())
	return s.write(ctx, order, entry, false)
}

// write persists entry inside one transaction, then sends its notification
// once the transaction committed.
func (s *logService) write(ctx context.Context, order Order, entry *LogEntry, purge bool) (*LogEntry, error) {
	if entry.Discarded() {
		return nil, nil
	}

	entry.FinalizeTitle()
	entry.CreatedAt = s.cfg.now()

	err := s.repo.InTx(ctx, func(tx LogRepository) error {
		if purge {
			purged, err := tx.DeleteByOrder(ctx, entry.OrderID)
			if err != nil {
				return err
			}
			slog.Info("order log reset",
				slog.Int64("order_id", entry.OrderID),
				slog.Int64("purged", purged),
			)
		}

		// Exclusive statuses bind manual entries only; automated entries
		// record what already happened to the order.
		if !entry.Automated && s.cfg.Catalog.IsExclusive(entry.Status) {
			exists, err := tx.ExistsWithStatus(ctx, entry.OrderID, entry.Status)
			if err != nil {
				return err
			}
			if err := checkExclusive(s.cfg.Catalog, entry, exists); err != nil {
				return err
			}
		}

		if entry.Automated && s.cfg.Catalog.IsGeneric(entry.Status) {
			if err := s.enforceRetention(ctx, tx, entry.OrderID); err != nil {
				return err
			}
		}

		return tx.Create(ctx, entry)
	})
	if err != nil {
		return nil, s.writeError(entry, err)
	}

	slog.Debug("order log entry written",
		slog.Int64("order_id", entry.OrderID),
		slog.Int64("entry_id", entry.ID),
		slog.String("status", entry.Status),
		slog.Bool("automated", entry.Automated),
	)

	if err := s.notify(ctx, order, entry); err != nil {
		return entry, err
	}
	return entry, nil
}

// enforceRetention evicts the oldest generic entries so that the entry
// about to be inserted keeps the order at or under the cap.
func (s *logService) enforceRetention(ctx context.Context, tx LogRepository, orderID int64) error {
	limit := s.cfg.MaxRecordsPerOrder

	count, err := tx.CountGeneric(ctx, orderID)
	if err != nil {
		return err
	}

	if n := evictionCount(count, limit); n > 0 {
		evicted, err := tx.EvictOldestGeneric(ctx, orderID, n)
		if err != nil {
			return err
		}
		slog.Debug("evicted generic order log entries",
			slog.Int64("order_id", orderID),
			slog.Int64("evicted", evicted),
		)

		if count, err = tx.CountGeneric(ctx, orderID); err != nil {
			return err
		}
	}

	if count >= limit {
		slog.Error("order log retention violated",
			slog.Int64("order_id", orderID),
			slog.Int("count", count),
			slog.Int("max", limit),
		)
		return fmt.Errorf("%w: %d generic entries with cap %d", ErrRetentionViolation, count, limit)
	}
	return nil
}

// writeError maps a failed write to an AppError.
func (s *logService) writeError(entry *LogEntry, err error) error {
	var appErr *apperror.AppError
	switch {
	case errors.Is(err, ErrInvalidStatusTransition):
		return apperror.NewConflict(fmt.Sprintf("order already has a %q entry", entry.Status)).
			WithInternal(err)
	case errors.As(err, &appErr):
		return appErr
	default:
		return apperror.NewInternal(fmt.Errorf("writing order log entry: %w", err))
	}
}

// notify sends the entry's email and records the sent envelope. A failure
// leaves the entry persisted with Sent unset.
func (s *logService) notify(ctx context.Context, order Order, entry *LogEntry) error {
	if !entry.AwaitingSend() {
		return nil
	}

	if err := s.notifier.Notify(ctx, entry, order); err != nil {
		slog.Error("order log notification failed",
			slog.Int64("order_id", entry.OrderID),
			slog.Int64("entry_id", entry.ID),
			slog.Any("error", err),
		)
		return apperror.NewBadGateway("the log entry was saved but the email could not be sent", err)
	}

	if err := s.repo.Update(ctx, entry); err != nil {
		// The mail is out but the entry still reads as unsent; a retry
		// would mail the customer again.
		slog.Error("order log notification sent but not recorded",
			slog.Int64("order_id", entry.OrderID),
			slog.Int64("entry_id", entry.ID),
			slog.Time("sent", *entry.Sent),
			slog.String("to", entry.SendTo),
			slog.String("from", entry.SendFrom),
			slog.String("subject", entry.SendSubject),
			slog.Any("error", err),
		)
		return apperror.NewInternal(fmt.Errorf("recording sent notification of entry %d: %w", entry.ID, err))
	}

	slog.Info("order log notification sent",
		slog.Int64("order_id", entry.OrderID),
		slog.Int64("entry_id", entry.ID),
		slog.String("to", entry.SendTo),
	)
	return nil
}

// CurrentState resolves the order's state from its entries.
func (s *logService) CurrentState(ctx context.Context, order Order) (string, error) {
	entries, err := s.repo.ListByOrder(ctx, order.ID())
	if err != nil {
		return "", apperror.NewInternal(fmt.Errorf("listing order log: %w", err))
	}
	return ResolveState(s.cfg.Catalog, entries, order.Status()), nil
}

// EntriesForDisplay lists and decorates every entry.
func (s *logService) EntriesForDisplay(ctx context.Context, order Order) ([]DisplayEntry, error) {
	return s.display(ctx, order, false)
}

// PublicEntries lists and decorates the customer-visible entries.
func (s *logService) PublicEntries(ctx context.Context, order Order) ([]DisplayEntry, error) {
	return s.display(ctx, order, true)
}

func (s *logService) display(ctx context.Context, order Order, publicOnly bool) ([]DisplayEntry, error) {
	entries, err := s.repo.ListByOrder(ctx, order.ID())
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing order log: %w", err))
	}
	if publicOnly {
		entries = filterPublic(entries)
	}

	var gateway string
	if g, ok := order.(GatewayReporter); ok {
		gateway = g.PaymentGateway()
	}

	sorted := SortForDisplay(s.cfg.Catalog, entries)
	out := make([]DisplayEntry, 0, len(sorted))
	for _, e := range sorted {
		out = append(out, Decorate(s.cfg.Catalog, e, gateway))
	}
	return out, nil
}

// ChangeLogOf returns a defensive copy of the entry's change log.
func (s *logService) ChangeLogOf(entry *LogEntry) ChangeLog {
	if entry == nil {
		return ChangeLog{}
	}
	return entry.ChangeLog.Clone()
}

// MarkRead records that the customer has seen an entry.
func (s *logService) MarkRead(ctx context.Context, orderID, id int64) (*LogEntry, error) {
	entry, err := s.repo.FindByID(ctx, orderID, id)
	if err != nil {
		return nil, err
	}

	if !entry.Unread && entry.FirstRead != nil {
		return entry, nil
	}

	entry.Unread = false
	if entry.FirstRead == nil {
		now := s.cfg.now()
		entry.FirstRead = &now
	}

	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("marking log entry read: %w", err))
	}
	return entry, nil
}

// RetrySend sends the email of an entry whose first attempt failed. It is a
// no-op for entries already sent.
func (s *logService) RetrySend(ctx context.Context, order Order, id int64) (*LogEntry, error) {
	entry, err := s.repo.FindByID(ctx, order.ID(), id)
	if err != nil {
		return nil, err
	}

	if !entry.Send {
		return nil, apperror.NewBadRequest("log entry is not flagged for sending")
	}

	if err := s.notify(ctx, order, entry); err != nil {
		return entry, err
	}
	return entry, nil
}

// Delete removes one entry of an order.
func (s *logService) Delete(ctx context.Context, orderID, id int64) error {
	if err := s.repo.Delete(ctx, orderID, id); err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return appErr
		}
		return apperror.NewInternal(fmt.Errorf("deleting log entry: %w", err))
	}

	slog.Info("order log entry deleted",
		slog.Int64("order_id", orderID),
		slog.Int64("entry_id", id),
	)
	return nil
}

// noMailer stands in when no transport is configured.
type noMailer struct{}

func (noMailer) SendMail(context.Context, string, string, string, string) error {
	return errors.New("no mail transport configured")
}
