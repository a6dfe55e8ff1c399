package orderlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/keyxmakerx/orderhistory/internal/apperror"
	"github.com/keyxmakerx/orderhistory/internal/database/sqltx"
)

// LogRepository defines the data access contract for order log entries.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type LogRepository interface {
	// InTx runs fn with a repository bound to a single transaction. The
	// transaction commits when fn returns nil and rolls back otherwise.
	InTx(ctx context.Context, fn func(tx LogRepository) error) error

	// FindByID returns one entry of an order.
	FindByID(ctx context.Context, orderID, id int64) (*LogEntry, error)

	// ListByOrder returns every entry of an order, oldest first.
	ListByOrder(ctx context.Context, orderID int64) ([]*LogEntry, error)

	// CountGeneric counts the automated generic-status entries of an order.
	CountGeneric(ctx context.Context, orderID int64) (int, error)

	// EvictOldestGeneric deletes the n oldest automated generic-status
	// entries and reports how many rows went.
	EvictOldestGeneric(ctx context.Context, orderID int64, n int) (int64, error)

	// ExistsWithStatus reports whether the order already has an entry with
	// the given status.
	ExistsWithStatus(ctx context.Context, orderID int64, status string) (bool, error)

	// DeleteByOrder removes every entry of an order.
	DeleteByOrder(ctx context.Context, orderID int64) (int64, error)

	// Delete removes one entry.
	Delete(ctx context.Context, orderID, id int64) error

	// Create inserts a new entry and sets its ID.
	Create(ctx context.Context, entry *LogEntry) error

	// Update writes the mutable fields of an entry: read tracking and the
	// notification envelope.
	Update(ctx context.Context, entry *LogEntry) error
}

// logRepository implements LogRepository with MariaDB queries. A bound tx
// takes precedence over any transaction carried by the context.
type logRepository struct {
	db *sql.DB
	tx *sql.Tx
}

// NewLogRepository creates a new repository backed by the given DB pool.
func NewLogRepository(db *sql.DB) LogRepository {
	return &logRepository{db: db}
}

func (r *logRepository) q(ctx context.Context) sqltx.Querier {
	if r.tx != nil {
		return r.tx
	}
	return sqltx.Conn(ctx, r.db)
}

// InTx begins a transaction unless the repository is already bound to one,
// in which case fn joins it. A transaction already carried by ctx (an order
// save in progress) is joined too.
func (r *logRepository) InTx(ctx context.Context, fn func(tx LogRepository) error) error {
	if r.tx != nil {
		return fn(r)
	}

	return sqltx.NewRunner(r.db).WithinTx(ctx, func(ctx context.Context) error {
		tx, _ := sqltx.FromContext(ctx)
		return fn(&logRepository{db: r.db, tx: tx})
	})
}

const logColumns = `id, order_id, status, title, note, changes, public, unread, first_read,
	automated, send, sent, send_to, send_from, send_subject, send_body, send_hide_order,
	dispatch_ticket, dispatched_by, dispatched_on, dispatch_uri, author_id, created_at`

// FindByID retrieves an entry by ID, scoped to its order.
func (r *logRepository) FindByID(ctx context.Context, orderID, id int64) (*LogEntry, error) {
	query := `SELECT ` + logColumns + ` FROM order_logs WHERE id = ? AND order_id = ?`

	entry, err := scanEntry(r.q(ctx).QueryRowContext(ctx, query, id, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("log entry not found")
	}
	if err != nil {
		return nil, fmt.Errorf("finding log entry: %w", err)
	}
	return entry, nil
}

// ListByOrder returns an order's entries in insertion order. Display
// ordering is applied by the service.
func (r *logRepository) ListByOrder(ctx context.Context, orderID int64) ([]*LogEntry, error) {
	query := `SELECT ` + logColumns + ` FROM order_logs
	          WHERE order_id = ?
	          ORDER BY created_at ASC, id ASC`

	rows, err := r.q(ctx).QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing log entries: %w", err)
	}
	defer rows.Close()

	var entries []*LogEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning log entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating log entries: %w", err)
	}
	return entries, nil
}

// CountGeneric counts automated entries carrying the generic status.
func (r *logRepository) CountGeneric(ctx context.Context, orderID int64) (int, error) {
	var count int
	err := r.q(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM order_logs WHERE order_id = ? AND status = ? AND automated = 1`,
		orderID, GenericStatus,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting generic log entries: %w", err)
	}
	return count, nil
}

// EvictOldestGeneric deletes the oldest automated generic entries.
// MariaDB allows ORDER BY and LIMIT on single-table DELETE.
func (r *logRepository) EvictOldestGeneric(ctx context.Context, orderID int64, n int) (int64, error) {
	if n <= 0 {
		return 0, nil
	}

	res, err := r.q(ctx).ExecContext(ctx,
		`DELETE FROM order_logs
		 WHERE order_id = ? AND status = ? AND automated = 1
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		orderID, GenericStatus, n,
	)
	if err != nil {
		return 0, fmt.Errorf("evicting generic log entries: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

// ExistsWithStatus checks for an existing entry with status.
func (r *logRepository) ExistsWithStatus(ctx context.Context, orderID int64, status string) (bool, error) {
	var exists bool
	err := r.q(ctx).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM order_logs WHERE order_id = ? AND status = ?)`,
		orderID, status,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking log status: %w", err)
	}
	return exists, nil
}

// DeleteByOrder removes an order's whole history.
func (r *logRepository) DeleteByOrder(ctx context.Context, orderID int64) (int64, error) {
	res, err := r.q(ctx).ExecContext(ctx, `DELETE FROM order_logs WHERE order_id = ?`, orderID)
	if err != nil {
		return 0, fmt.Errorf("purging order log: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

// Delete removes one entry. Returns NotFound when no row matched.
func (r *logRepository) Delete(ctx context.Context, orderID, id int64) error {
	res, err := r.q(ctx).ExecContext(ctx,
		`DELETE FROM order_logs WHERE id = ? AND order_id = ?`, id, orderID,
	)
	if err != nil {
		return fmt.Errorf("deleting log entry: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return apperror.NewNotFound("log entry not found")
	}
	return nil
}

// Create inserts an entry. The change log is stored as JSON; an empty log
// is stored as SQL NULL.
func (r *logRepository) Create(ctx context.Context, entry *LogEntry) error {
	changesJSON, err := marshalChanges(entry.ChangeLog)
	if err != nil {
		return err
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	res, err := r.q(ctx).ExecContext(ctx,
		`INSERT INTO order_logs (order_id, status, title, note, changes, public, unread, first_read,
		        automated, send, sent, send_to, send_from, send_subject, send_body, send_hide_order,
		        dispatch_ticket, dispatched_by, dispatched_on, dispatch_uri, author_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.OrderID, entry.Status, entry.Title, entry.Note, changesJSON,
		entry.Public, entry.Unread, nullTime(entry.FirstRead),
		entry.Automated, entry.Send, nullTime(entry.Sent),
		entry.SendTo, entry.SendFrom, entry.SendSubject, entry.SendBody, entry.SendHideOrder,
		entry.DispatchTicket, entry.DispatchedBy, nullTime(entry.DispatchedOn), entry.DispatchURI,
		entry.AuthorID, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting log entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting log entry id: %w", err)
	}
	entry.ID = id
	return nil
}

// Update writes read tracking and the notification envelope.
func (r *logRepository) Update(ctx context.Context, entry *LogEntry) error {
	_, err := r.q(ctx).ExecContext(ctx,
		`UPDATE order_logs
		 SET unread = ?, first_read = ?, sent = ?,
		     send_to = ?, send_from = ?, send_subject = ?, send_body = ?
		 WHERE id = ? AND order_id = ?`,
		entry.Unread, nullTime(entry.FirstRead), nullTime(entry.Sent),
		entry.SendTo, entry.SendFrom, entry.SendSubject, entry.SendBody,
		entry.ID, entry.OrderID,
	)
	if err != nil {
		return fmt.Errorf("updating log entry: %w", err)
	}
	return nil
}

// --- Scanning ---

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(s rowScanner) (*LogEntry, error) {
	e := &LogEntry{}
	var (
		changesRaw                    []byte
		firstRead, sent, dispatchedOn sql.NullTime
	)
	err := s.Scan(
		&e.ID, &e.OrderID, &e.Status, &e.Title, &e.Note, &changesRaw,
		&e.Public, &e.Unread, &firstRead,
		&e.Automated, &e.Send, &sent,
		&e.SendTo, &e.SendFrom, &e.SendSubject, &e.SendBody, &e.SendHideOrder,
		&e.DispatchTicket, &e.DispatchedBy, &dispatchedOn, &e.DispatchURI,
		&e.AuthorID, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.FirstRead = timePtr(firstRead)
	e.Sent = timePtr(sent)
	e.DispatchedOn = timePtr(dispatchedOn)

	if len(changesRaw) > 0 {
		if err := json.Unmarshal(changesRaw, &e.ChangeLog); err != nil {
			return nil, fmt.Errorf("decoding change log of entry %d: %w", e.ID, err)
		}
	}
	return e, nil
}

func marshalChanges(cl ChangeLog) ([]byte, error) {
	if len(cl) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(cl)
	if err != nil {
		return nil, fmt.Errorf("marshaling change log: %w", err)
	}
	return b, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
