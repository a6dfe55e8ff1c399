package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/keyxmakerx/orderhistory/internal/apperror"
	"github.com/keyxmakerx/orderhistory/internal/database/sqltx"
)

// OrderRepository defines the data access contract for shop orders.
type OrderRepository interface {
	// FindByID loads an order with its member, addresses and items.
	FindByID(ctx context.Context, id int64) (*Order, error)

	// FindMember loads a registered customer.
	FindMember(ctx context.Context, id int64) (*Member, error)

	// Save writes the order, its addresses and its items. It joins a
	// transaction carried by ctx.
	Save(ctx context.Context, o *Order) error
}

// orderRepository implements OrderRepository with MariaDB queries.
type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new repository backed by the given DB pool.
func NewOrderRepository(db *sql.DB) OrderRepository {
	return &orderRepository{db: db}
}

// FindByID loads the order row, then its related rows.
func (r *orderRepository) FindByID(ctx context.Context, id int64) (*Order, error) {
	query := `SELECT id, reference, status, email, first_name, surname, total,
	                 member_id, shipping_address_id, billing_address_id,
	                 separate_billing_address, payment_gateway
	          FROM orders WHERE id = ?`

	o := &Order{}
	var memberID, shippingID, billingID sql.NullInt64
	err := sqltx.Conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&o.id, &o.reference, &o.status, &o.email, &o.firstName, &o.surname, &o.total,
		&memberID, &shippingID, &billingID,
		&o.separateBilling, &o.paymentGateway,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("order not found")
	}
	if err != nil {
		return nil, fmt.Errorf("finding order: %w", err)
	}

	if memberID.Valid {
		o.memberID = memberID.Int64
		m, err := r.FindMember(ctx, memberID.Int64)
		if err != nil {
			var appErr *apperror.AppError
			if !errors.As(err, &appErr) {
				return nil, err
			}
			// Dangling member reference: treat as a guest order.
		} else {
			o.member = m
		}
	}

	if shippingID.Valid {
		if o.shipping, err = r.findAddress(ctx, shippingID.Int64); err != nil {
			return nil, err
		}
	}
	if billingID.Valid {
		if o.billing, err = r.findAddress(ctx, billingID.Int64); err != nil {
			return nil, err
		}
	}

	if o.items, err = r.listItems(ctx, o.id); err != nil {
		return nil, err
	}
	return o, nil
}

// FindMember loads a member by ID.
func (r *orderRepository) FindMember(ctx context.Context, id int64) (*Member, error) {
	m := &Member{}
	err := sqltx.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, first_name, surname, email FROM members WHERE id = ?`, id,
	).Scan(&m.id, &m.firstName, &m.surname, &m.email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("member not found")
	}
	if err != nil {
		return nil, fmt.Errorf("finding member: %w", err)
	}
	return m, nil
}

// findAddress returns nil for a dangling address reference.
func (r *orderRepository) findAddress(ctx context.Context, id int64) (*Address, error) {
	a := &Address{}
	err := sqltx.Conn(ctx, r.db).QueryRowContext(ctx,
		`SELECT id, name, street, city, state, postcode, country FROM order_addresses WHERE id = ?`, id,
	).Scan(&a.id, &a.name, &a.street, &a.city, &a.state, &a.postcode, &a.country)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding order address: %w", err)
	}
	return a, nil
}

func (r *orderRepository) listItems(ctx context.Context, orderID int64) ([]*Item, error) {
	rows, err := sqltx.Conn(ctx, r.db).QueryContext(ctx,
		`SELECT id, title, quantity, unit_price FROM order_items WHERE order_id = ? ORDER BY id`, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing order items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		it := &Item{}
		if err := rows.Scan(&it.id, &it.title, &it.quantity, &it.unitPrice); err != nil {
			return nil, fmt.Errorf("scanning order item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating order items: %w", err)
	}
	return items, nil
}

// Save persists what this service may change: status, member, addresses
// and items. Addresses go first so the order row can point at new ones. It
// does not clean the order: observers still need its changes after the write.
func (r *orderRepository) Save(ctx context.Context, o *Order) error {
	q := sqltx.Conn(ctx, r.db)

	for _, a := range []*Address{o.shipping, o.billing} {
		if err := saveAddress(ctx, q, a); err != nil {
			return err
		}
	}

	_, err := q.ExecContext(ctx,
		`UPDATE orders
		 SET status = ?, member_id = ?, shipping_address_id = ?, billing_address_id = ?,
		     separate_billing_address = ?, updated_at = NOW()
		 WHERE id = ?`,
		o.status, nullID(o.memberID), addressID(o.shipping), addressID(o.billing),
		o.separateBilling, o.id,
	)
	if err != nil {
		return fmt.Errorf("updating order: %w", err)
	}

	for _, it := range o.items {
		if err := saveItem(ctx, q, o.id, it); err != nil {
			return err
		}
	}
	return nil
}

func saveAddress(ctx context.Context, q sqltx.Querier, a *Address) error {
	switch {
	case a == nil:
		return nil
	case a.brandNew:
		res, err := q.ExecContext(ctx,
			`INSERT INTO order_addresses (name, street, city, state, postcode, country)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			a.name, a.street, a.city, a.state, a.postcode, a.country,
		)
		if err != nil {
			return fmt.Errorf("inserting order address: %w", err)
		}
		if a.id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("getting order address id: %w", err)
		}
	case len(a.changes) > 0:
		_, err := q.ExecContext(ctx,
			`UPDATE order_addresses
			 SET name = ?, street = ?, city = ?, state = ?, postcode = ?, country = ?
			 WHERE id = ?`,
			a.name, a.street, a.city, a.state, a.postcode, a.country, a.id,
		)
		if err != nil {
			return fmt.Errorf("updating order address %d: %w", a.id, err)
		}
	}
	return nil
}

func saveItem(ctx context.Context, q sqltx.Querier, orderID int64, it *Item) error {
	switch {
	case it.removed:
		if it.brandNew {
			return nil
		}
		if _, err := q.ExecContext(ctx,
			`DELETE FROM order_items WHERE id = ? AND order_id = ?`, it.id, orderID,
		); err != nil {
			return fmt.Errorf("deleting order item %d: %w", it.id, err)
		}
	case it.brandNew:
		res, err := q.ExecContext(ctx,
			`INSERT INTO order_items (order_id, title, quantity, unit_price) VALUES (?, ?, ?, ?)`,
			orderID, it.title, it.quantity, it.unitPrice,
		)
		if err != nil {
			return fmt.Errorf("inserting order item: %w", err)
		}
		if it.id, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("getting order item id: %w", err)
		}
	case it.changed("Quantity"):
		if _, err := q.ExecContext(ctx,
			`UPDATE order_items SET quantity = ? WHERE id = ? AND order_id = ?`,
			it.quantity, it.id, orderID,
		); err != nil {
			return fmt.Errorf("updating order item %d: %w", it.id, err)
		}
	}
	return nil
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

func addressID(a *Address) sql.NullInt64 {
	if a == nil {
		return sql.NullInt64{}
	}
	return nullID(a.id)
}
