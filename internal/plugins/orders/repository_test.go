package orders

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyxmakerx/orderhistory/internal/apperror"
)

var orderColumns = []string{
	"id", "reference", "status", "email", "first_name", "surname", "total",
	"member_id", "shipping_address_id", "billing_address_id",
	"separate_billing_address", "payment_gateway",
}

func newTestRepo(t *testing.T) (OrderRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewOrderRepository(db), mock
}

func TestRepository_FindByID(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM orders WHERE id = \?`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(orderColumns).AddRow(
			42, "WO-1001", StatusPaid, "jane@example.com", "Jane", "Doe", "59.90",
			5, 3, nil,
			false, "Credit Card",
		))
	mock.ExpectQuery(`SELECT id, first_name, surname, email FROM members WHERE id = \?`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "first_name", "surname", "email"}).
			AddRow(5, "Jane", "Doe", "jane@example.com"))
	mock.ExpectQuery(`SELECT .+ FROM order_addresses WHERE id = \?`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "street", "city", "state", "postcode", "country"}).
			AddRow(3, "Jane Doe", "1 Main St", "Springfield", "", "4000", "AU"))
	mock.ExpectQuery(`SELECT .+ FROM order_items WHERE order_id = \? ORDER BY id`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "quantity", "unit_price"}).
			AddRow(1, "Tea Pot", 1, "59.90").
			AddRow(2, "Cup", 2, "9.95"))

	o, err := repo.FindByID(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "WO-1001", o.Reference())
	assert.Equal(t, "Credit Card", o.PaymentGateway())
	assert.Equal(t, int64(5), o.MemberID())
	require.NotNil(t, o.Member())
	assert.Equal(t, "Jane Doe", o.Member().Name())
	require.NotNil(t, o.ShippingAddress())
	assert.Equal(t, "Jane Doe, 1 Main St, Springfield 4000, AU", o.ShippingAddress().String())
	assert.Nil(t, o.BillingAddress())
	assert.Len(t, o.Items(), 2)
	assert.Empty(t, o.ChangedFields())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_FindByID_NotFound(t *testing.T) {
	repo, mock := newTestRepo(t)
	mock.ExpectQuery(`SELECT .+ FROM orders`).WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), 42)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 404, appErr.Code)
}

func TestRepository_FindByID_DanglingMember(t *testing.T) {
	repo, mock := newTestRepo(t)

	mock.ExpectQuery(`SELECT .+ FROM orders WHERE id = \?`).
		WillReturnRows(sqlmock.NewRows(orderColumns).AddRow(
			42, "WO-1001", StatusPaid, "jane@example.com", "Jane", "Doe", "59.90",
			5, nil, nil,
			false, "",
		))
	mock.ExpectQuery(`FROM members`).WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`FROM order_items`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "quantity", "unit_price"}))

	o, err := repo.FindByID(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, o.Member())
	assert.Empty(t, o.Items())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Save(t *testing.T) {
	repo, mock := newTestRepo(t)
	o := &Order{id: 42, status: StatusSent, memberID: 5, shipping: &Address{id: 3}}

	mock.ExpectExec(`UPDATE orders SET status = \?, member_id = \?, shipping_address_id = \?, billing_address_id = \?`).
		WithArgs(StatusSent, int64(5), int64(3), nil, false, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Save(context.Background(), o))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Save_Guest(t *testing.T) {
	repo, mock := newTestRepo(t)
	o := &Order{id: 42, status: StatusPaid}

	mock.ExpectExec(`UPDATE orders`).
		WithArgs(StatusPaid, nil, nil, nil, false, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Save(context.Background(), o))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepository_Save_ItemsAndAddresses(t *testing.T) {
	repo, mock := newTestRepo(t)
	o := loadedOrder()
	o.shipping.SetStreet("2 High St")
	billing := NewAddress("Acme Pty", "9 Dock Rd", "Portside", "", "", "AU")
	o.SetBillingAddress(billing)
	o.FindItem(1).SetQuantity(2)
	added := o.AddItem("Cup", 4, "9.95")
	o.items = append(o.items, &Item{id: 8, title: "Saucer", quantity: 1, unitPrice: "4.95"})
	o.RemoveItem(8)

	mock.ExpectExec(`UPDATE order_addresses SET name = \?, street = \?`).
		WithArgs("Jane Doe", "2 High St", "Springfield", "", "4000", "AU", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO order_addresses`).
		WithArgs("Acme Pty", "9 Dock Rd", "Portside", "", "", "AU").
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectExec(`UPDATE orders`).
		WithArgs(StatusUnpaid, nil, int64(3), int64(11), true, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE order_items SET quantity = \? WHERE id = \? AND order_id = \?`).
		WithArgs(int64(2), int64(1), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO order_items`).
		WithArgs(int64(42), "Cup", int64(4), "9.95").
		WillReturnResult(sqlmock.NewResult(21, 1))
	mock.ExpectExec(`DELETE FROM order_items WHERE id = \? AND order_id = \?`).
		WithArgs(int64(8), int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Save(context.Background(), o))
	assert.Equal(t, int64(11), billing.id)
	assert.Equal(t, int64(21), added.ID())
	assert.NoError(t, mock.ExpectationsWereMet())
}
