package catalog

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestClient_ActivePools(t *testing.T) {
	ctx := context.Background()
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "name", "active", "properties"}).
		AddRow(1, "sales", true, `{"area_code":"415"}`)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM pools WHERE active = ?")).
		WithArgs(true).
		WillReturnRows(rows)

	c := &Client{db: db}
	got, err := c.ActivePools(ctx)
	if err != nil {
		t.Fatalf("ActivePools error: %v", err)
	}
	if len(got) != 1 || got[0].Name != "sales" {
		t.Fatalf("got = %+v", got)
	}
}

func TestClient_PoolNumbers(t *testing.T) {
	ctx := context.Background()
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"id", "pool_id", "number"}).
		AddRow(1, 7, "+14155551212").
		AddRow(2, 7, "+14155551213")

	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM pool_numbers WHERE pool_id = ?")).
		WithArgs(int64(7)).
		WillReturnRows(rows)

	c := &Client{db: db}
	got, err := c.PoolNumbers(ctx, 7)
	if err != nil {
		t.Fatalf("PoolNumbers error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2", len(got))
	}
}

func TestClient_AddPoolNumber(t *testing.T) {
	ctx := context.Background()
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO pool_numbers VALUES (?, ?)")).
		WithArgs(int64(7), "+14155551212").
		WillReturnResult(sqlmock.NewResult(9, 1))

	c := &Client{db: db}
	id, err := c.AddPoolNumber(ctx, 7, "+14155551212")
	if err != nil {
		t.Fatalf("AddPoolNumber error: %v", err)
	}
	if id != 9 {
		t.Fatalf("id = %d, want 9", id)
	}
}

func TestClient_RemovePoolNumber(t *testing.T) {
	ctx := context.Background()
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM pool_numbers WHERE (pool_id = ?) AND (number = ?)")).
		WithArgs(int64(7), "+14155551212").
		WillReturnResult(sqlmock.NewResult(0, 1))

	c := &Client{db: db}
	n, err := c.RemovePoolNumber(ctx, 7, "+14155551212")
	if err != nil {
		t.Fatalf("RemovePoolNumber error: %v", err)
	}
	if n != 1 {
		t.Fatalf("n = %d, want 1", n)
	}
}
