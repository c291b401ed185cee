// Package catalog is the MySQL-backed pool catalog: the set of number
// pools and the phone numbers assigned to each, seeded and managed out
// of band from the hot lease path, which never talks to MySQL directly.
package catalog

import (
	"context"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/totalhack/zar-numberpool/config"
)

// Pool is a row of the pools table: a named collection of numbers with
// optional targeting properties (area code, static assignment, etc).
type Pool struct {
	ID         int64  `db:"id"`
	Name       string `db:"name"`
	Active     bool   `db:"active"`
	Properties string `db:"properties"`
}

// PoolNumber is a row of the pool_numbers table: one E.164 number that
// belongs to a pool.
type PoolNumber struct {
	ID     int64  `db:"id"`
	PoolID int64  `db:"pool_id"`
	Number string `db:"number"`
}

// Client wraps a pooled MySQL connection configured from Settings.
type Client struct {
	db *sqlx.DB
}

// NewClient opens a MySQL connection using the catalog_* fields of cfg.
func NewClient(cfg *config.Settings) (*Client, error) {
	mc := mysql.Config{
		DBName:               cfg.CatalogDBName,
		User:                 cfg.CatalogUser,
		Passwd:               cfg.CatalogPassword,
		Addr:                 cfg.CatalogAddr,
		Net:                  "tcp",
		ParseTime:            true,
		Collation:            "utf8mb4_unicode_ci",
		AllowNativePasswords: true,
		Loc:                  time.UTC,
	}

	db, err := sqlx.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	return &Client{db: db}, nil
}

func (c *Client) Close() error { return c.db.Close() }

// Reader is the read side of the catalog, used by the number-pool
// engine at init/reset time to discover which numbers belong to each
// active pool.
type Reader interface {
	ActivePools(ctx context.Context) ([]Pool, error)
	PoolNumbers(ctx context.Context, poolID int64) ([]PoolNumber, error)
}

func (c *Client) ActivePools(ctx context.Context) ([]Pool, error) {
	return SelectFrom[Pool]("pools").
		Where(Eq("active", true)).
		FetchAll(ctx, c.db)
}

func (c *Client) PoolNumbers(ctx context.Context, poolID int64) ([]PoolNumber, error) {
	return SelectFrom[PoolNumber]("pool_numbers").
		Where(Eq("pool_id", poolID)).
		FetchAll(ctx, c.db)
}

// SeedWriter is the write side of the catalog, used by seeding tools
// and tests to populate pools and numbers; the lease path never calls
// this.
type SeedWriter interface {
	AddPool(ctx context.Context, p Pool) (int64, error)
	AddPoolNumber(ctx context.Context, poolID int64, number string) (int64, error)
	RemovePoolNumber(ctx context.Context, poolID int64, number string) (int64, error)
	SetPoolActive(ctx context.Context, poolID int64, active bool) (int64, error)
}

func (c *Client) AddPool(ctx context.Context, p Pool) (int64, error) {
	return InsertFrom("pools").
		Values(&InsertCond{Arg: []any{p.Name, p.Active, p.Properties}}).
		Exec(ctx, c.db)
}

func (c *Client) AddPoolNumber(ctx context.Context, poolID int64, number string) (int64, error) {
	return InsertFrom("pool_numbers").
		Values(&InsertCond{Arg: []any{poolID, number}}).
		Exec(ctx, c.db)
}

func (c *Client) RemovePoolNumber(ctx context.Context, poolID int64, number string) (int64, error) {
	return DeleteFrom("pool_numbers").
		Where(And(Eq("pool_id", poolID), Eq("number", number))).
		Exec(ctx, c.db)
}

func (c *Client) SetPoolActive(ctx context.Context, poolID int64, active bool) (int64, error) {
	return UpdateFrom("pools").
		Set(UpdateCond{Set: "active", Arg: active}).
		Where(Eq("id", poolID)).
		Exec(ctx, c.db)
}
