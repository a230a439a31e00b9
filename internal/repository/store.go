package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/RaikyD/bookstore-orders-service/internal/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type pgRepositories struct {
	q Querier
}

func (r pgRepositories) Orders() OrderRepo       { return NewOrderRepository(r.q) }
func (r pgRepositories) Books() BookRepo         { return NewBookRepository(r.q) }
func (r pgRepositories) Carts() CartRepo         { return NewCartRepository(r.q) }
func (r pgRepositories) Users() UserRepo         { return NewUserRepository(r.q) }
func (r pgRepositories) Addresses() AddressRepo { return NewAddressRepository(r.q) }

type PostgresStore struct {
	pgRepositories
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pgRepositories: pgRepositories{q: pool}, pool: pool}
}

func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if tx != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				logger.Warn("tx rollback failed", "err", rbErr)
			}
		}
	}()

	if err = fn(ctx, pgRepositories{q: tx}); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	tx = nil
	return nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
