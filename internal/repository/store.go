package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/marketplace-backend/internal/repository/common"
)

// Store даёт сервисам единицу работы поверх общего пула соединений.
// Любая операция, меняющая деньги, выполняется целиком внутри одного
// вызова WithTransaction: заказ, кошелёк, журнал и статистика фиксируются
// или откатываются вместе.
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// WithTransaction выполняет fn внутри одной транзакции базы.
func (s *Store) WithTransaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	return common.WithTransaction(ctx, s.db, fn)
}

// DB возвращает пул для операций чтения вне транзакции.
func (s *Store) DB() *sqlx.DB {
	return s.db
}
