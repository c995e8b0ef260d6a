package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/uma-arai/casa25-portal/internal/common/utils"
)

// DB はX-Rayのサブセグメントを付けてクエリを実行するsqlxのラッパーです
type DB struct {
	*sqlx.DB
}

// NewDB は接続済みのsqlx.DBをラップします
func NewDB(conn *sqlx.DB) *DB {
	return &DB{conn}
}

// BeginTxx はトランザクションを開始します
func (db *DB) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	ctx, seg := utils.BeginSubsegment(ctx, "DB.BeginTx")
	tx, err := db.DB.BeginTxx(ctx, opts)
	utils.CloseSegment(seg, err)
	return tx, err
}

// QueryxContext wraps sqlx.DB.QueryxContext with X-Ray tracing
func (db *DB) QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error) {
	ctx, seg := utils.BeginSubsegment(ctx, "DB.Queryx")
	utils.AddMetadata(seg, "query", query)

	rows, err := db.DB.QueryxContext(ctx, query, args...)
	utils.CloseSegment(seg, err)
	return rows, err
}

// GetContext wraps sqlx.DB.GetContext with X-Ray tracing
func (db *DB) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, seg := utils.BeginSubsegment(ctx, "DB.Get")
	utils.AddMetadata(seg, "query", query)

	err := db.DB.GetContext(ctx, dest, query, args...)
	// 行が存在しないのは呼び出し側で扱う正常系
	if err == sql.ErrNoRows {
		utils.CloseSegment(seg, nil)
		return err
	}
	utils.CloseSegment(seg, err)
	return err
}

// ExecContext wraps sqlx.DB.ExecContext with X-Ray tracing
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, seg := utils.BeginSubsegment(ctx, "DB.Exec")
	utils.AddMetadata(seg, "query", query)

	result, err := db.DB.ExecContext(ctx, query, args...)
	utils.CloseSegment(seg, err)
	return result, err
}
