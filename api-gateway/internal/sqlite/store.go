// Package sqlite persists the block log in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/chain"
	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/sqlite/migrations"
	"github.com/Gideonite22/clarity-trend-vault/api-gateway/internal/vault"
)

// ErrAlreadyExists indicates a block with the same height is already stored.
var ErrAlreadyExists = errors.New("block already exists")

// Store is a chain.BlockStore backed by SQLite.
type Store struct {
	db *sql.DB
}

var _ chain.BlockStore = (*Store)(nil)

// Open opens the block log at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := "file:" + filepath.Clean(path) +
		"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendBlock stores a block with its transactions and receipts.
func (s *Store) AppendBlock(ctx context.Context, block chain.Block) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin block %d: %w", block.Height, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO blocks (height, mined_at) VALUES (?, ?)`,
		int64(block.Height), block.MinedAt.UTC().UnixMilli(),
	); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert block %d: %w", block.Height, err)
	}

	for i, t := range block.Txs {
		var receipt chain.Receipt
		if i < len(block.Receipts) {
			receipt = block.Receipts[i]
		}
		var code, message, value string
		if receipt.Result.Err != nil {
			code = string(receipt.Result.Err.Code)
			message = receipt.Result.Err.Message
		}
		if receipt.Result.OK && receipt.Result.Value != nil {
			raw, err := json.Marshal(receipt.Result.Value)
			if err != nil {
				return fmt.Errorf("encode result of tx %d/%d: %w", block.Height, i, err)
			}
			value = string(raw)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (
			   height, tx_index, sender, method, args,
			   ok, error_code, error_message, result_value
			 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			int64(block.Height), i, string(t.Sender), t.Method, string(t.Args),
			receipt.Result.OK, code, message, value,
		); err != nil {
			return fmt.Errorf("insert tx %d/%d: %w", block.Height, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit block %d: %w", block.Height, err)
	}
	return nil
}

// Blocks returns every stored block in height order.
func (s *Store) Blocks(ctx context.Context) ([]chain.Block, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT height, mined_at FROM blocks ORDER BY height`)
	if err != nil {
		return nil, fmt.Errorf("query blocks: %w", err)
	}
	var blocks []chain.Block
	index := make(map[uint64]int)
	for rows.Next() {
		var height, minedAt int64
		if err := rows.Scan(&height, &minedAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan block: %w", err)
		}
		index[uint64(height)] = len(blocks)
		blocks = append(blocks, chain.Block{
			Height:  uint64(height),
			MinedAt: time.UnixMilli(minedAt).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate blocks: %w", err)
	}
	_ = rows.Close()

	txRows, err := s.db.QueryContext(ctx,
		`SELECT height, tx_index, sender, method, args,
		        ok, error_code, error_message, result_value
		   FROM transactions
		  ORDER BY height, tx_index`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer txRows.Close()
	for txRows.Next() {
		var (
			height                     int64
			txIndex                    int
			sender, method, args       string
			ok                         bool
			code, message, resultValue string
		)
		if err := txRows.Scan(&height, &txIndex, &sender, &method, &args, &ok, &code, &message, &resultValue); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		pos, found := index[uint64(height)]
		if !found {
			return nil, fmt.Errorf("transaction %d/%d has no block", height, txIndex)
		}
		t := chain.Tx{Sender: vault.Principal(sender), Method: method}
		if args != "" {
			t.Args = json.RawMessage(args)
		}
		receipt := chain.Receipt{
			Height:  uint64(height),
			TxIndex: txIndex,
			Sender:  t.Sender,
			Method:  method,
			Result:  chain.Result{OK: ok},
		}
		if ok && resultValue != "" {
			receipt.Result.Value = json.RawMessage(resultValue)
		}
		if !ok {
			receipt.Result.Err = &vault.Error{Code: vault.Code(code), Message: message}
		}
		blocks[pos].Txs = append(blocks[pos].Txs, t)
		blocks[pos].Receipts = append(blocks[pos].Receipts, receipt)
	}
	if err := txRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return blocks, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
