package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const ledgerSchema = `CREATE TABLE IF NOT EXISTS migrated_issues (
	issue_id    INTEGER PRIMARY KEY,
	migrated_at TEXT NOT NULL
)`

// SQLiteLedger はSQLiteに移行済みIDを記録するLedgerです
type SQLiteLedger struct {
	db  *sql.DB
	ids map[int]struct{}
}

// NewSQLiteLedger はデータベースを開き、テーブルを作成します
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("データベースを開けません: %w", err)
	}

	// 書き込みは単一接続で行う
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("WALモード設定エラー: %w", err)
	}
	if _, err := db.Exec(ledgerSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("テーブル作成エラー: %w", err)
	}

	return &SQLiteLedger{db: db, ids: make(map[int]struct{})}, nil
}

// Load は記録済みのIDをすべて読み込みます
func (l *SQLiteLedger) Load(ctx context.Context) error {
	rows, err := l.db.QueryContext(ctx, "SELECT issue_id FROM migrated_issues")
	if err != nil {
		return fmt.Errorf("移行記録読み込みエラー: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("移行記録読み込みエラー: %w", err)
		}
		l.ids[id] = struct{}{}
	}
	return rows.Err()
}

// Contains はIDが記録済みかどうかを返します
func (l *SQLiteLedger) Contains(issueID int) bool {
	_, ok := l.ids[issueID]
	return ok
}

// Record はIDを記録します。既に存在する場合は何もしません
func (l *SQLiteLedger) Record(ctx context.Context, issueID int) error {
	_, err := l.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO migrated_issues (issue_id, migrated_at) VALUES (?, ?)",
		issueID, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("移行記録書き込みエラー: %w", err)
	}
	l.ids[issueID] = struct{}{}
	return nil
}

// Len は記録済みのID数を返します
func (l *SQLiteLedger) Len() int {
	return len(l.ids)
}

// Close はデータベースを閉じます
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
