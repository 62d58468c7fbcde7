package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"redminetogithub/config"
)

// Ledger は移行済みイシューIDの永続的な記録です。
// Record はインポート成功後にのみ呼び出され、同じIDを二重に記録しません
type Ledger interface {
	Load(ctx context.Context) error
	Contains(issueID int) bool
	Record(ctx context.Context, issueID int) error
	Len() int
	Close() error
}

// OpenLedger は設定に応じたLedgerを作成します
func OpenLedger(cfg *config.Config) (Ledger, error) {
	switch cfg.LedgerBackend {
	case "sqlite":
		return NewSQLiteLedger(cfg.LedgerPath)
	case "file", "":
		return NewFileLedger(cfg.LedgerPath), nil
	default:
		return nil, fmt.Errorf("不明なLEDGER_BACKENDです: %q", cfg.LedgerBackend)
	}
}

// FileLedger は1行に1つのIDを書き込むテキストファイルのLedgerです
type FileLedger struct {
	path string
	ids  map[int]struct{}
	file *os.File
}

// NewFileLedger は新しいファイルLedgerを作成します
func NewFileLedger(path string) *FileLedger {
	return &FileLedger{
		path: path,
		ids:  make(map[int]struct{}),
	}
}

// Load はファイルからIDを読み込みます。ファイルがない場合は空として扱います
func (l *FileLedger) Load(ctx context.Context) error {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("移行記録ファイルを開けません: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, err := strconv.Atoi(line)
		if err != nil {
			return fmt.Errorf("移行記録ファイル %s の %d 行目が不正です: %q", l.path, lineNo, line)
		}
		l.ids[id] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("移行記録ファイル読み込みエラー: %w", err)
	}
	return nil
}

// Contains はIDが記録済みかどうかを返します
func (l *FileLedger) Contains(issueID int) bool {
	_, ok := l.ids[issueID]
	return ok
}

// Record はIDを追記し、ディスクに同期します
func (l *FileLedger) Record(ctx context.Context, issueID int) error {
	if l.Contains(issueID) {
		return nil
	}

	if l.file == nil {
		f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
		if err != nil {
			return fmt.Errorf("移行記録ファイルを開けません: %w", err)
		}
		if err := terminateLastLine(f); err != nil {
			f.Close()
			return err
		}
		l.file = f
	}

	if _, err := fmt.Fprintf(l.file, "%d\n", issueID); err != nil {
		return fmt.Errorf("移行記録書き込みエラー: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("移行記録同期エラー: %w", err)
	}

	l.ids[issueID] = struct{}{}
	return nil
}

// terminateLastLine は最終行が改行で終わっていない場合に改行を追記します。
// 追記するIDが前の行のIDと連結されないようにします
func terminateLastLine(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("移行記録ファイル情報取得エラー: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil {
		return fmt.Errorf("移行記録ファイル読み込みエラー: %w", err)
	}
	if last[0] == '\n' {
		return nil
	}
	if _, err := f.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("移行記録書き込みエラー: %w", err)
	}
	return nil
}

// Len は記録済みのID数を返します
func (l *FileLedger) Len() int {
	return len(l.ids)
}

// Close はファイルを閉じます
func (l *FileLedger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
