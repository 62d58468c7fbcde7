package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

var (
	// Logger はアプリケーション全体で使うロガーです
	Logger *slog.Logger

	level = new(slog.LevelVar)
)

// init関数はパッケージがインポートされたときに自動的に実行されます
func init() {
	SetOutput(os.Stderr)
}

// SetOutput はログの出力先を変更します（テスト用）
func SetOutput(w io.Writer) {
	Logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// SetVerbose はデバッグログの出力を切り替えます
func SetVerbose(verbose bool) {
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
}

// LogDebug はデバッグレベルのメッセージをログに記録します
func LogDebug(format string, v ...interface{}) {
	Logger.Debug(fmt.Sprintf(format, v...))
}

// LogInfo は情報レベルのメッセージをログに記録します
func LogInfo(format string, v ...interface{}) {
	Logger.Info(fmt.Sprintf(format, v...))
}

// LogWarn は警告レベルのメッセージをログに記録します
func LogWarn(format string, v ...interface{}) {
	Logger.Warn(fmt.Sprintf(format, v...))
}

// LogError はエラーレベルのメッセージをログに記録します
func LogError(format string, v ...interface{}) {
	Logger.Error(fmt.Sprintf(format, v...))
}

// TrackTime は関数の実行時間を計測して出力するユーティリティです
func TrackTime(start time.Time, name string) {
	elapsed := time.Since(start)
	Logger.Info(name+" 完了", "elapsed", elapsed.Truncate(time.Millisecond))
}
