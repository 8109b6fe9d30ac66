// Package logging は標準 log パッケージの上にタグ付きの出力を提供します。
// バッチは端末から手動で実行されるため、タグは色付きで表示します。
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"

	"github.com/fatih/color"
)

var debugEnabled atomic.Bool

var (
	debugTag   = color.New(color.FgHiBlack).Sprint("DEBUG:")
	infoTag    = color.New(color.FgCyan).Sprint("INFO:")
	warnTag    = color.New(color.FgYellow).Sprint("⚠️  WARNING:")
	errorTag   = color.New(color.FgRed, color.Bold).Sprint("❌ ERROR:")
	createdTag = color.New(color.FgGreen).Sprint("✅")
	updatedTag = color.New(color.FgBlue).Sprint("🔄")
	startTag   = color.New(color.FgMagenta).Sprint("🚀")
)

// Setup はバッチ・API 共通のログ設定を行います。
func Setup(w io.Writer, debug bool) {
	if w == nil {
		w = os.Stdout
	}
	log.SetOutput(w)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	debugEnabled.Store(debug)
}

// SetDebug は DEBUG 行の出力を切り替えます。
func SetDebug(on bool) { debugEnabled.Store(on) }

func Debugf(format string, args ...any) {
	if !debugEnabled.Load() {
		return
	}
	output(debugTag, format, args...)
}

func Infof(format string, args ...any)  { output(infoTag, format, args...) }
func Warnf(format string, args ...any)  { output(warnTag, format, args...) }
func Errorf(format string, args ...any) { output(errorTag, format, args...) }

// Startf は処理開始の行です。
func Startf(format string, args ...any) { output(startTag, format, args...) }

// Createdf / Updatedf はレコード単位の進捗行です。
func Createdf(format string, args ...any) { output(createdTag, format, args...) }
func Updatedf(format string, args ...any) { output(updatedTag, format, args...) }

// Fatalf はログを出力して終了コード 1 で終了します。
func Fatalf(format string, args ...any) {
	output(errorTag, format, args...)
	os.Exit(1)
}

// calldepth 3: output -> Infof など -> 呼び出し元
func output(tag, format string, args ...any) {
	_ = log.Output(3, tag+" "+fmt.Sprintf(format, args...))
}
