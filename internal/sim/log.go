// =============================================================================
// 文件: internal/sim/log.go
// 描述: 带虚拟时间戳的分级日志
// =============================================================================
package sim

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// 日志级别
const (
	LogSilent = -1
	LogError  = 0
	LogInfo   = 1
	LogDebug  = 2
)

var levelPrefix = map[int]string{
	LogError: "[ERROR]",
	LogInfo:  "[INFO]",
	LogDebug: "[DEBUG]",
}

// Logger 分级日志, nil Logger 不输出任何内容
type Logger struct {
	level int
	out   io.Writer
	mu    sync.Mutex
}

// NewLogger 创建日志器, out 为空时写到 stdout
func NewLogger(out io.Writer, level int) *Logger {
	if out == nil {
		out = os.Stdout
	}
	return &Logger{level: level, out: out}
}

// Level 当前级别
func (l *Logger) Level() int {
	if l == nil {
		return LogSilent
	}
	return l.level
}

// Enabled 该级别是否会输出
func (l *Logger) Enabled(level int) bool {
	return l != nil && level <= l.level
}

// Log 输出一行: [LEVEL] t=<now> [component] message
func (l *Logger) Log(level int, now Time, component, format string, args ...interface{}) {
	if !l.Enabled(level) {
		return
	}
	msg := fmt.Sprintf(format, args...)

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "%s t=%d [%s] %s\n", levelPrefix[level], now, component, msg)
}
