package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Logger writes lines of the form "<time> <category> <message>". Lines are
// dropped when their category level is below the minimum or when a category
// filter is set and does not name them. Errors and warnings ignore the filter.
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	file     *os.File
	minLevel Level
	width    int
	filter   map[string]bool
	now      func() time.Time
}

func New(w io.Writer) *Logger {
	if w == nil {
		w = os.Stdout
	}
	return &Logger{out: w, minLevel: LevelInfo, now: time.Now}
}

var std = New(os.Stdout)

// Default returns the process-wide logger used by the package functions.
func Default() *Logger { return std }

func (l *Logger) RegisterCategories(categories ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range categories {
		if len(c)+1 > l.width {
			l.width = len(c) + 1
		}
	}
}

func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w == nil {
		w = os.Stdout
	}
	l.out = w
}

// SetLogFile tees output to stdout and the file at path.
func (l *Logger) SetLogFile(path string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
	}
	l.file = f
	l.out = io.MultiWriter(os.Stdout, f)
	return nil
}

func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	l.file.Sync()
	l.file.Close()
	l.file = nil
	l.out = os.Stdout
}

func (l *Logger) SetMinLevel(level Level) {
	l.mu.Lock()
	l.minLevel = level
	l.mu.Unlock()
}

// SetCategoryFilter restricts output to the named categories. An empty list
// removes the filter. A filtered category is printed even below the minimum
// level, which is how individual debug categories get switched on.
func (l *Logger) SetCategoryFilter(categories []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(categories) == 0 {
		l.filter = nil
		return
	}
	l.filter = make(map[string]bool, len(categories))
	for _, c := range categories {
		l.filter[c] = true
	}
}

func (l *Logger) Enabled(category string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabledLocked(category)
}

func (l *Logger) enabledLocked(category string) bool {
	if l.filter[category] {
		return true
	}
	level := levelOf(category)
	if level < l.minLevel {
		return false
	}
	if level >= LevelWarning {
		return true
	}
	return l.filter == nil
}

func (l *Logger) Printf(category string, format string, v ...any) {
	l.emit(category, func(buf *bytes.Buffer) { fmt.Fprintf(buf, format, v...) })
}

func (l *Logger) Println(category string, v ...any) {
	l.emit(category, func(buf *bytes.Buffer) { fmt.Fprintln(buf, v...) })
}

func (l *Logger) Error(format string, v ...any)   { l.Printf("error", format, v...) }
func (l *Logger) Warning(format string, v ...any) { l.Printf("warning", format, v...) }

func (l *Logger) Fatal(format string, v ...any) {
	l.Printf("error", format, v...)
	l.Close()
	os.Exit(1)
}

func (l *Logger) emit(category string, body func(*bytes.Buffer)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabledLocked(category) {
		return
	}
	if !validCategory(category) {
		category = "invalid_category"
	}

	buf := getBuffer()
	defer putBuffer(buf)

	buf.WriteString(l.now().Format("2006-01-02 15:04:05"))
	buf.WriteByte(' ')
	buf.WriteString(category)
	for i := len(category); i < l.width; i++ {
		buf.WriteByte(' ')
	}
	buf.WriteByte(' ')
	body(buf)
	if b := buf.Bytes(); len(b) == 0 || b[len(b)-1] != '\n' {
		buf.WriteByte('\n')
	}
	l.out.Write(buf.Bytes())
}

func RegisterCategories(categories ...string) { std.RegisterCategories(categories...) }
func SetOutput(w io.Writer)                   { std.SetOutput(w) }
func SetLogFile(path string) error            { return std.SetLogFile(path) }
func Close()                                  { std.Close() }
func SetMinLevel(level Level)                 { std.SetMinLevel(level) }
func SetCategoryFilter(categories []string)   { std.SetCategoryFilter(categories) }
func IsCategoryEnabled(category string) bool  { return std.Enabled(category) }

func Printf(category string, format string, v ...any) { std.Printf(category, format, v...) }
func Println(category string, v ...any)               { std.Println(category, v...) }
func Error(format string, v ...any)                   { std.Error(format, v...) }
func Warning(format string, v ...any)                 { std.Warning(format, v...) }
func Fatal(format string, v ...any)                   { std.Fatal(format, v...) }
