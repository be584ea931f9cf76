package log

import (
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var (
	WarningLog *log.Logger
	InfoLog    *log.Logger
	ErrorLog   *log.Logger
	DebugLog   *log.Logger
)

var debugEnabled = os.Getenv("PP_DEBUG") == "true" || os.Getenv("PP_DEBUG") == "1"

var logFileName = filepath.Join(os.TempDir(), "patchprove.log")

var globalLogFile *os.File

// Initialize should be called once at the beginning of a session to set up
// logging. Defer Close() after calling this. All output goes to a log file
// in the OS temp directory; it falls back to stderr if that file can't be
// opened.
func Initialize(label string) {
	f, err := os.OpenFile(logFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		w := os.Stderr
		setLoggers(w, label)
		fmt.Fprintf(os.Stderr, "Warning: using stderr for logging: %v\n", err)
		return
	}

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	setLoggers(f, label)
	globalLogFile = f
}

func setLoggers(w io.Writer, label string) {
	fmtS := "%s"
	if label != "" {
		fmtS = "[" + label + "] %s"
	}
	InfoLog = log.New(w, fmt.Sprintf(fmtS, "INFO:"), log.Ldate|log.Ltime|log.Lshortfile)
	WarningLog = log.New(w, fmt.Sprintf(fmtS, "WARNING:"), log.Ldate|log.Ltime|log.Lshortfile)
	ErrorLog = log.New(w, fmt.Sprintf(fmtS, "ERROR:"), log.Ldate|log.Ltime|log.Lshortfile)
	if debugEnabled {
		DebugLog = log.New(w, fmt.Sprintf(fmtS, "DEBUG:"), log.Ldate|log.Ltime|log.Lshortfile)
	} else {
		DebugLog = log.New(io.Discard, "", 0)
	}
}

func Close() {
	if globalLogFile == nil {
		return
	}
	_ = globalLogFile.Close()
	fmt.Fprintln(os.Stderr, "wrote logs to "+logFileName)
}

// Every is used to log at most once every timeout duration. The sandbox
// cleanup-retry path and the policy file watcher both use it to avoid
// flooding the log with repeated warnings from the same condition.
type Every struct {
	timeout time.Duration
	timer   *time.Timer
}

func NewEvery(timeout time.Duration) *Every {
	return &Every{timeout: timeout}
}

// ShouldLog returns true if the timeout has passed since the last log.
func (e *Every) ShouldLog() bool {
	if e.timer == nil {
		e.timer = time.NewTimer(e.timeout)
		e.timer.Reset(e.timeout)
		return true
	}

	select {
	case <-e.timer.C:
		e.timer.Reset(e.timeout)
		return true
	default:
		return false
	}
}

// IsDebugEnabled returns true if debug logging is enabled.
func IsDebugEnabled() bool {
	return debugEnabled
}

// SanitizeURL removes credentials from a URL string for safe logging.
func SanitizeURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "[INVALID_URL]"
	}

	if u.User != nil {
		_, hasPassword := u.User.Password()
		if hasPassword {
			u.User = url.UserPassword("***", "***")
		} else {
			u.User = url.User("***")
		}
	}

	return u.String()
}

// SanitizeURLs sanitizes multiple URLs embedded in a free-form message.
func SanitizeURLs(message string) string {
	words := strings.Fields(message)
	for i, word := range words {
		if strings.Contains(word, "://") {
			words[i] = SanitizeURL(word)
		}
	}
	return strings.Join(words, " ")
}
