package observability

import (
	"net/http"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// RequestLogFormatter is chi's default access log with the query string
// removed, so credentials passed as query parameters never reach the log.
type RequestLogFormatter struct {
	chiMiddleware.DefaultLogFormatter
}

func NewRequestLogFormatter(log *logrus.Logger) *RequestLogFormatter {
	return &RequestLogFormatter{
		DefaultLogFormatter: chiMiddleware.DefaultLogFormatter{Logger: log, NoColor: true},
	}
}

func (f *RequestLogFormatter) NewLogEntry(r *http.Request) chiMiddleware.LogEntry {
	redacted := *r
	redacted.RequestURI = r.URL.EscapedPath()
	if r.URL.RawQuery != "" || r.URL.ForceQuery {
		u := *r.URL
		u.RawQuery = ""
		u.ForceQuery = false
		redacted.URL = &u
	}
	return f.DefaultLogFormatter.NewLogEntry(&redacted)
}
