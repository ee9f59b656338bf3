package server

import "net/http"

// responseWriter records whether and with which status a response was
// written. Only the first WriteHeader reaches the client. The controller
// stores the request id on it for the access log.
type responseWriter struct {
	http.ResponseWriter
	status    int
	requestID string
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w}
}

func (w *responseWriter) WriteHeader(code int) {
	if w.status != 0 {
		return
	}
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Written reports whether a status has been sent.
func (w *responseWriter) Written() bool {
	return w.status != 0
}

// Status returns the sent status, or 200 if nothing was written yet.
func (w *responseWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *responseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
