package oasql

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// encodeResponse writes a handler result. A *Response (or any StatusCoder)
// overrides the status; a nil body or a 204 status writes no body.
func encodeResponse(w http.ResponseWriter, resp any, defaultStatus int) {
	status := defaultStatus
	body := resp

	if hs, ok := resp.(HeaderSetter); ok {
		hs.SetHeaders(w.Header())
	}
	if sc, ok := resp.(StatusCoder); ok && sc.StatusCode() != 0 {
		status = sc.StatusCode()
	}
	if r, ok := resp.(*Response); ok {
		body = r.Body
	}

	if body == nil || status == http.StatusNoContent || status == http.StatusNotModified {
		w.WriteHeader(status)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,gosec // best-effort after WriteHeader
	json.NewEncoder(w).Encode(body)
}

// writeErrorResponse writes an error as an RFC 9457 problem details response.
// Server errors carry a generic detail naming the request id; their cause
// stays in the logs.
func writeErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status := ErrorStatus(err)

	var pd *ProblemDetail
	if !errors.As(err, &pd) {
		pd = &ProblemDetail{
			Type:   "about:blank",
			Title:  http.StatusText(status),
			Status: status,
			Detail: clientDetail(r, status, err),
		}
	}
	if pd.Instance == "" {
		pd.Instance = r.URL.Path
	}

	var mna *MethodNotAllowedError
	if errors.As(err, &mna) {
		w.Header().Set("Allow", strings.Join(mna.Allow, ", "))
	}
	if status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests {
		if w.Header().Get("Retry-After") == "" {
			w.Header().Set("Retry-After", "1")
		}
	}

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(pd.Status)
	//nolint:errcheck,errchkjson,gosec // best-effort after WriteHeader
	json.NewEncoder(w).Encode(pd)
}

func clientDetail(r *http.Request, status int, err error) string {
	switch {
	case status == http.StatusNotFound:
		var sc StatusCoder
		if errors.As(err, &sc) {
			return err.Error()
		}
		return "resource not found"
	case status == http.StatusNotImplemented:
		return err.Error()
	case status == http.StatusServiceUnavailable:
		return "service busy, retry later"
	case status >= http.StatusInternalServerError:
		if id := GetRequestID(r); id != "" {
			return "internal error (request id " + id + ")"
		}
		return "internal error"
	}
	return err.Error()
}
