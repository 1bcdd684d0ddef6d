package oasql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bjaus/oasql/contract"
	"github.com/bjaus/oasql/query"
)

// Router serves the operations of a contract. It implements http.Handler.
//
// Requests are matched against the contract's path templates, validated,
// and passed to the handler registered for the operation id. Operations
// without a handler answer 501.
type Router struct {
	contract   *contract.Contract
	dispatch   *dispatcher
	validator  validator
	handlers   map[string]Handler
	middleware []Middleware
	aux        *http.ServeMux

	logger          *slog.Logger
	errorHandler    ErrorHandler
	shutdownTimeout time.Duration
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// ErrorHandler is a custom error response writer.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// WithErrorHandler sets a custom error handler for the router.
func WithErrorHandler(h ErrorHandler) RouterOption {
	return func(r *Router) {
		r.errorHandler = h
	}
}

// WithLogger sets the logger for handler failures. Defaults to slog.Default.
func WithLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		r.logger = l
	}
}

// WithMaxBodyBytes limits request bodies. Larger bodies are answered with 413.
func WithMaxBodyBytes(n int64) RouterOption {
	return func(r *Router) {
		r.validator.maxBody = n
	}
}

// WithShutdownTimeout bounds graceful shutdown in ListenAndServe.
func WithShutdownTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		r.shutdownTimeout = d
	}
}

// New creates a Router for the operations of c.
func New(c *contract.Contract, opts ...RouterOption) *Router {
	r := &Router{
		contract:        c,
		dispatch:        newDispatcher(c),
		validator:       validator{maxBody: DefaultMaxBodyBytes},
		handlers:        make(map[string]Handler),
		aux:             http.NewServeMux(),
		logger:          slog.Default(),
		shutdownTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Contract returns the contract the router serves.
func (r *Router) Contract() *contract.Contract { return r.contract }

// Handle registers the handler for an operation id.
func (r *Router) Handle(operationID string, h Handler) error {
	if _, ok := r.contract.Operation(operationID); !ok {
		return fmt.Errorf("handle %s: no such operation", operationID)
	}
	r.handlers[operationID] = h
	return nil
}

// HandleQueries registers a QueryHandler for every template in set whose
// name is an operation id of the contract. Templates naming no operation are
// skipped and reported in the returned error; the others stay bound.
func (r *Router) HandleQueries(exec Executor, set query.Set) error {
	var errs []error
	for _, name := range set.Names() {
		if err := r.Handle(name, QueryHandler(exec, set[name])); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Bound reports whether an operation has a handler.
func (r *Router) Bound(operationID string) bool {
	_, ok := r.handlers[operationID]
	return ok
}

// Use adds middleware to the router. Middleware is applied in the order added.
func (r *Router) Use(mw ...Middleware) {
	r.middleware = append(r.middleware, mw...)
}

// ServeHTTP implements http.Handler.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	handler := http.Handler(http.HandlerFunc(r.serve))
	for i := len(r.middleware) - 1; i >= 0; i-- {
		handler = r.middleware[i](handler)
	}
	handler.ServeHTTP(w, req)
}

func (r *Router) serve(w http.ResponseWriter, req *http.Request) {
	if h, pattern := r.aux.Handler(req); pattern != "" {
		h.ServeHTTP(w, req)
		return
	}

	op, pathValues, err := r.dispatch.match(req.Method, req.URL.EscapedPath())
	if err != nil {
		r.fail(w, req, nil, err)
		return
	}
	noteOperation(req.Context(), op.ID)

	h, ok := r.handlers[op.ID]
	if !ok {
		r.fail(w, req, op, Errorf(http.StatusNotImplemented, "operation %s is not implemented", op.ID))
		return
	}

	vreq, err := r.validator.validate(w, req, op, pathValues)
	if err != nil {
		r.fail(w, req, op, err)
		return
	}

	resp, err := h(req.Context(), vreq)
	if req.Context().Err() != nil {
		r.logger.DebugContext(req.Context(), "client gone, result discarded",
			"operation", op.ID,
			"request_id", vreq.RequestID,
		)
		return
	}
	if err != nil {
		r.fail(w, req, op, err)
		return
	}

	encodeResponse(w, resp, op.SuccessStatus())
}

// fail logs server errors with their cause and writes the error response.
func (r *Router) fail(w http.ResponseWriter, req *http.Request, op *contract.Operation, err error) {
	if status := ErrorStatus(err); status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
		attrs := []any{"status", status, "error", err, "request_id", GetRequestID(req)}
		if op != nil {
			attrs = append(attrs, "operation", op.ID)
		}
		r.logger.ErrorContext(req.Context(), "request failed", attrs...)
	}

	if r.errorHandler != nil {
		r.errorHandler(w, req, err)
		return
	}
	writeErrorResponse(w, req, err)
}

// ListenAndServe starts an HTTP server on the given address.
// It blocks until the context is cancelled, then shuts down gracefully.
func (r *Router) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
