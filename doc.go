// Package oasql serves an HTTP API whose routes, parameters and response
// shapes come from an OpenAPI 3 contract, with operations implemented by
// SQL templates run against MySQL.
//
// The contract is the source of truth. A Router is built from a loaded
// contract and matches each request to an operation, validates every
// parameter and the body against the operation's schemas, and passes the
// validated Request to the handler registered for the operation id:
//
//	c, err := contract.Load("openapi.yaml")
//	r := oasql.New(c, oasql.WithLogger(logger))
//	r.Use(oasql.RequestID(), oasql.Logger(logger), oasql.Recovery(logger))
//
// Handlers are usually query templates:
//
//	set, err := query.LoadFile("queries.yaml")
//	err = r.HandleQueries(query.NewExecutor(p), set)
//
// but any Handler can be registered:
//
//	r.Handle("getUser", func(ctx context.Context, req *oasql.Request) (any, error) {
//	    return map[string]any{"id": req.Int("id")}, nil
//	})
//
// Errors are written as RFC 9457 problem details. Validation failures list
// every invalid field at once.
package oasql
