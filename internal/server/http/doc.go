// Package httpserver exposes evbus over HTTP: a newline-delimited JSON
// event stream, event publishing, queue listing and a health check. HTTP
// Basic authentication and request ids are applied as middleware.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{Config: config.Default()})
//	s := httpserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":5665")
//
// A client subscribes with
//
//	curl -u mon:secret -X POST 'http://localhost:5665/v1/events?types=CheckResult&queue=q1'
package httpserver
