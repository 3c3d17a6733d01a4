/*
Package tracing provides lightweight request tracing.

Every HTTP request and every WebSocket session gets a span. Trace and span
IDs are prefixed ULIDs and travel in the X-Trace-ID and X-Span-ID headers,
so a page load and the WebSocket it opens can share a trace when the
client forwards the header.

Finished spans are collected on a buffered channel and logged; a full
buffer drops spans rather than blocking the request.

Example Usage:

	tracer := tracing.New("webbridge", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "ws.session")
	span.SetTag("window", "1")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()
*/
package tracing
