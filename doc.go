/*
Package nomagichttp provides an HTTP/1.1 server library.

Applications register routes and handlers; the server accepts TCP
connections and drives each one as a sequence of request/response
exchanges with correct framing, backpressure, and persistent-connection
semantics.

The per-connection engine is built from small, separately testable
stages:

  - A pooled buffer reader streams socket bytes downstream as borrowed
    buffers under demand-driven flow control.
  - State-machine parsers materialize the request line, headers,
    optional chunked body, and optional trailers, with strict size caps
    and a lenient line-terminator grammar on input.
  - A response processor enforces message-framing invariants
    (Transfer-Encoding vs Content-Length, 1xx/204/304/HEAD/CONNECT
    rules, trailer propagation) and tracks Connection: close.
  - A response writer serializes status line, headers, and body to the
    socket with per-write timeouts, always emitting strict CRLF.
  - An exchange loop composes the stages per connection and dispatches
    failures to a user-configurable error-handler chain.

HTTP/2, HTTP/3, WebSocket upgrade, and client-side HTTP are out of
scope.
*/
package nomagichttp
