// Package server hosts the Fiber HTTP service: the middleware chain (recover,
// request ID, CORS), static assets and home page, and the catch-all route that
// hands "DOI/filename" targets to a ProxyHandler. It also owns the shared
// upstream http.Client so the resolver and the content stream reuse one
// connection pool. Diagnostics under /-/ are registered by the routes package.
package server
