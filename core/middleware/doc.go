// Package middleware contains HTTP middleware for the Fiber application.
//
// # Components
//
//   - auth: API key validation protecting every route except webhooks and docs.
//   - rayid: a unique request id (RayID) injected into the context and response
//     headers for tracing.
//   - shop: the X-Shop-ID tenant scope and the optional X-Actor of a request.
package middleware
