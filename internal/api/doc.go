// Package api hosts the HTTP server, middleware, and handlers. Notable routes:
//   - GET /health, /healthz and /readyz for container probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /gamestop/estimate for a PSA cert trade-in estimate.
//   - GET /gamestop/estimate/history for recent lookups of a cert.
//   - GET /gamestop/sitecheck to verify the estimate page still matches the
//     configured selectors.
package api
