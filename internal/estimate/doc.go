// Package estimate defines the graded card estimate model, the lookup error
// taxonomy, and the Service that coordinates caching, rate limiting, history,
// and event publishing around a Looker.
package estimate
