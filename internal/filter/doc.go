// Package filter provides windowed aggregation pipelines: broker
// samples flow through a fixed-size ring-buffer sliding window, and
// min/max/median/moving-average aggregates fan out to the broker and
// the time-series store on a configurable cadence (window_size,
// send_every, send_first_at).
package filter
