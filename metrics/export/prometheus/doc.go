// Package prometheus renders stepAuth engine counters and the provider
// latency histogram in Prometheus text exposition format. It does not touch
// any global registry; callers mount Handler or call WriteTo themselves.
package prometheus
