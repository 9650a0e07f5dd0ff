// Package internaldefs holds the metric names, help texts and bucket bounds
// shared by the Prometheus and OTel exporters, so both expose identical
// series.
package internaldefs
