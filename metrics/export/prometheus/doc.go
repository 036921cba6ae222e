// Package prometheus provides Prometheus collectors for engine metrics.
//
// [NewPrometheusExporter] accepts a [typeshield.Engine] and exposes an
// [http.Handler] that renders every engine counter in Prometheus text
// exposition format. Counter names are prefixed typeshield_*_total.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the Handler.
//   - Mutate engine state.
package prometheus
