package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	UpdateLatency      = metric.NewHistogram("1m1s")
	RoutesResolved     = metric.NewCounter("10s1s")
	RoutesUnresolvable = metric.NewCounter("10s1s")
	DeltaRoutes        = metric.NewCounter("10s1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("ribd:UpdateLatency (µs)", UpdateLatency)
	expvar.Publish("ribd:RoutesResolved/s", RoutesResolved)
	expvar.Publish("ribd:RoutesUnresolvable/s", RoutesUnresolvable)
	expvar.Publish("ribd:DeltaRoutes/s", DeltaRoutes)
}
