package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency = metric.NewHistogram("1m1s")
	SpfDuration     = metric.NewHistogram("1m1s")
	SpfRuns         = metric.NewCounter("10s1s")
	LSAsReceived    = metric.NewCounter("10s1s")
	LSAsFlooded     = metric.NewCounter("10s1s")
	KRouteChanges   = metric.NewCounter("10s1s")
	EngineMsgs      = metric.NewCounter("10s1s")
	ParentMsgs      = metric.NewCounter("10s1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("rde:SpfRuns/s", SpfRuns)
	expvar.Publish("rde:SpfDuration (µs)", SpfDuration)
	expvar.Publish("rde:LSAsReceived/s", LSAsReceived)
	expvar.Publish("rde:LSAsFlooded/s", LSAsFlooded)
	expvar.Publish("rde:KRouteChanges/s", KRouteChanges)
	expvar.Publish("rde:EngineMsgs/s", EngineMsgs)
	expvar.Publish("rde:ParentMsgs/s", ParentMsgs)
	expvar.Publish("rde:DispatchLatency (µs)", DispatchLatency)
}
