// Package health reports whether the server's dependencies are usable.
//
// A Checker reports a Status: Healthy, Degraded, or Unhealthy. StoreChecker
// probes the KV store shared by the cache and the rate limiter; other
// components register a CheckerFunc.
//
//	agg := health.NewAggregator(health.AggregatorConfig{Logger: logger})
//	agg.Register(health.NewStoreChecker(store, health.StoreCheckerConfig{}))
//	health.RegisterHandlers(router, agg)
//
// Endpoints:
//
//	/healthz          liveness, always 200
//	/readyz           200 unless a check is unhealthy
//	/health           JSON report of every check
//	/health/{check}   JSON report of one check
package health
