// Package surrealgeo tracks which keyed, geolocated records are inside a circle
// or a rectangle, and reports changes as they happen.
//
// # Storing locations
//
// A [GeoStore] writes each location as {"g": geohash, "l": [lat, lon]} through
// a [store.Store]. Use [github.com/surrealdb/surrealgeo/pkg/store/surrealstore]
// for SurrealDB, [github.com/surrealdb/surrealgeo/pkg/store/redisstore] for
// Redis, or [github.com/surrealdb/surrealgeo/pkg/store/memstore] in tests.
//
// # Queries
//
// [GeoStore.QueryAtLocation] and [GeoStore.QueryInRegion] return a [Query].
// A query covers its region with geohash ranges and watches each range in the
// store. Nothing is watched until the first observer is registered:
//
//	q, _ := gs.QueryAtLocation(geo.NewPoint(37.7749, -122.4194), 1)
//	q.Observe(surrealgeo.Entered, func(id string, p geo.Point) { ... })
//	q.ObserveReady(func() { ... })
//
// Entered and exited events for one record strictly alternate. Changing the
// center, radius, region or limit only watches the ranges that changed.
// Removing the last observer stops every watch and clears the query.
//
// # Callbacks
//
// Observers run on a delivery goroutine owned by the GeoStore, in the order
// events were produced, and never while the query is locked. An observer may
// call back into the query.
package surrealgeo
