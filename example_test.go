package surrealgeo_test

import (
	"context"
	"fmt"
	"sort"

	"github.com/surrealdb/surrealgeo"
	"github.com/surrealdb/surrealgeo/contrib/testenv"
	"github.com/surrealdb/surrealgeo/pkg/geo"
	"github.com/surrealdb/surrealgeo/pkg/logger"
	"github.com/surrealdb/surrealgeo/pkg/store/memstore"
)

func ExampleQuery_Observe() {
	ctx := context.Background()

	gs, err := surrealgeo.New(memstore.New(), surrealgeo.WithLogger(logger.Discard()))
	if err != nil {
		panic(err)
	}

	for id, p := range map[string]geo.Point{
		"bus-1": geo.NewPoint(37.7794, -122.4194),
		"bus-2": geo.NewPoint(37.7760, -122.4180),
		"bus-3": geo.NewPoint(40.7128, -74.0060),
	} {
		if err := gs.SetLocation(ctx, id, p); err != nil {
			panic(err)
		}
	}

	q, err := gs.QueryAtLocation(geo.NewPoint(37.7749, -122.4194), 1)
	if err != nil {
		panic(err)
	}
	defer q.RemoveAllObservers()

	var entered []string
	ready := make(chan struct{})
	if _, err := q.Observe(surrealgeo.Entered, func(id string, _ geo.Point) {
		entered = append(entered, id)
	}); err != nil {
		panic(err)
	}
	if _, err := q.ObserveReady(func() { close(ready) }); err != nil {
		panic(err)
	}
	<-ready

	sort.Strings(entered)
	fmt.Println("entered:", entered)

	exited := make(chan string, 1)
	if _, err := q.Observe(surrealgeo.Exited, func(id string, _ geo.Point) {
		exited <- id
	}); err != nil {
		panic(err)
	}
	if err := gs.RemoveLocation(ctx, "bus-1"); err != nil {
		panic(err)
	}
	fmt.Println("exited:", <-exited)

	// Output:
	// entered: [bus-1 bus-2]
	// exited: bus-1
}

func ExampleWithLogger() {
	ctx := context.Background()

	handler := testenv.NewTestLogHandlerWithOptions(testenv.WithIgnoreDebug())
	gs, err := surrealgeo.New(memstore.New(), surrealgeo.WithLogger(logger.New(handler)))
	if err != nil {
		panic(err)
	}
	if err := gs.SetLocation(ctx, "bus-1", geo.NewPoint(37.7794, -122.4194)); err != nil {
		panic(err)
	}

	q, err := gs.QueryAtLocation(geo.NewPoint(37.7749, -122.4194), 1)
	if err != nil {
		panic(err)
	}
	defer q.RemoveAllObservers()

	ready := make(chan struct{})
	if _, err := q.Observe(surrealgeo.Entered, func(string, geo.Point) { panic("boom") }); err != nil {
		panic(err)
	}
	if _, err := q.ObserveReady(func() { close(ready) }); err != nil {
		panic(err)
	}
	<-ready

	// Output:
	// [0] ERROR: observer panicked event=entered, panic=boom
}
