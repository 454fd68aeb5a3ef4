// Command simulator drives the tracker SDK against a running ingestd,
// producing a plausible storefront browsing session per simulated user.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vendra/activity-service/internal/logger"
	"github.com/vendra/activity-service/pkg/tracker"
)

var catalog = []tracker.Product{
	{ProductID: "p-1001", ShopID: "s-1", ProductName: "Trail Runner 3", Category: "shoes", Subcategory: "running", Brand: "stride", Price: 89.90},
	{ProductID: "p-1002", ShopID: "s-1", ProductName: "City Loafer", Category: "shoes", Subcategory: "casual", Brand: "stride", Price: 64.50},
	{ProductID: "p-2001", ShopID: "s-2", ProductName: "Canvas Tote", Category: "bags", Subcategory: "totes", Brand: "carryon", Price: 39.00},
	{ProductID: "p-2002", ShopID: "s-2", ProductName: "Weekender Duffel", Category: "bags", Subcategory: "travel", Brand: "carryon", Price: 119.00},
	{ProductID: "p-3001", ShopID: "s-3", ProductName: "Merino Beanie", Category: "accessories", Subcategory: "hats", Brand: "northwool", Price: 24.00},
}

var queries = []string{"running shoes", "tote bag", "beanie", "leather loafer", "travel duffel"}

func main() {
	var (
		endpoint = flag.String("endpoint", "http://localhost:8080/api/v1/activities", "ingest endpoint URL")
		token    = flag.String("token", "", "bearer token for the simulated user")
		userID   = flag.String("user", "sim-user-1", "simulated user id")
		stateDir = flag.String("state-dir", ".simulator-state", "directory for pending-event snapshots")
		rate     = flag.Duration("rate", 500*time.Millisecond, "mean delay between simulated actions")
	)
	flag.Parse()

	logger.Init()
	log := logger.Logger.With().Str("service", "activity-simulator").Logger()

	store, err := tracker.NewFileStore(*stateDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "state dir: %v\n", err)
		os.Exit(1)
	}

	sink := tracker.NewHTTPSink(*endpoint, func() string { return *token })
	identity := tracker.NewIdentityState(*userID)
	connectivity := tracker.NewConnectivityState(true)

	tr := tracker.New(tracker.Config{Logger: log}, store, sink, identity, connectivity)
	tr.Start()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("endpoint", *endpoint).Str("user", *userID).Msg("simulation started")

	ticker := time.NewTicker(*rate)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("draining queued events")
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := tr.FlushNow(flushCtx); err != nil {
				log.Warn().Err(err).Msg("final flush failed; snapshot keeps the events")
			}
			cancel()
			tr.Close()
			log.Info().Msg("simulation stopped")
			return
		case <-ticker.C:
			step(tr)
		}
	}
}

// step performs one weighted-random shopper action.
func step(tr *tracker.Tracker) {
	p := catalog[rand.Intn(len(catalog))]

	switch n := rand.Intn(100); {
	case n < 35:
		tr.TrackClick(tracker.ClickParams{Product: p})
	case n < 65:
		tr.TrackView(tracker.ViewParams{
			Product:  p,
			Duration: time.Duration(1+rand.Intn(30)) * time.Second,
		})
	case n < 75:
		tr.TrackSearch(tracker.SearchParams{
			Query:       queries[rand.Intn(len(queries))],
			ResultCount: rand.Intn(50),
			Source:      "search_bar",
		})
	case n < 85:
		tr.TrackAddToCart(tracker.CartParams{Product: p, Quantity: 1 + rand.Intn(3)})
	case n < 90:
		tr.TrackFavorite(tracker.FavoriteParams{Product: p})
	case n < 94:
		tr.TrackRemoveFromCart(tracker.CartParams{Product: p, Quantity: 1})
	case n < 97:
		tr.TrackUnfavorite(tracker.FavoriteParams{Product: p})
	default:
		qty := 1 + rand.Intn(2)
		tr.TrackPurchase(tracker.PurchaseParams{
			Product:    p,
			Quantity:   qty,
			TotalValue: p.Price * float64(qty),
			OrderID:    fmt.Sprintf("ord-%d", rand.Int63()),
		})
	}
}
