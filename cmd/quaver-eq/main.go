// Command quaver-eq fetches an AutoEq headphone correction preset,
// converts it to the player's fixed band layout, and prints or persists
// the 10 band gains.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/quaver-audio/quaver/internal/autoeq"
	"github.com/quaver-audio/quaver/internal/eq"
	"github.com/quaver-audio/quaver/internal/storage"
)

func main() {
	var (
		preset  = flag.String("preset", "", "AutoEq preset key, e.g. a result directory name")
		baseURL = flag.String("base-url", "", "override the AutoEq result endpoint")
		apply   = flag.Bool("apply", false, "persist the converted gains to the player settings")
		dataDir = flag.String("data", "", "settings directory (defaults to the user config dir)")
		timeout = flag.Duration("timeout", 20*time.Second, "fetch timeout")
	)
	flag.Parse()

	if *preset == "" {
		flag.Usage()
		os.Exit(2)
	}

	fetcher := autoeq.NewFetcher(*baseURL, nil)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	filters, err := fetcher.Fetch(ctx, *preset)
	if err != nil {
		log.Fatal(err)
	}
	gains := autoeq.Convert(filters)

	bands := eq.DefaultBands()
	fmt.Printf("%s (%d parametric filters)\n", *preset, len(filters))
	for i, b := range bands {
		fmt.Printf("  %-5s %+6.2f dB\n", b.Label, gains[i])
	}

	if !*apply {
		return
	}
	store, err := openStore(*dataDir)
	if err != nil {
		log.Fatal(err)
	}
	equalizer := eq.New(store)
	equalizer.Init(48000) // rate only affects live filtering, not persistence
	equalizer.SetAllGains(gains)
	equalizer.Enable()
	fmt.Println("applied")
}

func openStore(dataDir string) (storage.Store, error) {
	if dataDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("no user config dir: %w", err)
		}
		dataDir = filepath.Join(base, "quaver")
	}
	return storage.NewFileStore(dataDir)
}
