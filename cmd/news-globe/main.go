package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/hajimehoshi/ebiten/v2"
	_ "github.com/silbinarywolf/preferdiscretegpu"

	"github.com/mihasm/news-globe/pkg/api"
	"github.com/mihasm/news-globe/pkg/cache"
	"github.com/mihasm/news-globe/pkg/config"
	"github.com/mihasm/news-globe/pkg/engine"
	"github.com/mihasm/news-globe/pkg/filter"
)

var cli struct {
	Config       string `help:"Config file path (default: XDG config dir)." type:"path"`
	Backend      string `help:"Backend base URL, overrides the config file."`
	Width        int    `help:"Internal rendering width." default:"1920"`
	Height       int    `help:"Internal rendering height." default:"1080"`
	WindowWidth  int    `help:"Initial window width." default:"1280"`
	WindowHeight int    `help:"Initial window height." default:"720"`
	TPS          int    `help:"Ticks per second (engine updates)." default:"30"`
	Globe        bool   `help:"Start in 3D globe mode instead of the planar map."`
	NoPersist    bool   `help:"Disable the on-disk snapshot store."`
	WatchConfig  bool   `help:"Reload the config file on change."`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("news-globe"),
		kong.Description("Desktop viewer for geolocated news-event clusters."))
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfgPath := cli.Config
	if cfgPath == "" {
		var err error
		cfgPath, err = config.DefaultPath()
		kctx.FatalIfErrorf(err, "resolving config path")
	}
	cfg, err := config.Load(cfgPath)
	kctx.FatalIfErrorf(err, "loading config")
	if cli.Backend != "" {
		cfg.BackendURL = cli.Backend
	}

	dataDir, err := cfg.ResolveDataDir()
	kctx.FatalIfErrorf(err, "resolving data dir")

	client := api.NewClient(cfg.BackendURL)

	// Remote credentials are optional; a dead backend still leaves the
	// credential-free layers working.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if remote, err := client.Config(ctx); err != nil {
		log.Printf("Remote config unavailable: %v", err)
	} else if remote.MapboxToken != "" || remote.CesiumIonToken != "" {
		log.Println("Remote config loaded")
	}
	cancel()

	var db *cache.SnapshotDB
	if !cli.NoPersist {
		db, err = cache.OpenSnapshotDB(dataDir)
		if err != nil {
			log.Printf("Snapshot store unavailable, continuing without persistence: %v", err)
		} else {
			defer db.Close()
		}
	}

	store := cache.NewStore(client, cfg.QueryWindow, db)

	window := time.Duration(cfg.Filter.WindowHours) * time.Hour
	model := filter.NewModel(window, cfg.Filter.ColorFrom, cfg.Filter.ColorTo)
	model.SetColorCoding(cfg.Filter.ColorCoding)
	model.SetEnabled(cfg.Filter.Enabled)
	coord := filter.NewCoordinator(model)

	basemap, err := engine.LoadBasemap(dataDir)
	kctx.FatalIfErrorf(err, "loading basemap")

	mode := engine.ModePlanar
	if cli.Globe {
		mode = engine.ModeGlobe
	}
	display := engine.NewDisplay(cli.Width, cli.Height, basemap, mode,
		engine.MarkerSource(store, model))

	fonts := engine.LoadFonts()
	sidebar := engine.NewSidebar(store, model, fonts, cli.Width, cli.Height, cfg.SidebarSettle())
	sidebar.SetHighlightKeywords(cfg.HighlightKeywords)
	overlay := engine.NewOverlay(client, display)
	status := engine.NewStatus(store, model, overlay, fonts)
	status.SetMode(mode)

	app := engine.NewApp(store, model, coord, display, sidebar, overlay, status,
		cli.Width, cli.Height, cfg.ViewportSettle())
	defer app.Shutdown()

	if cfg.Audio.Enabled {
		player := engine.NewAmbientPlayer(cfg.Audio.Dir, status.SetNowPlaying)
		player.Start()
		defer player.Shutdown()
	}

	if cli.WatchConfig {
		stop, err := config.Watch(cfgPath, func(fresh *config.Config) {
			sidebar.SetHighlightKeywords(fresh.HighlightKeywords)
		})
		if err != nil {
			log.Printf("Config watch unavailable: %v", err)
		} else {
			defer stop()
		}
	}

	store.Start(cfg.FetchEvery(), cfg.RepaintEvery(), cfg.SnapshotEvery())
	defer store.Stop()
	overlay.Start(cfg.OverlayEvery())
	defer overlay.Stop()

	ebiten.SetTPS(cli.TPS)
	ebiten.SetWindowSize(cli.WindowWidth, cli.WindowHeight)
	ebiten.SetWindowTitle("News Globe")
	if err := ebiten.RunGame(app); err != nil {
		log.Fatal(err)
	}
}
