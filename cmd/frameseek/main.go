package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/frameseek/frameseek/internal/caption"
	"github.com/frameseek/frameseek/internal/config"
	"github.com/frameseek/frameseek/internal/encoder"
	"github.com/frameseek/frameseek/internal/index"
	"github.com/frameseek/frameseek/internal/metrics"
	"github.com/frameseek/frameseek/internal/objectstore"
	"github.com/frameseek/frameseek/internal/pipeline"
	"github.com/frameseek/frameseek/internal/scene"
	"github.com/frameseek/frameseek/internal/search"
	"github.com/frameseek/frameseek/internal/store"
	"github.com/frameseek/frameseek/internal/video"
)

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  frameseek index <video>...               Index one or more videos")
	fmt.Println("  frameseek index --directory <dir>        Index every video file in a directory")
	fmt.Println("  frameseek index --bucket <key>...        Fetch videos from MinIO and index them")
	fmt.Println("  frameseek search [flags] <query text>    Search indexed frames by text")
	fmt.Println("      --k N         number of results (default 10)")
	fmt.Println("      --save        save matched frames under matched_imgs/")
	fmt.Println("      --describe    caption matched frames with the vision model")
	fmt.Println("  frameseek similar [--k N] <frame-id>     Find frames similar to an indexed frame")
	fmt.Println("  frameseek videos                         List indexed videos")
	fmt.Println("  frameseek scenes [--video <name>]        List indexed scenes")
	fmt.Println("  frameseek info                           Show collection info")
	fmt.Println("  frameseek clear                          Delete every record in the collection")
	fmt.Println("\nExamples:")
	fmt.Println("  frameseek index videos/sample.mp4 videos/cat.mp4")
	fmt.Println("  frameseek index --directory videos/")
	fmt.Println("  frameseek search --save person cutting vegetables")
}

type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *store.Postgres
	decoder *video.Decoder
	encoder *encoder.Client
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      parseLevel(cfg.LogLevel),
			TimeFormat: "15:04:05",
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := store.InitSchema(ctx, pool, cfg.EncoderDimension); err != nil {
		logger.Error("schema initialization failed", "error", err)
		os.Exit(1)
	}

	st, err := store.New(ctx, pool, store.Config{
		Collection:  cfg.Collection,
		Dimension:   cfg.EncoderDimension,
		OnDuplicate: store.DuplicatePolicy(cfg.OnDuplicate),
	}, logger)
	if err != nil {
		logger.Error("failed to open collection", "error", err)
		os.Exit(1)
	}

	if srv := metrics.StartServer(cfg.MetricsPort, logger); srv != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		store:   st,
		decoder: video.NewDecoder(logger),
		encoder: encoder.New(cfg.EncoderURL, cfg.EncoderModel, cfg.EncoderDimension),
	}

	var runErr error
	switch os.Args[1] {
	case "index":
		runErr = a.runIndex(ctx, os.Args[2:])
	case "search":
		runErr = a.runSearch(ctx, os.Args[2:])
	case "similar":
		runErr = a.runSimilar(ctx, os.Args[2:])
	case "videos":
		runErr = a.runVideos(ctx)
	case "scenes":
		runErr = a.runScenes(ctx, os.Args[2:])
	case "info":
		runErr = a.runInfo(ctx)
	case "clear":
		runErr = a.runClear(ctx)
	default:
		usage()
		os.Exit(1)
	}

	if runErr != nil {
		logger.Error("command failed", "command", os.Args[1], "error", runErr)
		os.Exit(1)
	}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (a *app) runIndex(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	directory := fs.String("directory", "", "index every video file in this directory")
	bucket := fs.Bool("bucket", false, "treat arguments as MinIO object keys")
	fs.Parse(args)

	if err := video.CheckInstallation(); err != nil {
		return err
	}

	videoPaths := fs.Args()
	switch {
	case *directory != "":
		paths, err := pipeline.VideosFromDirectory(*directory)
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return fmt.Errorf("no video files found in directory: %s", *directory)
		}
		videoPaths = paths
	case *bucket:
		fetcher, err := objectstore.NewFetcher(objectstore.FetcherConfig{
			Endpoint:  a.cfg.MinIOEndpoint,
			AccessKey: a.cfg.MinIOAccessKey,
			SecretKey: a.cfg.MinIOSecretKey,
			UseSSL:    a.cfg.MinIOUseSSL,
			Bucket:    a.cfg.MinIOBucket,
		})
		if err != nil {
			return err
		}
		tempDir, err := os.MkdirTemp("", "frameseek-*")
		if err != nil {
			return fmt.Errorf("create temp dir: %w", err)
		}
		defer os.RemoveAll(tempDir)

		var local []string
		for _, key := range videoPaths {
			path, err := fetcher.FetchVideo(ctx, key, tempDir)
			if err != nil {
				a.logger.Warn("failed to fetch video, skipping", "key", key, "error", err)
				continue
			}
			local = append(local, path)
		}
		videoPaths = local
	}

	if len(videoPaths) == 0 {
		return fmt.Errorf("no videos to index")
	}

	segmenter := scene.NewSegmenter(a.cfg.SceneThresholds, a.cfg.MinSceneLen, a.logger)
	detector := pipeline.NewVideoSceneDetector(a.decoder, segmenter)
	indexer := pipeline.NewIndexer(detector, a.decoder, a.encoder, a.store, a.cfg.SamplesPerScene, a.logger)

	summary := indexer.ProcessVideos(ctx, videoPaths)
	printSummary(summary)

	if summary.Succeeded == 0 {
		return fmt.Errorf("no videos were indexed")
	}
	return nil
}

func printSummary(summary pipeline.Summary) {
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("SUMMARY:")
	fmt.Printf("  Videos processed: %d/%d\n", summary.Succeeded, len(summary.Results))
	fmt.Printf("  Total embeddings: %d\n", summary.TotalEmbeddings)
	for _, r := range summary.Results {
		if r.Success {
			fmt.Printf("  ok   %s (%d embeddings)\n", r.VideoPath, r.EmbeddingsCount)
		} else {
			fmt.Printf("  fail %s: %v\n", r.VideoPath, r.Err)
		}
	}
	if summary.Succeeded > 0 {
		last := summary.Results[len(summary.Results)-1]
		if last.Collection.Name != "" {
			fmt.Printf("  Collection %q now has %d embeddings\n", last.Collection.Name, last.Collection.TotalEmbeddings)
		}
	}
}

func (a *app) newEngine(ctx context.Context, describe bool) (*search.Engine, error) {
	var describer search.Describer
	if describe {
		captioner, err := caption.New(ctx, a.cfg.OllamaBaseURL, a.cfg.OllamaPort, a.cfg.CaptionModel, a.logger)
		if err != nil {
			return nil, fmt.Errorf("initialize captioner: %w", err)
		}
		describer = captioner
	}
	return search.NewEngine(a.encoder, a.store, a.decoder, describer, a.cfg.MatchedImagesDir, a.logger), nil
}

func (a *app) runSearch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	k := fs.Int("k", 10, "number of results")
	save := fs.Bool("save", false, "save matched frames as images")
	describe := fs.Bool("describe", false, "caption matched frames (implies --save)")
	fs.Parse(args)

	query := strings.Join(fs.Args(), " ")
	if query == "" {
		return fmt.Errorf("search requires a query, e.g.: frameseek search person cutting vegetables")
	}

	if *save || *describe {
		if err := video.CheckInstallation(); err != nil {
			return err
		}
	}

	engine, err := a.newEngine(ctx, *describe)
	if err != nil {
		return err
	}

	fmt.Printf("Searching for: %q\n", query)
	matches, err := engine.SearchByText(ctx, query, search.Options{
		K:             *k,
		PersistImages: *save || *describe,
		Describe:      *describe,
	})
	if err != nil {
		return err
	}

	printMatches(matches)
	return nil
}

func (a *app) runSimilar(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("similar", flag.ExitOnError)
	k := fs.Int("k", 5, "number of results")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return fmt.Errorf("similar requires exactly one frame id")
	}
	frameID := fs.Arg(0)

	engine, err := a.newEngine(ctx, false)
	if err != nil {
		return err
	}

	matches, err := engine.SearchSimilar(ctx, frameID, search.Options{K: *k})
	if err != nil {
		return err
	}

	fmt.Printf("Frames similar to %q:\n", frameID)
	printMatches(matches)
	return nil
}

func printMatches(matches []search.Match) {
	if len(matches) == 0 {
		fmt.Println("No results found")
		return
	}
	fmt.Printf("Found %d results:\n", len(matches))
	for _, m := range matches {
		fmt.Printf("%d. %s\n", m.Rank, m.ID)
		fmt.Printf("   Video: %s\n", m.Metadata.VideoName)
		fmt.Printf("   Scene: %d, Frame: %d\n", m.Metadata.SceneIdx, m.Metadata.FrameIdx)
		fmt.Printf("   Similarity: %.4f\n", m.Similarity)
		if m.ImagePath != "" {
			fmt.Printf("   Saved: %s\n", m.ImagePath)
		}
		if m.Caption != "" {
			fmt.Printf("   Caption: %s\n", m.Caption)
		}
	}
}

func (a *app) runVideos(ctx context.Context) error {
	records, err := a.store.GetAll(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No videos found in collection")
		return nil
	}

	type videoStats struct {
		frames int
		scenes map[int]bool
	}
	videos := map[string]*videoStats{}
	for _, r := range records {
		stats, ok := videos[r.Metadata.VideoName]
		if !ok {
			stats = &videoStats{scenes: map[int]bool{}}
			videos[r.Metadata.VideoName] = stats
		}
		stats.frames++
		stats.scenes[r.Metadata.SceneIdx] = true
	}

	names := make([]string, 0, len(videos))
	for name := range videos {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Videos in collection:")
	for _, name := range names {
		stats := videos[name]
		fmt.Printf("  %s: %d frames, %d scenes\n", name, stats.frames, len(stats.scenes))
	}
	return nil
}

func (a *app) runScenes(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("scenes", flag.ExitOnError)
	videoName := fs.String("video", "", "limit to one video name")
	fs.Parse(args)

	var records []store.Record
	var err error
	if *videoName != "" {
		records, err = a.store.QueryByMetadata(ctx, map[string]any{index.KeyVideoName: *videoName}, 1000)
	} else {
		records, err = a.store.GetAll(ctx)
	}
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No frames found")
		return nil
	}

	type sceneKey struct {
		video string
		scene int
	}
	scenes := map[sceneKey][]string{}
	for _, r := range records {
		key := sceneKey{video: r.Metadata.VideoName, scene: r.Metadata.SceneIdx}
		scenes[key] = append(scenes[key], r.ID)
	}

	keys := make([]sceneKey, 0, len(scenes))
	for key := range scenes {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].video != keys[j].video {
			return keys[i].video < keys[j].video
		}
		return keys[i].scene < keys[j].scene
	})

	for _, key := range keys {
		ids := scenes[key]
		fmt.Printf("%s - Scene %d: %d frames\n", key.video, key.scene, len(ids))
		preview := ids
		if len(preview) > 3 {
			preview = preview[:3]
		}
		fmt.Printf("  %s\n", strings.Join(preview, ", "))
		if len(ids) > 3 {
			fmt.Printf("  ... and %d more\n", len(ids)-3)
		}
	}
	return nil
}

func (a *app) runInfo(ctx context.Context) error {
	info, err := a.store.Info(ctx)
	if err != nil {
		return err
	}
	fmt.Println("Collection information:")
	fmt.Printf("  Name:             %s\n", info.Name)
	fmt.Printf("  Total embeddings: %d\n", info.TotalEmbeddings)
	return nil
}

func (a *app) runClear(ctx context.Context) error {
	if err := a.store.Clear(ctx); err != nil {
		return err
	}
	fmt.Println("Collection cleared")
	return nil
}
