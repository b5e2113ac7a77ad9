package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/himanishpuri/AcousticID/pkg/acousticid"
	"github.com/himanishpuri/AcousticID/pkg/acousticid/fingerprint"
	"github.com/himanishpuri/AcousticID/pkg/acousticid/intake"
	"github.com/himanishpuri/AcousticID/pkg/acousticid/lookup"
	"github.com/himanishpuri/AcousticID/pkg/apperr"
	"github.com/himanishpuri/AcousticID/pkg/logger"
	"github.com/himanishpuri/AcousticID/pkg/models"
	"github.com/joho/godotenv"
)

// Global flags
var (
	dbPath     string
	uploadDir  string
	fpcalcPath string
	apiURL     string
)

func registerFlags() {
	flag.StringVar(&dbPath, "db", getEnvOrDefault("ACOUSTID_DB_PATH", "acousticid.sqlite3"), "Path to the analysis history database")
	flag.StringVar(&uploadDir, "uploads", getEnvOrDefault("UPLOAD_DIR", os.TempDir()), "Directory for transient copies of analyzed files")
	flag.StringVar(&fpcalcPath, "fpcalc", getEnvOrDefault("FPCALC_PATH", fingerprint.DefaultBinary), "Path to the fpcalc binary")
	flag.StringVar(&apiURL, "api-url", getEnvOrDefault("ACOUSTID_API_URL", lookup.DefaultBaseURL), "AcoustID lookup endpoint")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// createService creates an analysis service with the configured options
func createService() (acousticid.Service, error) {
	return acousticid.NewService(
		acousticid.WithAPIKey(os.Getenv("ACOUSTID_API_KEY")),
		acousticid.WithLookupURL(apiURL),
		acousticid.WithFpcalcPath(fpcalcPath),
		acousticid.WithUploadDir(uploadDir),
		acousticid.WithDBPath(dbPath),
	)
}

// openHistory opens the history database without needing an API key.
func openHistory() acousticid.Storage {
	stor, err := acousticid.NewSQLiteStorage(dbPath)
	if err != nil {
		fmt.Printf("❌ Failed to open history database: %v\n", err)
		logger.Errorf("Opening %s failed: %v", dbPath, err)
		os.Exit(1)
	}
	return stor
}

func main() {
	godotenv.Load()

	registerFlags()
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]
	logger.Debugf("Executing command: %s", command)

	switch command {
	case "analyze":
		handleAnalyze(args)
	case "history":
		handleHistory(args)
	case "show":
		handleShow(args)
	case "delete":
		handleDelete(args)
	case "prune":
		handlePrune(args)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// splitArgs separates the leading positional argument from the flags after
// it, so both "analyze song.mp3 --raw" and "analyze --raw song.mp3" work.
func splitArgs(fs *flag.FlagSet, args []string) string {
	if len(args) > 0 && len(args[0]) > 0 && args[0][0] != '-' {
		fs.Parse(args[1:])
		return args[0]
	}
	fs.Parse(args)
	return fs.Arg(0)
}

func handleAnalyze(args []string) {
	log := logger.GetLogger()

	cmd := flag.NewFlagSet("analyze", flag.ExitOnError)
	raw := cmd.Bool("raw", false, "Print the raw AcoustID response instead of normalized candidates")
	asJSON := cmd.Bool("json", false, "Print candidates as JSON")
	probe := cmd.Bool("probe", false, "Print the WAV header summary before analyzing")
	maxDisplay := cmd.Int("top", 10, "Maximum number of candidates to print")
	audioPath := splitArgs(cmd, args)

	if audioPath == "" {
		fmt.Println("Usage: acousticid analyze <audio_file> [--raw] [--json] [--probe] [--top N]")
		os.Exit(1)
	}

	if *probe {
		printProbe(audioPath)
	}

	f, err := os.Open(audioPath)
	if err != nil {
		fmt.Printf("❌ Cannot open %s: %v\n", audioPath, err)
		os.Exit(1)
	}
	defer f.Close()

	svc, err := createService()
	if err != nil {
		fmt.Printf("❌ Failed to create service: %v\n", err)
		log.Errorf("Service initialization failed: %v", err)
		os.Exit(1)
	}
	defer svc.Close()

	upload := &models.Upload{
		Filename: filepath.Base(audioPath),
		MimeType: mime.TypeByExtension(filepath.Ext(audioPath)),
		Body:     f,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	fmt.Println("🔍 Fingerprinting and querying AcoustID...")

	if *raw {
		body, err := svc.AnalyzeRaw(ctx, upload)
		if err != nil {
			fail(svc, err)
		}
		var out bytes.Buffer
		if json.Indent(&out, body, "", "  ") != nil {
			out.Reset()
			out.Write(body)
		}
		fmt.Println(out.String())
		return
	}

	candidates, err := svc.Analyze(ctx, upload)
	if err != nil {
		fail(svc, err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(candidates)
		return
	}

	if len(candidates) == 0 {
		fmt.Println("\n❌ No matches found")
		return
	}

	fmt.Printf("\n✅ Found %d candidate(s)!\n\n", len(candidates))
	n := min(*maxDisplay, len(candidates))
	for i, c := range candidates[:n] {
		fmt.Printf("%d. \"%s\" by %s\n", i+1, c.Title, c.Artist)
		fmt.Printf("   Album: %s (%s) | Score: %.0f%%\n", c.Album, c.ReleaseDate, c.Score*100)
		fmt.Printf("   Spotify: %s\n", c.StreamingLinks.Spotify)
		fmt.Printf("   YouTube: %s\n", c.StreamingLinks.YouTube)
		fmt.Println()
	}
	if len(candidates) > n {
		fmt.Printf("... and %d more candidates\n", len(candidates)-n)
	}
}

func fail(svc acousticid.Service, err error) {
	fmt.Printf("\n❌ %s\n", apperr.MessageOf(err))
	if cause := apperr.Cause(err); cause != "" {
		fmt.Printf("   Cause: %s\n", cause)
	}
	logger.Errorf("Analysis failed: %v", err)
	svc.Close()
	os.Exit(1)
}

func printProbe(path string) {
	info, err := intake.ProbeWAV(path)
	if err != nil {
		fmt.Printf("⚠️  No WAV header: %v\n", err)
		return
	}
	fmt.Println("🎛  WAV header:")
	fmt.Printf("   Sample rate: %d Hz\n", info.SampleRate)
	fmt.Printf("   Channels:    %d\n", info.Channels)
	fmt.Printf("   Bit depth:   %d\n", info.BitDepth)
	fmt.Printf("   Duration:    %s\n", info.Duration.Round(time.Millisecond))
}

func handleHistory(args []string) {
	cmd := flag.NewFlagSet("history", flag.ExitOnError)
	limit := cmd.Int("limit", 20, "Number of analyses to show")
	cmd.Parse(args)

	stor := openHistory()
	defer stor.Close()

	records, err := stor.ListAnalyses(*limit)
	if err != nil {
		fmt.Printf("❌ Failed to list analyses: %v\n", err)
		logger.Errorf("ListAnalyses failed: %v", err)
		os.Exit(1)
	}

	if len(records) == 0 {
		fmt.Println("\n📭 No analyses recorded")
		return
	}

	fmt.Printf("\n📚 %d most recent analyses:\n\n", len(records))
	for _, r := range records {
		fmt.Printf("%s  %-20s  %s  %s\n", r.ID, r.Outcome, humanize.Time(r.CreatedAt), r.OriginalName)
		if r.TopTitle != "" {
			fmt.Printf("    top: \"%s\" by %s (%d candidate(s))\n", r.TopTitle, r.TopArtist, r.CandidateCount)
		}
	}
}

func handleShow(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: acousticid show <analysis_id>")
		os.Exit(1)
	}

	stor := openHistory()
	defer stor.Close()

	r, err := stor.GetAnalysis(args[0])
	if err != nil {
		fmt.Printf("❌ Analysis not found: %s\n", args[0])
		logger.Warnf("GetAnalysis %s: %v", args[0], err)
		stor.Close()
		os.Exit(1)
	}

	fmt.Printf("\nID:         %s\n", r.ID)
	fmt.Printf("File:       %s (%s, %s)\n", r.OriginalName, r.MimeType, humanize.IBytes(uint64(r.SizeBytes)))
	fmt.Printf("Duration:   %.1fs\n", r.DurationSeconds)
	fmt.Printf("Outcome:    %s\n", r.Outcome)
	if r.Message != "" {
		fmt.Printf("Message:    %s\n", r.Message)
	}
	fmt.Printf("Candidates: %d\n", r.CandidateCount)
	if r.TopTitle != "" {
		fmt.Printf("Top match:  \"%s\" by %s\n", r.TopTitle, r.TopArtist)
	}
	fmt.Printf("When:       %s (%s)\n", r.CreatedAt.Local().Format(time.RFC1123), humanize.Time(r.CreatedAt))
}

func handleDelete(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: acousticid delete <analysis_id>")
		os.Exit(1)
	}

	stor := openHistory()
	defer stor.Close()

	if err := stor.DeleteAnalysis(args[0]); err != nil {
		fmt.Printf("❌ Failed to delete analysis: %v\n", err)
		logger.Errorf("DeleteAnalysis %s failed: %v", args[0], err)
		stor.Close()
		os.Exit(1)
	}

	fmt.Printf("\n✅ Deleted analysis %s\n", args[0])
}

func handlePrune(args []string) {
	cmd := flag.NewFlagSet("prune", flag.ExitOnError)
	olderThan := cmd.Duration("older-than", 30*24*time.Hour, "Delete analyses older than this")
	cmd.Parse(args)

	stor := openHistory()
	defer stor.Close()

	n, err := stor.PruneAnalyses(time.Now().Add(-*olderThan))
	if err != nil {
		fmt.Printf("❌ Failed to prune history: %v\n", err)
		logger.Errorf("PruneAnalyses failed: %v", err)
		stor.Close()
		os.Exit(1)
	}

	fmt.Printf("\n🧹 Removed %d analyses older than %s\n", n, *olderThan)
}

func printUsage() {
	fmt.Println("AcousticID - identify audio files with fpcalc and AcoustID")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --db <path>        History database (env: ACOUSTID_DB_PATH, default: acousticid.sqlite3)")
	fmt.Println("  --uploads <dir>    Transient copy directory (env: UPLOAD_DIR, default: system temp)")
	fmt.Println("  --fpcalc <path>    fpcalc binary (env: FPCALC_PATH, default: fpcalc)")
	fmt.Println("  --api-url <url>    AcoustID lookup endpoint (env: ACOUSTID_API_URL)")
	fmt.Println("\nThe analyze command needs ACOUSTID_API_KEY in the environment or a .env file.")
	fmt.Println("\nUsage:")
	fmt.Println("  acousticid [global-options] analyze <audio_file> [--raw] [--json] [--probe] [--top N]")
	fmt.Println("  acousticid [global-options] history [--limit N]")
	fmt.Println("  acousticid [global-options] show <analysis_id>")
	fmt.Println("  acousticid [global-options] delete <analysis_id>")
	fmt.Println("  acousticid [global-options] prune [--older-than 720h]")
	fmt.Printf("\nFiles up to %s are accepted.\n", humanize.IBytes(uint64(intake.DefaultMaxBytes)))
}
