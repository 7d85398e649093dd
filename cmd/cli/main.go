package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	"github.com/himanishpuri/SoundMeta/pkg/logger"
	"github.com/himanishpuri/SoundMeta/pkg/models"
	"github.com/himanishpuri/SoundMeta/pkg/soundmeta"
	"github.com/himanishpuri/SoundMeta/pkg/soundmeta/audio"
	"github.com/himanishpuri/SoundMeta/pkg/utils"
)

// Global flags
var (
	dbPath     string
	tempDir    string
	fpcalcPath string
	ffmpegPath string
	logLevel   string
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func registerFlags() {
	flag.StringVar(&dbPath, "db", getEnvOrDefault("SOUNDMETA_DB_PATH", "soundmeta.sqlite3"), "Path to the SQLite history database (empty disables history)")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("SOUNDMETA_TEMP_DIR", os.TempDir()), "Directory for temporary audio files")
	flag.StringVar(&fpcalcPath, "fpcalc", getEnvOrDefault("FPCALC_PATH", "fpcalc"), "Path to the fpcalc binary")
	flag.StringVar(&ffmpegPath, "ffmpeg", getEnvOrDefault("FFMPEG_PATH", "ffmpeg"), "Path to the ffmpeg binary")
	flag.StringVar(&logLevel, "log-level", getEnvOrDefault("LOG_LEVEL", "warn"), "Log level (debug, info, warn, error)")
}

// createService creates a SoundMeta service with configured options
func createService() (soundmeta.Service, error) {
	return soundmeta.NewService(
		soundmeta.WithAcoustIDKey(os.Getenv("ACOUSTID_API_KEY")),
		soundmeta.WithAudDToken(os.Getenv("AUDD_API_TOKEN")),
		soundmeta.WithFpcalcPath(fpcalcPath),
		soundmeta.WithFFmpegPath(ffmpegPath),
		soundmeta.WithTempDir(tempDir),
		soundmeta.WithDBPath(dbPath),
	)
}

func main() {
	_ = godotenv.Load()
	registerFlags()
	flag.Usage = printUsage
	flag.Parse()

	log := logger.GetLogger()
	if level, ok := logger.ParseLevel(logLevel); ok {
		log.SetLevel(level)
	}

	printBanner()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command, args := flag.Arg(0), flag.Args()[1:]
	log.Infof("Executing command: %s", command)

	switch command {
	case "recognize":
		handleRecognize(args)
	case "check":
		handleCheck(args)
	case "fingerprint":
		handleFingerprint(args)
	case "history":
		handleHistory(args)
	case "stats":
		handleStats()
	case "tone":
		handleTone(args)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printBanner() {
	banner := `
  ____                        _ __  __      _        
 / ___|  ___  _   _ _ __   __| |  \/  | ___| |_ __ _ 
 \___ \ / _ \| | | | '_ \ / _' | |\/| |/ _ \ __/ _' |
  ___) | (_) | |_| | | | | (_| | |  | |  __/ || (_| |
 |____/ \___/ \__,_|_| |_|\__,_|_|  |_|\___|\__\__,_|

          Music Recognition CLI Tool
`
	fmt.Println(banner)
}

// splitArgs separates the leading positional argument from trailing flags.
func splitArgs(args []string) (string, []string) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return args[0], args[1:]
	}
	return "", args
}

func fail(format string, args ...any) {
	fmt.Printf("❌ "+format+"\n", args...)
	os.Exit(1)
}

type recognizeOptions struct {
	asJSON  bool
	timeout time.Duration
}

func handleRecognize(args []string) {
	audioPath, flagArgs := splitArgs(args)
	cmd := flag.NewFlagSet("recognize", flag.ExitOnError)
	asJSON := cmd.Bool("json", false, "Print the raw outcome as JSON")
	timeout := cmd.Duration("timeout", 2*time.Minute, "Overall timeout")
	cmd.Parse(flagArgs)

	if audioPath == "" {
		fmt.Println("Usage: soundmeta recognize <audio.wav> [--json] [--timeout 2m]")
		os.Exit(1)
	}
	if _, err := os.Stat(audioPath); err != nil {
		fail("Cannot read %s: %v", audioPath, err)
	}

	svc, err := createService()
	if err != nil {
		fail("Failed to create service: %v", err)
	}
	code := recognizeFile(svc, tempDir, audioPath, recognizeOptions{asJSON: *asJSON, timeout: *timeout})
	svc.Close()
	if code != 0 {
		os.Exit(code)
	}
}

// recognizeFile runs the pipeline on a private copy of audioPath, so the
// user's file is never deleted. Every temp file is gone when it returns.
// The result is the process exit code: 1 for local errors, 2 for no match.
func recognizeFile(svc soundmeta.Service, scratchDir, audioPath string, opts recognizeOptions) int {
	scope := utils.NewTempScope(scratchDir)
	defer scope.Release()

	private, err := scope.NewPath(filepath.Ext(audioPath))
	if err != nil {
		fmt.Printf("❌ Failed to prepare temp file: %v\n", err)
		return 1
	}
	size, err := utils.CopyFile(audioPath, private)
	if err != nil {
		fmt.Printf("❌ Failed to copy input: %v\n", err)
		return 1
	}

	if !opts.asJSON {
		fmt.Printf("🔍 Recognizing %s (%s)...\n", filepath.Base(audioPath), humanize.IBytes(uint64(size)))
	}

	timeout := opts.timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	out, err := svc.Recognize(ctx, models.UploadedAudio{
		Path:     private,
		Filename: filepath.Base(audioPath),
		MimeType: "audio/wav",
		Size:     size,
	})
	if err != nil {
		logger.Errorf("Recognize failed: %v", err)
	}

	if opts.asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(out)
		if !out.Success {
			return 2
		}
		return 0
	}

	for _, w := range out.Warnings {
		fmt.Printf("⚠️  %s\n", w)
	}

	if !out.Success {
		fmt.Printf("\n❌ %s\n", out.Message)
		if out.Error != nil {
			fmt.Printf("   Reason: %s/%s\n", out.Error.Kind, out.Error.Code)
			if out.Error.Detail != "" {
				fmt.Printf("   Detail: %s\n", out.Error.Detail)
			}
		}
		return 2
	}

	m := out.Recognition
	fmt.Printf("\n✅ %s\n\n", out.Message)
	fmt.Printf("   🎵 Title:  %s\n", m.Title)
	fmt.Printf("   👤 Artist: %s\n", m.Artist)
	if m.Album != "" {
		fmt.Printf("   💿 Album:  %s\n", m.Album)
	}
	if m.Year != "" {
		fmt.Printf("   📅 Year:   %s\n", m.Year)
	}
	if m.AlbumArt != "" {
		fmt.Printf("   🖼  Art:    %s\n", m.AlbumArt)
	}
	return 0
}

func handleCheck(args []string) {
	audioPath, _ := splitArgs(args)
	if audioPath == "" {
		fmt.Println("Usage: soundmeta check <audio.wav>")
		os.Exit(1)
	}

	adm, err := audio.CheckAdmission(audioPath, audio.DefaultAdmissionPolicy())
	if adm != nil && adm.Channels > 0 {
		fmt.Printf("   Channels:    %d\n", adm.Channels)
		fmt.Printf("   Sample rate: %d Hz\n", adm.SampleRate)
		fmt.Printf("   Bit depth:   %d\n", adm.BitsPerSample)
		fmt.Printf("   PCM:         %t\n", adm.PCM)
		fmt.Printf("   Duration:    %.2fs\n", adm.Duration)
		fmt.Printf("   Size:        %s\n", humanize.IBytes(uint64(adm.SizeBytes)))
	}
	if err != nil {
		fail("Rejected: %v", err)
	}
	for _, w := range adm.Warnings {
		fmt.Printf("⚠️  %s\n", w)
	}
	fmt.Println("\n✅ Clip is acceptable for recognition")
}

func handleFingerprint(args []string) {
	audioPath, _ := splitArgs(args)
	if audioPath == "" {
		fmt.Println("Usage: soundmeta fingerprint <audio.wav>")
		os.Exit(1)
	}

	svc, err := soundmeta.NewService(
		soundmeta.WithFpcalcPath(fpcalcPath),
		soundmeta.WithDBPath(""),
		soundmeta.WithLogger(logger.Nop()),
	)
	if err != nil {
		fail("Failed to create service: %v", err)
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	fp, err := svc.Fingerprint(ctx, audioPath)
	if err != nil {
		svc.Close()
		fail("Fingerprinting failed: %v", err)
	}
	fmt.Printf("Duration:    %ds\n", fp.Duration)
	fmt.Printf("Fingerprint: %s\n", fp.Token)
}

func handleHistory(args []string) {
	cmd := flag.NewFlagSet("history", flag.ExitOnError)
	limit := cmd.Int("limit", 20, "Number of entries to show")
	requestID := cmd.String("id", "", "Show a single recognition by request id")
	cmd.Parse(args)

	if dbPath == "" {
		fail("History is disabled (empty --db)")
	}

	svc, err := createService()
	if err != nil {
		fail("Failed to create service: %v", err)
	}
	defer svc.Close()

	if *requestID != "" {
		e, err := svc.HistoryEntry(*requestID)
		if err != nil {
			svc.Close()
		fail("Failed to read history: %v", err)
		}
		out, _ := json.MarshalIndent(e, "", "  ")
		fmt.Println(string(out))
		return
	}

	entries, err := svc.History(*limit)
	if err != nil {
		svc.Close()
		fail("Failed to read history: %v", err)
	}
	if len(entries) == 0 {
		fmt.Println("📭 No recognitions recorded yet")
		return
	}

	fmt.Printf("📚 Last %d recognition(s):\n\n", len(entries))
	for i, e := range entries {
		when := humanize.Time(e.CreatedAt)
		if e.Success {
			fmt.Printf("%d. ✅ \"%s\" by %s via %s\n", i+1, e.Title, e.Artist, e.Source)
		} else {
			fmt.Printf("%d. ❌ %s (%s)\n", i+1, e.FailureKind, e.FailureCode)
		}
		fmt.Printf("   %s, %s, %dms, %s\n\n", e.Filename, humanize.IBytes(uint64(e.SizeBytes)), e.ProcessingMs, when)
	}
}

func handleStats() {
	if dbPath == "" {
		fail("History is disabled (empty --db)")
	}

	svc, err := createService()
	if err != nil {
		fail("Failed to create service: %v", err)
	}
	defer svc.Close()

	st, err := svc.Stats()
	if err != nil {
		svc.Close()
		fail("Failed to read stats: %v", err)
	}

	fmt.Printf("📊 Recognitions: %s\n", humanize.Comma(st.Total))
	if st.Total > 0 {
		fmt.Printf("   Matched:       %s (%.1f%%)\n", humanize.Comma(st.Succeeded), 100*float64(st.Succeeded)/float64(st.Total))
	}
	for source, n := range st.BySource {
		fmt.Printf("   via %-10s %s\n", source+":", humanize.Comma(n))
	}
}

func handleTone(args []string) {
	outPath, flagArgs := splitArgs(args)
	cmd := flag.NewFlagSet("tone", flag.ExitOnError)
	seconds := cmd.Float64("seconds", 10, "Clip length in seconds")
	rate := cmd.Int("rate", 44100, "Sample rate in Hz")
	channels := cmd.Int("channels", 1, "Channel count")
	freq := cmd.Float64("freq", 440, "Tone frequency in Hz")
	cmd.Parse(flagArgs)

	if outPath == "" {
		fmt.Println("Usage: soundmeta tone <out.wav> [--seconds 10] [--rate 44100] [--channels 1] [--freq 440]")
		os.Exit(1)
	}

	spec := audio.ToneSpec{SampleRate: *rate, Channels: *channels, BitDepth: 16, Seconds: *seconds, Frequency: *freq}
	if err := audio.WriteTone(outPath, spec); err != nil {
		fail("Failed to write tone: %v", err)
	}
	size, _ := utils.FileSize(outPath)
	fmt.Printf("✅ Wrote %s (%.1fs, %d Hz, %s)\n", outPath, *seconds, *rate, humanize.IBytes(uint64(size)))
}

func printUsage() {
	fmt.Println("SoundMeta - Music Recognition CLI")
	fmt.Println("\nGlobal Options:")
	fmt.Println("  --db <path>        SQLite history database (env: SOUNDMETA_DB_PATH, default: soundmeta.sqlite3)")
	fmt.Println("  --temp <dir>       Temporary directory (env: SOUNDMETA_TEMP_DIR)")
	fmt.Println("  --fpcalc <path>    fpcalc binary (env: FPCALC_PATH)")
	fmt.Println("  --ffmpeg <path>    ffmpeg binary (env: FFMPEG_PATH)")
	fmt.Println("  --log-level <lvl>  debug, info, warn, error (env: LOG_LEVEL)")
	fmt.Println("\nCredentials are read from ACOUSTID_API_KEY and AUDD_API_TOKEN (a .env file is loaded if present).")
	fmt.Println("\nUsage:")
	fmt.Println("  soundmeta [global-options] recognize <audio.wav> [--json] [--timeout 2m]")
	fmt.Println("  soundmeta [global-options] check <audio.wav>")
	fmt.Println("  soundmeta [global-options] fingerprint <audio.wav>")
	fmt.Println("  soundmeta [global-options] history [--limit 20] [--id <request-id>]")
	fmt.Println("  soundmeta [global-options] stats")
	fmt.Println("  soundmeta tone <out.wav> [--seconds 10] [--rate 44100]")
	fmt.Println("\nExamples:")
	fmt.Println("  soundmeta tone /tmp/a.wav --seconds 8")
	fmt.Println("  soundmeta check /tmp/a.wav")
	fmt.Println("  soundmeta --log-level info recognize clip.wav")
}
