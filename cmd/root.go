package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/yuanxie/sed-dl/internal/auth"
	"github.com/yuanxie/sed-dl/internal/config"
	"github.com/yuanxie/sed-dl/internal/output"
	"github.com/yuanxie/sed-dl/internal/scheduler"
	"github.com/yuanxie/sed-dl/internal/utils"
)

var (
	outputDir   string
	workers     int
	selection   string
	filterExts  []string
	quality     string
	audioFormat string
	flat        bool
	force       bool
	tokenFlag   string
	timeout     time.Duration
	retries     int
	debug       bool
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "sed-dl",
	Short:   "sed-dl downloads courses, classroom materials and textbooks from the smartedu platform",
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		output.InitLogger(debug)
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&outputDir, "output", "o", config.DefaultSaveDir, "Directory to save downloads into")
	pf.IntVarP(&workers, "workers", "w", 4, "Number of parallel downloads")
	pf.StringVar(&selection, "select", "", "Pick files by 1-based index (e.g. '1,3,5-8' or 'all')")
	pf.StringSliceVar(&filterExts, "filter-ext", nil, "Keep only files with these extensions (e.g. pdf,mp3)")
	pf.StringVarP(&quality, "quality", "q", "best", "Video quality: best, worst or a height like 720")
	pf.StringVar(&audioFormat, "audio-format", "", "Companion audio format to keep (e.g. mp3, ogg, all)")
	pf.BoolVar(&flat, "flat", false, "Save everything directly under the output directory")
	pf.BoolVarP(&force, "force-redownload", "f", false, "Redownload even when a valid local copy exists")
	pf.StringVar(&tokenFlag, "token", "", "Access token (overrides ACCESS_TOKEN and the config file)")
	pf.DurationVarP(&timeout, "timeout", "t", 0, "Request timeout (eg. 30s, 2m); 0 uses the configured default")
	pf.IntVar(&retries, "retries", 0, "Retry attempts per file; 0 uses the configured default")
	pf.BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newURLCmd())
	rootCmd.AddCommand(newCourseCmd())
	rootCmd.AddCommand(newClassroomCmd())
	rootCmd.AddCommand(newTextbookCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newCleanCmd())
}

// runtime bundles the pieces every download command needs.
type runtime struct {
	cfg    *config.External
	client *utils.HTTPClient
	auth   *auth.Resolver
}

func newRuntime() (*runtime, error) {
	cfg, err := config.LoadOrCreate()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	connectTimeout := cfg.ConnectTimeout()
	reqTimeout := cfg.Timeout()
	if timeout > 0 {
		reqTimeout = timeout
	}
	client := utils.NewHTTPClient(utils.HTTPClientConfig{
		ConnectTimeout: connectTimeout,
		Timeout:        reqTimeout,
	})
	resolver := auth.NewResolver(tokenFlag, promptToken)
	if resolver.Token() != "" {
		output.PrintDetail(fmt.Sprintf("using access token from %s", resolver.Source()))
	}
	return &runtime{cfg: cfg, client: client, auth: resolver}, nil
}

func (r *runtime) options() scheduler.Options {
	maxRetries := r.cfg.MaxRetries()
	if retries > 0 {
		maxRetries = retries
	}
	return scheduler.Options{
		Config:      r.cfg,
		Client:      r.client,
		Auth:        r.auth,
		OutputRoot:  outputDir,
		Workers:     workers,
		Retries:     maxRetries,
		Quality:     quality,
		AudioFormat: audioFormat,
		Selection:   selection,
		FilterExts:  filterExts,
		Flat:        flat,
		Force:       force,
	}
}

// runTasks drives a full run and maps failures to a non-zero exit.
func runTasks(cmd *cobra.Command, tasks []utils.Task) {
	if len(tasks) == 0 {
		output.PrintError("nothing to do")
		os.Exit(1)
	}
	rt, err := newRuntime()
	if err != nil {
		output.PrintError(err.Error())
		os.Exit(1)
	}
	summary, err := scheduler.Run(cmd.Context(), tasks, rt.options())
	if err != nil {
		output.PrintError(err.Error())
		os.Exit(1)
	}
	if summary.Failures() {
		os.Exit(1)
	}
}
