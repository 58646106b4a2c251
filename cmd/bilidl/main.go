package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	flag "github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/simulot/bilidl/pkg/bilibili"
	"github.com/simulot/bilidl/pkg/dispatcher"
	"github.com/simulot/bilidl/pkg/download"
	"github.com/simulot/bilidl/pkg/models"
	"github.com/simulot/bilidl/pkg/myhttp"
	"github.com/simulot/bilidl/pkg/mylog"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type app struct {
	Config *Config
	logger *mylog.MyLog
	client *bilibili.Client
	events *dispatcher.Dispatcher
	begin  int // First part
	end    int // Last part, 0 for the last one
	parts  bool
}

func main() {
	fmt.Printf("%s: %v, commit %v, built at %v\n", filepath.Base(os.Args[0]), version, commit, date)

	// trap Ctrl+C and call cancel on the context
	ctx, cancel := context.WithCancel(context.Background())
	breakChannel := make(chan os.Signal, 1)
	signal.Notify(breakChannel, os.Interrupt)
	defer func() {
		signal.Stop(breakChannel)
		cancel()
	}()
	go func() {
		select {
		case <-breakChannel:
			cancel()
		case <-ctx.Done():
		}
	}()

	os.Exit(run(ctx, os.Args[1:], os.Stderr))
}

// run is the whole program, it gives the exit code
func run(ctx context.Context, args []string, stderr io.Writer) int {
	o, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	conf, err := ReadConfig(o.ConfigFile)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	o.apply(conf)
	if o.WriteConfig {
		if err := WriteConfig(o.ConfigFile, conf); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		return 0
	}
	if err := conf.Check(); err != nil {
		fmt.Fprintln(stderr, "invalid configuration:", err)
		return 1
	}
	if len(o.Refs) == 0 {
		o.fs.Usage()
		return 2
	}

	a := &app{Config: conf}
	if a.begin, a.end, err = parseParts(o.Parts); err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	a.parts = o.Parts != ""
	if err := a.Initialize(stderr); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	refs := []models.Ref{}
	failed := false
	for _, s := range o.Refs {
		r, err := models.ParseRef(s)
		if err != nil {
			a.logger.Error().Printf("[BILIDL] %s", err)
			failed = true
			continue
		}
		refs = append(refs, r)
	}
	if !a.Run(ctx, refs) {
		failed = true
	}
	if failed {
		return 1
	}
	return 0
}

// Initialize builds the logger and the client from the configuration
func (a *app) Initialize(stderr io.Writer) error {
	c := a.Config
	// Without log file, the console gets all messages at the configured level
	var console, file mylog.Logger = nil, log.New(stderr, "", log.LstdFlags)
	if c.LogFile != "" {
		f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("can't open log file: %w", err)
		}
		console, file = file, log.New(f, "", log.LstdFlags)
	}
	l, err := mylog.NewLog(c.LogLevel, console, file)
	if err != nil {
		return err
	}
	a.logger = l

	// Check ffmpeg presence
	ffmpeg, err := exec.LookPath(c.FFMpeg)
	if err != nil {
		return fmt.Errorf("missing ffmpeg on your system, it's required to combine video and audio: %w", err)
	}
	a.logger.Debug().Printf("[BILIDL] FFMPEG path: %q", ffmpeg)

	httpOptions := []func(*myhttp.Client){
		myhttp.WithUserAgent(c.UserAgent),
		myhttp.WithPoolSize(c.Concurrency),
		myhttp.WithMaxAttempts(c.Retries),
		myhttp.WithTimeout(time.Duration(c.Timeout)),
		myhttp.WithBackoff(time.Duration(c.Backoff), 16*time.Duration(c.Backoff)),
		myhttp.WithTLSVerify(c.VerifySSL),
		myhttp.WithProxyFromEnvironment(c.ProxyFromEnvironment),
		myhttp.WithLogger(l.Debug()),
	}
	if c.Proxy != "" {
		p, err := url.Parse(c.Proxy)
		if err != nil {
			return fmt.Errorf("invalid proxy: %w", err)
		}
		httpOptions = append(httpOptions, myhttp.WithProxy(p, c.ProxyUser, c.ProxyPassword))
	}
	if c.HitsPerSecond > 0 {
		burst := int(c.HitsPerSecond)
		if burst < 1 {
			burst = 1
		}
		httpOptions = append(httpOptions, myhttp.WithLimiter(rate.NewLimiter(rate.Limit(c.HitsPerSecond), burst)))
	}

	a.events = dispatcher.NewDispatcher()
	a.client = bilibili.NewClient(
		bilibili.WithLogger(l),
		bilibili.WithPublisher(a.events),
		bilibili.WithHTTPOptions(httpOptions...),
		bilibili.WithConcurrency(c.Concurrency),
		bilibili.WithResourceTimeout(time.Duration(c.ResourceTimeout)),
		bilibili.WithMuxer(download.NewMuxer(
			download.WithFFMPEG(ffmpeg),
			download.WithTempDir(c.TempDir),
			download.WithLogger(l.Debug()),
		)),
	)
	return nil
}
