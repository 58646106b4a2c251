package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"
)

// options are the command line settings
type options struct {
	ConfigFile  string
	WriteConfig bool
	Parts       string
	Refs        []string

	flags Config // Values given on the command line
	fs    *flag.FlagSet
}

func newFlagSet(o *options, output io.Writer) *flag.FlagSet {
	d := defaultConfig()
	fs := flag.NewFlagSet("bilidl", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&o.ConfigFile, "config", "bilidl.json", "Configuration file name.")
	fs.BoolVar(&o.WriteConfig, "write-config", false, "Write the configuration into the configuration file, and stop.")
	fs.StringVarP(&o.Parts, "parts", "p", "", "Parts to download: N, N-M, or N- for all parts from N.")

	fs.BoolVar(&o.flags.Debug, "debug", false, "Debug mode.")
	fs.StringVarP(&o.flags.LogLevel, "log-level", "l", d.LogLevel, "Log level (INFO,TRACE,ERROR,DEBUG)")
	fs.StringVar(&o.flags.LogFile, "log", "", "Give the log file name.")
	fs.StringVarP(&o.flags.Destination, "destination", "d", d.Destination, "Destination folder of videos.")
	fs.StringVar(&o.flags.TempDir, "temp-dir", "", "Folder for temporary files.")
	fs.StringVar(&o.flags.FFMpeg, "ffmpeg", d.FFMpeg, "ffmpeg executable.")
	fs.IntVarP(&o.flags.Concurrency, "max-tasks", "m", d.Concurrency, "Maximum concurrent downloads and connections at a time.")
	o.flags.Timeout = d.Timeout
	fs.Var(&o.flags.Timeout, "timeout", "Timeout of a request.")
	fs.Var(&o.flags.ResourceTimeout, "resource-timeout", "Timeout of a video, 0 for none.")
	fs.IntVar(&o.flags.Retries, "retries", d.Retries, "Attempts of each request.")
	o.flags.Backoff = d.Backoff
	fs.Var(&o.flags.Backoff, "backoff", "First delay between attempts, doubled after each attempt.")
	fs.StringVar(&o.flags.UserAgent, "user-agent", d.UserAgent, "User agent.")
	fs.StringVar(&o.flags.Proxy, "proxy", "", "Proxy url.")
	fs.StringVar(&o.flags.ProxyUser, "proxy-user", "", "Proxy user.")
	fs.StringVar(&o.flags.ProxyPassword, "proxy-password", "", "Proxy password.")
	fs.BoolVar(&o.flags.ProxyFromEnvironment, "env-proxy", false, "Use the proxy given by the environment.")
	fs.BoolVar(&o.flags.VerifySSL, "verify-ssl", false, "Check server certificates.")
	fs.Float64Var(&o.flags.HitsPerSecond, "hits", 0, "Maximum requests per second, 0 for no limit.")
	fs.BoolVar(&o.flags.Cover, "cover", false, "Save the cover image next to the video.")
	fs.BoolVar(&o.flags.Headless, "headless", false, "Headless mode. Progression bars are not displayed.")

	fs.Usage = func() {
		fmt.Fprintln(output, "Download videos from bilibili.com")
		fmt.Fprintln(output)
		fmt.Fprintln(output, filepath.Base(os.Args[0]), "[ options... ] BVID|URL...")
		fmt.Fprintln(output)
		fmt.Fprintln(output, "  example:  ", filepath.Base(os.Args[0]), "--parts 1-3 BV1xx411c7mD")
		fmt.Fprintln(output)
		fmt.Fprintln(output, "  options:")
		fs.PrintDefaults()
	}
	return fs
}

func parseArgs(args []string, output io.Writer) (*options, error) {
	o := &options{}
	o.fs = newFlagSet(o, output)
	if err := o.fs.Parse(args); err != nil {
		return nil, err
	}
	o.Refs = o.fs.Args()
	return o, nil
}

// apply copies the values given on the command line over the configuration
func (o *options) apply(c *Config) {
	set := func(name string, fn func()) {
		if o.fs.Changed(name) {
			fn()
		}
	}
	f := &o.flags
	set("debug", func() { c.Debug = f.Debug })
	set("log-level", func() { c.LogLevel = f.LogLevel })
	set("log", func() { c.LogFile = f.LogFile })
	set("destination", func() { c.Destination = f.Destination })
	set("temp-dir", func() { c.TempDir = f.TempDir })
	set("ffmpeg", func() { c.FFMpeg = f.FFMpeg })
	set("max-tasks", func() { c.Concurrency = f.Concurrency })
	set("timeout", func() { c.Timeout = f.Timeout })
	set("resource-timeout", func() { c.ResourceTimeout = f.ResourceTimeout })
	set("retries", func() { c.Retries = f.Retries })
	set("backoff", func() { c.Backoff = f.Backoff })
	set("user-agent", func() { c.UserAgent = f.UserAgent })
	set("proxy", func() { c.Proxy = f.Proxy })
	set("proxy-user", func() { c.ProxyUser = f.ProxyUser })
	set("proxy-password", func() { c.ProxyPassword = f.ProxyPassword })
	set("env-proxy", func() { c.ProxyFromEnvironment = f.ProxyFromEnvironment })
	set("verify-ssl", func() { c.VerifySSL = f.VerifySSL })
	set("hits", func() { c.HitsPerSecond = f.HitsPerSecond })
	set("cover", func() { c.Cover = f.Cover })
	set("headless", func() { c.Headless = f.Headless })
}

// parseParts reads N, N-M or N-. An end of 0 stands for the last part.
func parseParts(s string) (begin, end int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, nil
	}
	first, last, isRange := strings.Cut(s, "-")
	if begin, err = strconv.Atoi(strings.TrimSpace(first)); err != nil || begin < 1 {
		return 0, 0, fmt.Errorf("invalid parts %q", s)
	}
	if !isRange {
		return begin, begin, nil
	}
	last = strings.TrimSpace(last)
	if last == "" {
		return begin, 0, nil
	}
	if end, err = strconv.Atoi(last); err != nil || end < begin {
		return 0, 0, fmt.Errorf("invalid parts %q", s)
	}
	return begin, end, nil
}
