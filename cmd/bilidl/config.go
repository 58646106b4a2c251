package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/simulot/bilidl/pkg/download"
	"github.com/simulot/bilidl/pkg/myhttp"
	"github.com/simulot/bilidl/pkg/mylog"
)

// Config holds settings from configuration file
type Config struct {
	Debug                bool         // Same as LogLevel DEBUG
	LogLevel             string       // ERROR,INFO,TRACE,DEBUG
	LogFile              string       // Log file, the console gets only errors when given
	Destination          string       // Where videos are saved
	TempDir              string       // Where ffmpeg files are written
	FFMpeg               string       // ffmpeg executable
	Concurrency          int          // Connections and resources at a time
	Timeout              textDuration // Of one request attempt
	ResourceTimeout      textDuration // Of one resource, 0 for none
	Retries              int          // Attempts of each request
	Backoff              textDuration // First delay between attempts
	UserAgent            string       //
	Proxy                string       // http://host:port
	ProxyUser            string       //
	ProxyPassword        string       //
	ProxyFromEnvironment bool         // Use HTTP_PROXY and friends when Proxy is empty
	VerifySSL            bool         // Check server certificates
	HitsPerSecond        float64      // 0 for no limit
	Cover                bool         // Save the cover next to the video
	Headless             bool         // No progression bar
}

// Handle Duration as string for JSON configation
type textDuration time.Duration

func (t textDuration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(t).String() + `"`), nil
}

func (t *textDuration) UnmarshalJSON(b []byte) error {
	if len(b) > 1 && b[0] == '"' {
		b = b[1 : len(b)-1]
	}
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*t = textDuration(v)
	return nil
}

func (t textDuration) String() string { return time.Duration(t).String() }

func (t *textDuration) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*t = textDuration(v)
	return nil
}

func (t *textDuration) Type() string { return "duration" }

func defaultConfig() *Config {
	return &Config{
		LogLevel:    "ERROR",
		Destination: ".",
		FFMpeg:      "ffmpeg",
		Concurrency: myhttp.DefaultPoolSize,
		Timeout:     textDuration(myhttp.DefaultTimeout),
		Retries:     myhttp.DefaultMaxAttempts,
		Backoff:     textDuration(250 * time.Millisecond),
		UserAgent:   myhttp.UserAgent,
	}
}

// WriteConfig create a JSON file with the given configuration
func WriteConfig(name string, c *Config) error {
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("can't write configuration file: %w", err)
	}
	e := json.NewEncoder(f)
	e.SetIndent("", "  ")
	err = e.Encode(c)
	if cErr := f.Close(); err == nil {
		err = cErr
	}
	return err
}

// ReadConfig read the JSON configuration file over the default configuration.
// A missing file gives the default configuration.
func ReadConfig(name string) (*Config, error) {
	conf := defaultConfig()
	if name == "" {
		return conf, nil
	}
	f, err := os.Open(name)
	if errors.Is(err, os.ErrNotExist) {
		return conf, nil
	}
	if err != nil {
		return nil, fmt.Errorf("can't open configuration file: %w", err)
	}
	defer f.Close()
	d := json.NewDecoder(f)
	d.DisallowUnknownFields()
	if err = d.Decode(conf); err != nil {
		return nil, fmt.Errorf("can't decode configuration file %s: %w", name, err)
	}
	return conf, nil
}

// Check the configuration and normalize paths
func (c *Config) Check() error {
	var err error
	if c.Debug {
		c.LogLevel = "DEBUG"
	}
	if _, err = mylog.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	for _, p := range []*string{&c.Destination, &c.TempDir, &c.LogFile} {
		if *p, err = download.PathClean(*p); err != nil {
			return err
		}
	}
	if c.Destination == "" {
		c.Destination = "."
	}
	if c.Proxy != "" {
		u, err := url.Parse(c.Proxy)
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid proxy %q", c.Proxy)
		}
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.Retries < 1 {
		return fmt.Errorf("retries must be at least 1, got %d", c.Retries)
	}
	if c.HitsPerSecond < 0 {
		return fmt.Errorf("hits per second can't be negative")
	}
	return nil
}
