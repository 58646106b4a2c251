package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/simulot/bilidl/pkg/bilibili"
	"github.com/simulot/bilidl/pkg/models"
)

func TestReadConfig(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		c, err := ReadConfig(filepath.Join(t.TempDir(), "none.json"))
		if err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		if c.Retries != 3 || c.Concurrency != 8 || time.Duration(c.Timeout) != 2333*time.Second {
			t.Errorf("Expecting default configuration, got %#v", c)
		}
	})
	t.Run("file", func(t *testing.T) {
		name := filepath.Join(t.TempDir(), "bilidl.json")
		err := os.WriteFile(name, []byte(`{"Retries":5,"Backoff":"1s","Destination":"/videos","Cover":true}`), 0o644)
		if err != nil {
			t.Fatal(err)
		}
		c, err := ReadConfig(name)
		if err != nil {
			t.Fatalf("Unexpected error: %s", err)
		}
		if c.Retries != 5 || time.Duration(c.Backoff) != time.Second || c.Destination != "/videos" || !c.Cover {
			t.Errorf("Unexpected configuration %#v", c)
		}
		if c.Concurrency != 8 {
			t.Errorf("Expecting defaults for missing settings, got concurrency %d", c.Concurrency)
		}
	})
	t.Run("unknown setting", func(t *testing.T) {
		name := filepath.Join(t.TempDir(), "bilidl.json")
		if err := os.WriteFile(name, []byte(`{"Retry":5}`), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := ReadConfig(name); err == nil {
			t.Errorf("Expecting an error")
		}
	})
}

func TestWriteConfig(t *testing.T) {
	name := filepath.Join(t.TempDir(), "bilidl.json")
	want := defaultConfig()
	want.ResourceTimeout = textDuration(10 * time.Minute)
	if err := WriteConfig(name, want); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	got, err := ReadConfig(name)
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if *got != *want {
		t.Errorf("Expecting \n%#v,\n\tgot\n\t%#v", want, got)
	}
}

func TestFlagsOverrideConfig(t *testing.T) {
	o, err := parseArgs([]string{"--retries", "7", "--timeout", "30s", "-d", "/tmp/videos", "BV1xx411c7mD", "av170001"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	c := defaultConfig()
	c.Retries = 2
	c.UserAgent = "from file"
	o.apply(c)
	if c.Retries != 7 {
		t.Errorf("Expecting retries from the command line, got %d", c.Retries)
	}
	if time.Duration(c.Timeout) != 30*time.Second {
		t.Errorf("Expecting timeout from the command line, got %s", c.Timeout)
	}
	if c.Destination != "/tmp/videos" {
		t.Errorf("Expecting destination from the command line, got %s", c.Destination)
	}
	if c.UserAgent != "from file" {
		t.Errorf("Expecting user agent from the file, got %s", c.UserAgent)
	}
	if len(o.Refs) != 2 || o.Refs[1] != "av170001" {
		t.Errorf("Unexpected refs %v", o.Refs)
	}
}

func TestCheck(t *testing.T) {
	c := defaultConfig()
	c.Debug = true
	c.Destination = "/videos/./bilibili/"
	if err := c.Check(); err != nil {
		t.Fatalf("Unexpected error: %s", err)
	}
	if c.LogLevel != "DEBUG" || c.Destination != "/videos/bilibili" {
		t.Errorf("Unexpected configuration %#v", c)
	}

	for name, fn := range map[string]func(c *Config){
		"log level":   func(c *Config) { c.LogLevel = "CHATTY" },
		"proxy":       func(c *Config) { c.Proxy = "::" },
		"concurrency": func(c *Config) { c.Concurrency = 0 },
		"retries":     func(c *Config) { c.Retries = 0 },
	} {
		c := defaultConfig()
		fn(c)
		if err := c.Check(); err == nil {
			t.Errorf("%s: expecting an error", name)
		}
	}
}

func TestParseParts(t *testing.T) {
	tests := []struct {
		s          string
		begin, end int
		wantErr    bool
	}{
		{"", 0, 0, false},
		{"2", 2, 2, false},
		{"1-3", 1, 3, false},
		{"2-", 2, 0, false},
		{"0", 0, 0, true},
		{"3-1", 0, 0, true},
		{"a-b", 0, 0, true},
	}
	for _, tt := range tests {
		begin, end, err := parseParts(tt.s)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseParts(%q) error = %v, wantErr %v", tt.s, err, tt.wantErr)
			continue
		}
		if begin != tt.begin || end != tt.end {
			t.Errorf("parseParts(%q) = %d, %d, want %d, %d", tt.s, begin, end, tt.begin, tt.end)
		}
	}
}

func TestOutputName(t *testing.T) {
	ref := models.MustParseRef("av170001")
	tests := []struct {
		name     string
		res      bilibili.Result
		withPart bool
		want     string
	}{
		{"bvid", bilibili.Result{Bvid: "BV1xx411c7mD", Request: bilibili.Request{Ref: ref}}, false, "BV1xx411c7mD"},
		{"code", bilibili.Result{Request: bilibili.Request{Ref: ref, Part: 1}}, false, "av170001"},
		{"part", bilibili.Result{Bvid: "BV1xx411c7mD", Request: bilibili.Request{Ref: ref, Part: 2}}, false, "BV1xx411c7mD p2"},
		{"parts mode", bilibili.Result{Bvid: "BV1xx411c7mD", Request: bilibili.Request{Ref: ref, Part: 1}}, true, "BV1xx411c7mD p1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := outputName(tt.res, tt.withPart); got != tt.want {
				t.Errorf("outputName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunWithoutRefs(t *testing.T) {
	stderr := &bytes.Buffer{}
	config := filepath.Join(t.TempDir(), "bilidl.json")
	if got := run(context.Background(), []string{"--config", config}, stderr); got != 2 {
		t.Errorf("Expecting exit code 2, got %d", got)
	}
	if got := run(context.Background(), []string{"--config", config, "--retries", "4", "--write-config"}, stderr); got != 0 {
		t.Errorf("Expecting exit code 0, got %d", got)
	}
	c, err := ReadConfig(config)
	if err != nil || c.Retries != 4 {
		t.Errorf("Expecting the written configuration, got %#v, %v", c, err)
	}
}
