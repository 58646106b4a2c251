package main

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/vbauerster/mpb/v4"
	"github.com/vbauerster/mpb/v4/decor"

	"github.com/simulot/bilidl/pkg/bilibili"
	"github.com/simulot/bilidl/pkg/models"
)

// Run downloads the references, and tells if all downloads succeeded
func (a *app) Run(ctx context.Context, refs []models.Ref) bool {
	if len(refs) == 0 {
		return true
	}
	var (
		pc  *mpb.Progress
		bar *mpb.Bar
	)
	if !a.Config.Headless {
		pc = mpb.NewWithContext(ctx, mpb.WithWidth(64))
	}
	if a.events != nil {
		defer a.events.Subscribe(a.onProgress)()
	}

	ok := true
	if a.parts {
		for _, r := range refs {
			results, err := a.client.FetchParts(ctx, r, a.begin, a.end)
			if err != nil {
				a.logger.Error().Printf("[BILIDL] %s: %s", r, err)
				ok = false
				continue
			}
			bar = a.newBar(pc, r.String(), len(results))
			for _, res := range results {
				ok = a.save(ctx, res, true) && ok
				a.increment(bar)
			}
		}
	} else {
		reqs := make([]bilibili.Request, 0, len(refs))
		for _, r := range refs {
			reqs = append(reqs, bilibili.Request{Ref: r, Part: 1})
		}
		bar = a.newBar(pc, "bilibili", len(reqs))
		for res := range a.client.FetchStream(ctx, reqs) {
			ok = a.save(ctx, res, false) && ok
			a.increment(bar)
		}
	}
	if pc != nil {
		pc.Wait()
	}
	return ok
}

func (a *app) onProgress(p models.Progress) {
	if p.Err != nil {
		a.logger.Debug().Printf("[BILIDL] %s part %d: job %s %s: %s", p.Ref, p.Part, p.JobID, p.Status, p.Err)
		return
	}
	a.logger.Trace().Printf("[BILIDL] %s part %d: %s", p.Ref, p.Part, p.Status)
}

func (a *app) newBar(pc *mpb.Progress, name string, total int) *mpb.Bar {
	if pc == nil {
		a.logger.Info().Printf("[BILIDL] %s: %d video(s) to download", name, total)
		return nil
	}
	return pc.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name(left(name, 20), decor.WC{W: 20 + 1, C: decor.DidentRight}),
			decor.CountersNoUnit(" %3d/%3d", decor.WC{W: 5 + 1, C: decor.DidentRight}),
		),
		mpb.AppendDecorators(decor.Percentage()),
	)
}

func (a *app) increment(bar *mpb.Bar) {
	if bar != nil {
		bar.Increment()
	}
}

func left(s string, l int) string {
	if len(s) > l {
		return s[:l]
	}
	return s
}

// save writes the result into the destination folder
func (a *app) save(ctx context.Context, res bilibili.Result, withPart bool) bool {
	if res.Err != nil {
		a.logger.Error().Printf("[BILIDL] %s: %s", res.Request.Ref, res.Err)
		return false
	}
	name := outputName(res, withPart)
	fn := filepath.Join(a.Config.Destination, name+".mp4")
	if err := os.MkdirAll(a.Config.Destination, 0o777); err != nil {
		a.logger.Error().Printf("[BILIDL] %s", err)
		return false
	}
	if err := os.WriteFile(fn, res.Data, 0o644); err != nil {
		a.logger.Error().Printf("[BILIDL] Can't write %s: %s", fn, err)
		return false
	}
	a.logger.Info().Printf("[BILIDL] %s downloaded.", fn)

	if !a.Config.Cover || res.Video == nil {
		return true
	}
	u, err := res.Video.CoverURL(ctx)
	if err != nil || u == "" {
		a.logger.Error().Printf("[BILIDL] %s has no cover: %v", res.Request.Ref, err)
		return true
	}
	b, err := res.Video.Cover(ctx)
	if err != nil {
		a.logger.Error().Printf("[BILIDL] Can't download %s's cover: %s", res.Request.Ref, err)
		return true
	}
	ext := path.Ext(strings.SplitN(u, "?", 2)[0])
	if ext == "" {
		ext = ".jpg"
	}
	tbn := filepath.Join(a.Config.Destination, name+ext)
	if err := os.WriteFile(tbn, b, 0o644); err != nil {
		a.logger.Error().Printf("[BILIDL] Can't write %s: %s", tbn, err)
	}
	return true
}

// outputName gives the file name of a result, without extension
func outputName(res bilibili.Result, withPart bool) string {
	name := res.Bvid
	if name == "" {
		name = res.Request.Ref.Code
	}
	if name == "" {
		name = sanitize(path.Base(res.Request.Ref.URL))
	}
	part := res.Request.Part
	if part == 0 {
		part = 1
	}
	if withPart || part > 1 {
		name = fmt.Sprintf("%s p%d", name, part)
	}
	return name
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(`<>:"/\|?*`, r) || r < ' ' {
			return '_'
		}
		return r
	}, s)
}
