// Package pagetest builds video pages for tests, in the layouts met on the site.
package pagetest

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Video is the content of the initial state
type Video struct {
	Aid        int64
	Bvid       string
	Title      string
	Desc       string
	Pic        string
	Parts      int
	Tags       []string
	PartTitles []string
}

const removeScript = `(function(){var s;(s=document.currentScript||document.scripts[document.scripts.length-1]).parentNode.removeChild(s);}());`

// InitialState gives the JSON of the initial state
func InitialState(v Video) string {
	pages := []map[string]interface{}{}
	for i, t := range v.PartTitles {
		pages = append(pages, map[string]interface{}{"page": i + 1, "part": t})
	}
	tags := []map[string]interface{}{}
	for _, t := range v.Tags {
		tags = append(tags, map[string]interface{}{"tag_name": t})
	}
	return marshal(map[string]interface{}{
		"aid":  v.Aid,
		"bvid": v.Bvid,
		"videoData": map[string]interface{}{
			"bvid":   v.Bvid,
			"aid":    v.Aid,
			"title":  v.Title,
			"desc":   v.Desc,
			"pic":    v.Pic,
			"videos": v.Parts,
			"pages":  pages,
		},
		"tags": tags,
	})
}

// DashPlayInfo gives the JSON of a structured play info. audio may be nil.
func DashPlayInfo(video, audio []string) string {
	dash := map[string]interface{}{
		"video": representations(video, 80),
		"audio": nil,
	}
	if audio != nil {
		dash["audio"] = representations(audio, 30280)
	}
	return marshal(map[string]interface{}{
		"code": 0,
		"data": map[string]interface{}{"dash": dash},
	})
}

// LegacyPlayInfo gives the JSON of a play info with progressive urls
func LegacyPlayInfo(urls []string) string {
	durl := []map[string]interface{}{}
	for i, u := range urls {
		durl = append(durl, map[string]interface{}{"order": i + 1, "url": u})
	}
	return marshal(map[string]interface{}{
		"code": 0,
		"data": map[string]interface{}{"durl": durl},
	})
}

// EmptyPlayInfo gives a play info without any stream
func EmptyPlayInfo() string {
	return marshal(map[string]interface{}{
		"code": 0,
		"data": map[string]interface{}{"quality": 80},
	})
}

func representations(urls []string, rank int) []map[string]interface{} {
	r := []map[string]interface{}{}
	for i, u := range urls {
		r = append(r, map[string]interface{}{"id": rank - i, "baseUrl": u})
	}
	return r
}

// Current is the layout with window.__playinfo__ in the 5th script of the head
// and window.__INITIAL_STATE__ in the 6th.
func Current(initialState, playInfo string) []byte {
	return page(4,
		"window.__playinfo__="+playInfo,
		"window.__INITIAL_STATE__="+initialState+";"+removeScript,
	)
}

// Older is the layout with the play info in the 4th script of the head
// and the initial state in the 5th, without the window variables.
func Older(initialState, playInfo string) []byte {
	return page(3,
		"var playinfo="+playInfo,
		"var state="+initialState+";"+removeScript,
	)
}

// page places the scripts after some filler scripts
func page(fillers int, scripts ...string) []byte {
	b := strings.Builder{}
	b.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\"><title>video</title>\n")
	for i := 0; i < fillers; i++ {
		b.WriteString("<script>var s" + strconv.Itoa(i) + "=" + strconv.Itoa(i) + ";</script>\n")
	}
	for _, s := range scripts {
		b.WriteString("<script>" + s + "</script>\n")
	}
	b.WriteString("</head><body><div id=\"app\"></div></body></html>")
	return []byte(b.String())
}

func marshal(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}
