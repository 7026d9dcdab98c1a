// Package useragent picks the browser user-agent string the client reports.
package useragent

import (
	"math/rand"
	"strings"
)

var chromeVersions = []string{
	"124.0.0.0",
	"125.0.0.0",
	"126.0.0.0",
	"127.0.0.0",
	"128.0.0.0",
	"129.0.0.0",
	"130.0.0.0",
}

var platforms = []string{
	"Windows NT 10.0; Win64; x64",
	"Macintosh; Intel Mac OS X 10_15_7",
	"X11; Linux x86_64",
}

// Random returns a desktop Chrome user agent drawn from r.
func Random(r *rand.Rand) string {
	platform := platforms[r.Intn(len(platforms))]
	version := chromeVersions[r.Intn(len(chromeVersions))]

	var b strings.Builder
	b.WriteString("Mozilla/5.0 (")
	b.WriteString(platform)
	b.WriteString(") AppleWebKit/537.36 (KHTML, like Gecko) Chrome/")
	b.WriteString(version)
	b.WriteString(" Safari/537.36")
	return b.String()
}
