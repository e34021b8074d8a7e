package rewrite

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/forklift/pkg/gitcli"
)

// Observer receives rewriter progress. Progress fires for every pending
// upstream commit (meta is nil for commits elided through the
// look-forward window); Committed fires for every commit written to the
// filtered branch, and in a dry run for every commit that would be
// written, with filtered set to None. Implementations may ignore both.
type Observer interface {
	Progress(idx, total int, hash gitcli.Hash, meta *gitcli.Metadata)
	Committed(orig, filtered gitcli.Hash, meta *gitcli.Metadata)
}

type nopObserver struct{}

func (nopObserver) Progress(int, int, gitcli.Hash, *gitcli.Metadata) {}

func (nopObserver) Committed(gitcli.Hash, gitcli.Hash, *gitcli.Metadata) {}

// timingWindow is the number of recent commits the progress rate is
// averaged over.
const timingWindow = 100

// titleLimit truncates commit titles in progress output.
const titleLimit = 50

// ConsoleObserver prints progress to two streams, mirroring the
// info/verbose split of the CLI: Info receives one line per emitted
// commit, Verbose a carriage-return progress line per upstream commit.
// Either stream may be io.Discard.
type ConsoleObserver struct {
	Info    io.Writer
	Verbose io.Writer

	samples []time.Time
	now     func() time.Time
}

// NewConsoleObserver creates a ConsoleObserver over the given streams.
func NewConsoleObserver(info, verbose io.Writer) *ConsoleObserver {
	return &ConsoleObserver{Info: info, Verbose: verbose, now: time.Now}
}

// rate returns the commits-per-second speed over the sliding window and
// records the current timestamp.
func (o *ConsoleObserver) rate() float64 {
	now := o.now()

	o.samples = append(o.samples, now)
	if len(o.samples) > timingWindow {
		o.samples = o.samples[1:]
	}

	elapsed := now.Sub(o.samples[0]).Seconds()
	if elapsed <= 0 {
		return 0
	}

	return float64(len(o.samples)-1) / elapsed
}

// Progress prints one carriage-return status line per upstream commit.
func (o *ConsoleObserver) Progress(idx, total int, hash gitcli.Hash, meta *gitcli.Metadata) {
	speed := o.rate()

	eta := "?"
	if speed > 0 {
		eta = (time.Duration(float64(total-idx)/speed) * time.Second).String()
	}

	title := ""
	if meta != nil {
		title = meta.Title()
		if len(title) > titleLimit {
			title = title[:titleLimit]
		}
	}

	fmt.Fprintf(o.Verbose, "\rProcessing %s %s/%s %.2f c/s eta %s %s",
		hash, humanize.Comma(int64(idx)), humanize.Comma(int64(total)), speed, eta, title)
}

// Committed prints one line per commit written to the filtered branch.
func (o *ConsoleObserver) Committed(orig, filtered gitcli.Hash, meta *gitcli.Metadata) {
	title := meta.Title()
	if len(title) > titleLimit {
		title = title[:titleLimit]
	}

	fmt.Fprintf(o.Info, "%s is committed as %s: %s\n", orig, filtered, title)
}
