// Package ui renders search progress on a terminal.
package ui

import (
	"io"
	"sync/atomic"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/StormyCloudInc/selector-vanitygen/internal/generator"
)

// Progress is a bar over the outer nonces of one search, with hash rate
// and solution count.
type Progress struct {
	p      *mpb.Progress
	bar    *mpb.Bar
	status atomic.Value
}

// NewProgress draws a bar with total steps on w.
func NewProgress(w io.Writer, total int) *Progress {
	pr := &Progress{p: mpb.New(mpb.WithOutput(w), mpb.WithWidth(60))}
	pr.status.Store("")
	pr.bar = pr.p.AddBar(int64(total),
		mpb.PrependDecorators(
			decor.Name("outer nonces: "),
			decor.CountersNoUnit("%d / %d", decor.WCSyncSpace),
		),
		mpb.AppendDecorators(
			decor.Any(func(decor.Statistics) string { return pr.status.Load().(string) }, decor.WCSyncSpace),
			decor.OnComplete(decor.AverageETA(decor.ET_STYLE_GO), "done!"),
		),
	)
	return pr
}

// Update advances the bar to the iteration reported in s.
func (pr *Progress) Update(s generator.Stats) {
	pr.status.Store(StatusLine(s))
	pr.bar.SetCurrent(int64(s.Iteration))
}

// Finish completes or aborts the bar and waits for the final render.
func (pr *Progress) Finish() {
	if !pr.bar.Completed() {
		pr.bar.Abort(false)
	}
	pr.p.Wait()
}

// StatusLine summarises s in one line.
func StatusLine(s generator.Stats) string {
	line := FormatRate(s.HashesPerSec) + " H/s, " + FormatCount(s.Checked) + " checked"
	switch s.Solutions {
	case 0:
		line += ", " + Estimate(s.HashesPerSec) + " per match"
	case 1:
		line += ", 1 solution"
	default:
		line += ", " + FormatCount(uint64(s.Solutions)) + " solutions"
	}
	return line
}
