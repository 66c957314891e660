package cli

import (
	"io"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/fpang/video-screen/internal/frames"
	"github.com/fpang/video-screen/internal/pipeline"
)

// Progress renders session progress as a terminal bar. The bar's total grows
// as the extractor discovers frames.
type Progress struct {
	pipeline.NopObserver

	w io.Writer

	mu         sync.Mutex
	bar        *progressbar.ProgressBar
	discovered int
	analyzed   int
}

// NewProgress returns a Progress that draws on w.
func NewProgress(w io.Writer) *Progress {
	return &Progress{w: w}
}

func (p *Progress) ensureBar() {
	if p.bar != nil {
		return
	}
	p.bar = progressbar.NewOptions(1,
		progressbar.OptionSetDescription("Extracting"),
		progressbar.OptionSetWriter(p.w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
	)
}

func (p *Progress) FrameDiscovered(_ string, _ frames.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureBar()
	p.discovered++
	p.bar.ChangeMax(p.discovered)
}

func (p *Progress) FrameAnalyzed(_ string, _ pipeline.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureBar()
	p.analyzed++
	_ = p.bar.Add(1)
}

func (p *Progress) ExtractionFinished(_ string, _ int, _ error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureBar()
	p.bar.Describe("Analyzing")
}

func (p *Progress) AIDisabled(_ string, _ error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensureBar()
	p.bar.Describe("AI disabled")
}

func (p *Progress) SessionComplete(_ *pipeline.Summary) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

// Counts returns the frames discovered and analysed so far.
func (p *Progress) Counts() (discovered, analyzed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.discovered, p.analyzed
}
