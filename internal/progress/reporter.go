package progress

import (
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
)

// Reporter shows ingestion progress.
type Reporter interface {
	Start(total int, stage string)
	Update(current int, message string)
	Finish()
}

// NewReporter returns a line reporter under CI and a progress bar otherwise.
func NewReporter(w io.Writer) Reporter {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		return &LogReporter{}
	}
	return &TerminalReporter{out: w}
}

// TerminalReporter draws a progress bar.
type TerminalReporter struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

func (r *TerminalReporter) Start(total int, stage string) {
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionSetDescription(stage),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (r *TerminalReporter) Update(current int, message string) {
	if r.bar != nil {
		r.bar.Describe(message)
		_ = r.bar.Set(current)
	}
}

func (r *TerminalReporter) Finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

// LogReporter writes one log line per step.
type LogReporter struct {
	total int
	stage string
}

func (r *LogReporter) Start(total int, stage string) {
	r.total = total
	r.stage = stage
	log.Info().Str("stage", stage).Int("total", total).Msg("Starting")
}

func (r *LogReporter) Update(current int, message string) {
	log.Info().Str("stage", r.stage).Int("current", current).Int("total", r.total).Msg(message)
}

func (r *LogReporter) Finish() {
	log.Info().Str("stage", r.stage).Msg("Done")
}

// Nop discards progress.
type Nop struct{}

func (Nop) Start(int, string) {}
func (Nop) Update(int, string) {}
func (Nop) Finish() {}
