package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Outcome is how one prompt ended.
type Outcome int

const (
	OutcomeAnswered Outcome = iota
	OutcomeBlocked
	OutcomeFailed
)

// OutcomeOf classifies an exchange.
func OutcomeOf(ex Exchange) Outcome {
	switch {
	case ex.Error != "":
		return OutcomeFailed
	case ex.Response.Blocked:
		return OutcomeBlocked
	default:
		return OutcomeAnswered
	}
}

// ProgressReporter tracks a batch of prompts. Implementations are safe for
// concurrent use.
type ProgressReporter interface {
	Start(total int)
	Done(outcome Outcome)
	Finish()
}

// BarProgress draws a single updating line:
//
//	Prompts: [██████░░░░] 2/3 (1 blocked, 0 failed) 340ms
type BarProgress struct {
	mu      sync.Mutex
	w       io.Writer
	now     func() time.Time
	started time.Time
	total   int
	counts  [3]int
}

// NewProgressReporter returns a BarProgress writing to w, or to os.Stderr
// when w is nil so the bar never mixes with exchange output.
func NewProgressReporter(w io.Writer) *BarProgress {
	if w == nil {
		w = os.Stderr
	}
	return &BarProgress{w: w, now: time.Now}
}

func (p *BarProgress) Start(total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.total = total
	p.counts = [3]int{}
	p.started = p.now()
	p.draw()
}

// Done records one finished prompt. Calls beyond the total are ignored.
func (p *BarProgress) Done(outcome Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished() >= p.total || outcome < OutcomeAnswered || outcome > OutcomeFailed {
		return
	}
	p.counts[outcome]++
	p.draw()
}

// Finish ends the line.
func (p *BarProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.total > 0 {
		fmt.Fprintln(p.w)
	}
}

// Counts returns how many prompts ended with each outcome.
func (p *BarProgress) Counts() (answered, blocked, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[OutcomeAnswered], p.counts[OutcomeBlocked], p.counts[OutcomeFailed]
}

func (p *BarProgress) finished() int {
	return p.counts[0] + p.counts[1] + p.counts[2]
}

const barWidth = 30

func (p *BarProgress) draw() {
	if p.total <= 0 {
		return
	}
	done := p.finished()
	filled := barWidth * done / p.total
	fmt.Fprintf(p.w, "\rPrompts: [%s%s] %d/%d (%d blocked, %d failed) %s",
		strings.Repeat("█", filled), strings.Repeat("░", barWidth-filled),
		done, p.total, p.counts[OutcomeBlocked], p.counts[OutcomeFailed],
		p.now().Sub(p.started).Round(time.Millisecond))
}

// NoProgress discards progress updates.
type NoProgress struct{}

func (NoProgress) Start(int)    {}
func (NoProgress) Done(Outcome) {}
func (NoProgress) Finish()      {}
