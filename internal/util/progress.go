package util

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Progress reports batch progress on a bar when attached to a terminal and
// as periodic log lines otherwise. All methods are safe for concurrent use.
type Progress struct {
	label string
	total int64
	done  atomic.Int64
	bar   *progressbar.ProgressBar

	mu   sync.Mutex
	desc string

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// StartProgress begins reporting on total units of work
func StartProgress(label string, total int) *Progress {
	p := &Progress{
		label: label,
		total: int64(total),
		desc:  label,
		stop:  make(chan struct{}),
	}

	if ShowProgress() {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription(label),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
		return p
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				p.mu.Lock()
				desc := p.desc
				p.mu.Unlock()
				InfoLog("Progress: %s %d/%d", desc, p.done.Load(), p.total)
			}
		}
	}()
	return p
}

// Add marks n more units as done
func (p *Progress) Add(n int) {
	p.done.Add(int64(n))
	if p.bar != nil {
		p.bar.Add(n)
	}
}

// Describe replaces the label shown next to the counts
func (p *Progress) Describe(desc string) {
	p.mu.Lock()
	p.desc = desc
	p.mu.Unlock()
	if p.bar != nil {
		p.bar.Describe(desc)
	}
}

// Done returns the number of finished units
func (p *Progress) Done() int64 {
	return p.done.Load()
}

// Finish stops reporting; later calls are no-ops
func (p *Progress) Finish() {
	p.once.Do(func() {
		if p.bar != nil {
			p.bar.Finish()
			return
		}
		close(p.stop)
		p.wg.Wait()
	})
}
