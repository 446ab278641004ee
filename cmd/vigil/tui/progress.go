// Package tui renders live progress for long vigil runs on a terminal.
package tui

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/vigil/pkg/vigil/types"
)

const (
	// refreshInterval is how often the view polls the counters.
	refreshInterval = 100 * time.Millisecond

	// recentWarnings is how many skip and warning lines the view keeps.
	recentWarnings = 3
)

// Counters accumulates engine events. It is a types.Observer and is safe
// for concurrent use; the view reads it on every refresh.
type Counters struct {
	queued  atomic.Int64
	hashed  atomic.Int64
	skipped atomic.Int64
	bytes   atomic.Int64
	phase   atomic.Int32

	mu      sync.Mutex
	current string
	recent  []string // oldest first, at most recentWarnings
}

// Observe records e.
func (c *Counters) Observe(e types.Event) {
	switch e.Type {
	case types.EventPhase:
		c.phase.Store(int32(e.Phase))
	case types.EventFileQueued:
		c.queued.Add(1)
	case types.EventFileHashed:
		c.hashed.Add(1)
		if e.Snapshot != nil {
			c.bytes.Add(e.Snapshot.Size)
			c.setCurrent(e.Snapshot.Path)
		}
	case types.EventFileSkipped:
		c.skipped.Add(1)
		if e.Skipped != nil {
			c.warn(fmt.Sprintf("skipped %s (%s)", e.Skipped.Path, e.Skipped.Kind))
		}
	case types.EventWarning:
		c.warn(e.Message)
	}
}

func (c *Counters) setCurrent(path string) {
	c.mu.Lock()
	c.current = path
	c.mu.Unlock()
}

func (c *Counters) warn(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.recent) == recentWarnings {
		copy(c.recent, c.recent[1:])
		c.recent = c.recent[:recentWarnings-1]
	}
	c.recent = append(c.recent, msg)
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Phase   types.Phase
	Queued  int64
	Hashed  int64
	Skipped int64
	Bytes   int64
	Current string
	Recent  []string
}

// Snapshot returns the current counter values.
func (c *Counters) Snapshot() Snapshot {
	c.mu.Lock()
	current := c.current
	recent := slices.Clone(c.recent)
	c.mu.Unlock()
	return Snapshot{
		Phase:   types.Phase(c.phase.Load()),
		Queued:  c.queued.Load(),
		Hashed:  c.hashed.Load(),
		Skipped: c.skipped.Load(),
		Bytes:   c.bytes.Load(),
		Current: current,
		Recent:  recent,
	}
}

type tickMsg time.Time

// DoneMsg ends the view once the operation has returned.
type DoneMsg struct{ Err error }

var (
	primaryColor = lipgloss.Color("39")
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

// Model is the bubbletea model of the progress view.
type Model struct {
	title    string
	counters *Counters
	spinner  spinner.Model
	cancel   context.CancelFunc
	start    time.Time
	width    int

	stats       Snapshot
	done        bool
	interrupted bool
	err         error
}

// NewModel returns a progress view reading counters. cancel is called when
// the user presses Ctrl+C.
func NewModel(title string, counters *Counters, cancel context.CancelFunc) Model {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = lipgloss.NewStyle().Foreground(primaryColor)

	return Model{
		title:    title,
		counters: counters,
		spinner:  s,
		cancel:   cancel,
		start:    time.Now(),
		width:    80,
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the spinner and the refresh ticker.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

// Update handles messages for the progress view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" && !m.interrupted {
			m.interrupted = true
			if m.cancel != nil {
				m.cancel()
			}
		}
		return m, nil

	case tickMsg:
		m.stats = m.counters.Snapshot()
		if m.done {
			return m, nil
		}
		return m, tick()

	case DoneMsg:
		m.done = true
		m.err = msg.Err
		m.stats = m.counters.Snapshot()
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the progress view.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("vigil " + m.title))
	b.WriteString("  ")
	b.WriteString(labelStyle.Render(m.stats.Phase.String()))
	b.WriteString("\n")

	switch {
	case m.done && m.err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("  Error: %v", m.err)))
	case m.done:
		b.WriteString(successStyle.Render("  Done"))
	case m.interrupted:
		b.WriteString(warnStyle.Render("  Stopping..."))
	default:
		b.WriteString(fmt.Sprintf("  %s %s", m.spinner.View(), truncatePath(m.stats.Current, m.width-6)))
	}
	b.WriteString("\n")

	elapsed := time.Since(m.start).Round(100 * time.Millisecond)
	parts := []string{
		labelStyle.Render("hashed ") + valueStyle.Render(fmt.Sprintf("%s/%s", humanize.Comma(m.stats.Hashed), humanize.Comma(m.stats.Queued))),
		labelStyle.Render("read ") + valueStyle.Render(humanize.IBytes(uint64(m.stats.Bytes))),
		labelStyle.Render("elapsed ") + valueStyle.Render(elapsed.String()),
	}
	if m.stats.Skipped > 0 {
		parts = append(parts, warnStyle.Render(fmt.Sprintf("skipped %d", m.stats.Skipped)))
	}
	b.WriteString("  " + strings.Join(parts, "  "))
	b.WriteString("\n")

	for _, msg := range m.stats.Recent {
		b.WriteString(warnStyle.Render("  ! " + truncatePath(msg, m.width-4)))
		b.WriteString("\n")
	}
	return b.String()
}

// truncatePath shortens path from the left to fit width.
func truncatePath(path string, width int) string {
	if width < 8 {
		width = 8
	}
	if len(path) <= width {
		return path
	}
	return "..." + path[len(path)-(width-3):]
}

// Run executes op while rendering progress to out. op receives a context
// that is cancelled on Ctrl+C and an observer feeding the view. Run returns
// op's error.
func Run(ctx context.Context, title string, out io.Writer, op func(ctx context.Context, obs types.Observer) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	counters := &Counters{}
	p := tea.NewProgram(NewModel(title, counters, cancel), tea.WithOutput(out), tea.WithContext(ctx))

	errc := make(chan error, 1)
	go func() {
		err := op(ctx, counters)
		errc <- err
		p.Send(DoneMsg{Err: err})
	}()

	if _, err := p.Run(); err != nil {
		// The view failed or was killed; the operation still decides the result.
		cancel()
		opErr := <-errc
		if opErr != nil {
			return opErr
		}
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("progress display: %w", err)
	}
	return <-errc
}
