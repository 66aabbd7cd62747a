package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/guoyu-zhang/say-like-a-native/internal/ingest"
)

// TUIRenderer draws a live progress panel with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	model   *indexModel
	program *tea.Program
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer.
func NewTUIRenderer(cfg Config) *TUIRenderer {
	m := newIndexModel(cfg.Source)
	if cfg.NoColor || DetectNoColor() {
		m.styles = NoColorStyles()
	}
	return &TUIRenderer{cfg: cfg, model: m, done: make(chan struct{})}
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		return nil
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// Update implements Renderer.
func (r *TUIRenderer) Update(p ingest.Progress) {
	r.send(progressMsg(p))
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(sum ingest.Summary) {
	r.send(completeMsg(sum))
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	p := r.program
	r.mu.Unlock()
	if p == nil {
		return nil
	}

	p.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		// Unresponsive program must not hang Ctrl+C.
	}
	return nil
}

type progressMsg ingest.Progress
type completeMsg ingest.Summary

// indexModel is the bubbletea model for an ingest run.
type indexModel struct {
	source   string
	done     int
	total    int
	file     string
	segments int
	failed   int
	lastErr  string
	summary  *ingest.Summary
	quitting bool
	width    int

	spinner spinner.Model
	bar     progress.Model
	styles  Styles
}

func newIndexModel(source string) *indexModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))

	return &indexModel{
		source:  source,
		width:   80,
		spinner: s,
		bar: progress.New(
			progress.WithSolidFill(ColorAccent),
			progress.WithWidth(50),
			progress.WithoutPercentage(),
		),
		styles: DefaultStyles(),
	}
}

// Init implements tea.Model.
func (m *indexModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *indexModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if s := msg.String(); s == "ctrl+c" || s == "q" {
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-20, 20)

	case progressMsg:
		m.done, m.total, m.file = msg.Done, msg.Total, msg.File
		if msg.Err != nil {
			m.failed++
			m.lastErr = fmt.Sprintf("%s: %v", filepath.Base(msg.File), msg.Err)
		} else {
			m.segments += msg.Segments
		}

	case completeMsg:
		sum := ingest.Summary(msg)
		m.summary = &sum
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *indexModel) View() string {
	if m.summary != nil {
		return m.renderComplete()
	}
	if m.quitting {
		return "Cancelled.\n"
	}

	title := "Transcript indexer"
	if m.source != "" {
		title += " • " + m.source
	}

	var lines []string
	if m.total == 0 {
		lines = append(lines, m.spinner.View()+" Scanning...")
	} else {
		pct := float64(m.done) / float64(m.total)
		lines = append(lines,
			fmt.Sprintf("%s  %s", m.bar.ViewAs(pct), m.styles.Active.Render(fmt.Sprintf("%3.0f%%", pct*100))),
			m.styles.Label.Render(fmt.Sprintf("%d / %d files • %d segments", m.done, m.total, m.segments)),
		)
	}
	if m.file != "" {
		lines = append(lines, m.styles.Dim.Render(truncatePath(m.file, max(m.width-8, 20))))
	}
	if m.failed > 0 {
		lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %d failed, last: %s", m.failed, m.lastErr)))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		m.styles.Panel.Render(strings.Join(lines, "\n")),
	) + "\n" + m.styles.Dim.Render("q to quit") + "\n"
}

func (m *indexModel) renderComplete() string {
	s := m.summary
	lines := []string{
		m.styles.Success.Render("✓ Indexing complete"),
		"",
		fmt.Sprintf("%s    %s", m.styles.Label.Render("Files:"), m.styles.Active.Render(fmt.Sprint(s.Files-s.Failed))),
		fmt.Sprintf("%s %s", m.styles.Label.Render("Segments:"), m.styles.Active.Render(fmt.Sprint(s.Segments))),
		fmt.Sprintf("%s %s", m.styles.Label.Render("Duration:"), m.styles.Active.Render(s.Duration.Round(100*time.Millisecond).String())),
	}
	if s.Failed > 0 {
		lines = append(lines, "", m.styles.Error.Render(fmt.Sprintf("✗ %d failed", s.Failed)))
	}
	return m.styles.Panel.Padding(1, 2).Render(strings.Join(lines, "\n")) + "\n"
}

// truncatePath keeps the tail of path within maxLen characters.
func truncatePath(path string, maxLen int) string {
	r := []rune(path)
	if len(r) <= maxLen || maxLen < 4 {
		return path
	}
	return "..." + string(r[len(r)-maxLen+3:])
}

var _ Renderer = (*TUIRenderer)(nil)
