package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/beatsync/internal/models"
	"github.com/desertthunder/beatsync/internal/tasks"
)

const recentOutcomes = 6

// RunFunc starts a sync and reports progress on the given channel.
type RunFunc func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.SyncResult, error)

// SyncModel is the bubbletea model behind `sync --tui`.
type SyncModel struct {
	ctx          context.Context
	cancel       context.CancelFunc
	run          RunFunc
	progressChan chan tasks.ProgressUpdate
	done         chan syncResult
	progress     tasks.ProgressUpdate
	recent       []models.Outcome
	tally        models.Run
	bar          progress.Model
	help         help.Model
	keys         keyMap
	showDetails  bool
	stopping     bool
	finished     bool
	result       *tasks.SyncResult
	err          error
}

// NewSyncModel creates a model that runs run once started. Quitting before the run
// finishes cancels ctx and waits for the engine to flush its ledger.
func NewSyncModel(ctx context.Context, run RunFunc) *SyncModel {
	ctx, cancel := context.WithCancel(ctx)
	return &SyncModel{
		ctx:         ctx,
		cancel:      cancel,
		run:         run,
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithWidth(48)),
		help:        help.New(),
		keys:        newKeyMap(),
		showDetails: true,
	}
}

// Result returns the finished run, or nil while it is still going.
func (m *SyncModel) Result() (*tasks.SyncResult, error) {
	return m.result, m.err
}

// Init starts the sync in the background.
func (m *SyncModel) Init() tea.Cmd {
	return m.start()
}

// Update handles incoming messages and updates the model state.
func (m *SyncModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(msg.Width-8, 64))
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case Msg:
		switch msg.kind {
		case MsgProgressUpdate:
			m.apply(msg.data.(tasks.ProgressUpdate))
			return m, m.waitForProgress()
		case MsgSyncComplete:
			data := msg.data.(syncResult)
			m.result, m.err = data.result, data.err
			m.finished = true
			m.cancel()
			if m.stopping {
				return m, tea.Quit
			}
			return m, nil
		}
	}
	return m, nil
}

func (m *SyncModel) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		if m.finished {
			return m, tea.Quit
		}
		if !m.stopping {
			m.stopping = true
			m.cancel()
		}
	case key.Matches(msg, m.keys.details):
		m.showDetails = !m.showDetails
	case key.Matches(msg, m.keys.help):
		m.help.ShowAll = !m.help.ShowAll
	}
	return m, nil
}

func (m *SyncModel) apply(update tasks.ProgressUpdate) {
	m.progress = update
	if update.Phase != tasks.Resolved {
		return
	}
	if o, ok := update.Data.(models.Outcome); ok {
		m.tally.Tally(o.Status)
		m.recent = append(m.recent, o)
		if len(m.recent) > recentOutcomes {
			m.recent = m.recent[len(m.recent)-recentOutcomes:]
		}
	}
}

func (m *SyncModel) start() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 64)
	m.done = make(chan syncResult, 1)

	go func() {
		result, err := m.run(m.ctx, m.progressChan)
		m.done <- syncResult{result, err}
		close(m.progressChan)
	}()

	return m.waitForProgress()
}

func (m *SyncModel) waitForProgress() tea.Cmd {
	progressChan, done := m.progressChan, m.done
	return func() tea.Msg {
		if progressChan == nil {
			return syncCompleteMsg(nil, fmt.Errorf("sync was not started"))
		}

		update, ok := <-progressChan
		if !ok {
			r := <-done
			return syncCompleteMsg(r.result, r.err)
		}
		return progressUpdateMsg(update)
	}
}

// View renders the progress bar, counters and the most recent outcomes.
func (m *SyncModel) View() string {
	if m.finished {
		return m.renderResult()
	}

	var b strings.Builder
	b.WriteString(Title("Syncing liked songs to BeatSaver"))
	b.WriteString("\n")

	fmt.Fprintf(&b, "%s  %d/%d\n", m.bar.ViewAs(fraction(m.progress.Step, m.progress.Total)), m.progress.Step, m.progress.Total)
	b.WriteString(Muted(m.progress.Message))
	b.WriteString("\n\n")
	b.WriteString(counters(m.tally.Downloaded, m.tally.Skipped, m.tally.NotFound))
	b.WriteString("\n")

	if m.showDetails && len(m.recent) > 0 {
		b.WriteString("\n")
		for _, o := range m.recent {
			b.WriteString(OutcomeLine(o))
			b.WriteString("\n")
		}
	}

	if m.stopping {
		b.WriteString("\n")
		b.WriteString(Warn("Stopping after the current request..."))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *SyncModel) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.quit})
	return fmt.Sprintf("%s\n\n%s", Summary(m.result, m.err), helpView)
}

func fraction(step, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(step) / float64(total)
}

func counters(downloaded, skipped, notFound int) string {
	return fmt.Sprintf("%s  %s  %s",
		OK(fmt.Sprintf("✓ %d downloaded", downloaded)),
		Muted(fmt.Sprintf("• %d already present", skipped)),
		Warn(fmt.Sprintf("✗ %d not found", notFound)))
}
