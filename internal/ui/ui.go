package ui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/digits/internal/models"
	"github.com/desertthunder/digits/internal/preprocess"
	"github.com/desertthunder/digits/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	FileListView ViewState = iota
	PredictView
	BatchView
	SummaryView
)

const barWidth = 40

var _ list.Item = fileItem{}

// fileItem wraps an image path to implement [list.Item].
type fileItem struct {
	path string
}

func (i fileItem) FilterValue() string { return filepath.Base(i.path) }
func (i fileItem) Title() string       { return filepath.Base(i.path) }
func (i fileItem) Description() string { return filepath.Dir(i.path) }

// Model represents the TUI application state.
type Model struct {
	ctx          context.Context
	view         ViewState
	classifier   tasks.Classifier
	engine       *tasks.BatchEngine
	batchOpts    tasks.BatchOpts
	width        int
	height       int
	files        []string
	fileList     list.Model
	selected     string
	results      []models.PredictionResult
	modelIdx     int
	bar          progress.Model
	progressChan chan tasks.ProgressUpdate
	batchDone    chan batchComplete
	progress     tasks.ProgressUpdate
	batch        *tasks.BatchResult
	err          error
	help         help.Model
	keys         keyMap
}

// NewModel creates a TUI over files. engine may be nil, which disables batch runs.
func NewModel(ctx context.Context, files []string, classifier tasks.Classifier, engine *tasks.BatchEngine, opts tasks.BatchOpts) *Model {
	items := make([]list.Item, len(files))
	for i, f := range files {
		items[i] = fileItem{path: f}
	}
	fileList := list.New(items, list.NewDefaultDelegate(), 0, 0)
	fileList.Title = fmt.Sprintf("Images (%d)", len(files))

	return &Model{
		ctx:        ctx,
		view:       FileListView,
		classifier: classifier,
		engine:     engine,
		batchOpts:  opts,
		files:      files,
		fileList:   fileList,
		bar: progress.New(
			progress.WithGradient(styles.barFrom, styles.barTo),
			progress.WithWidth(barWidth),
			progress.WithoutPercentage(),
		),
		help: help.New(),
		keys: newKeyMap(),
	}
}

// Init classifies the only file right away when there is just one.
func (m *Model) Init() tea.Cmd {
	if len(m.files) == 1 {
		m.selected = m.files[0]
		m.view = PredictView
		return m.classify(m.files[0])
	}
	return nil
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.fileList.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		switch m.view {
		case FileListView:
			return m.handleFileListKeys(msg)
		case PredictView:
			return m.handlePredictKeys(msg)
		case BatchView:
			if key.Matches(msg, m.keys.quit) {
				return m, tea.Quit
			}
			return m, nil
		case SummaryView:
			return m.handleSummaryKeys(msg)
		}

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	if m.view == FileListView {
		m.fileList, cmd = m.fileList.Update(msg)
	}
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgClassified:
		data := msg.data.(classified)
		if data.path != m.selected {
			return m, nil
		}
		m.results = data.results
		m.err = data.err
		m.modelIdx = 0
		return m, nil

	case MsgProgressUpdate:
		m.progress = msg.data.(tasks.ProgressUpdate)
		return m, m.waitForProgress()

	case MsgBatchComplete:
		data := msg.data.(batchComplete)
		m.batch = data.result
		m.err = data.err
		m.progressChan = nil
		m.view = SummaryView
		return m, nil
	}
	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case FileListView:
		return m.renderFileList()
	case PredictView:
		return m.renderPredict()
	case BatchView:
		return m.renderBatch()
	case SummaryView:
		return m.renderSummary()
	default:
		return ""
	}
}

func (m *Model) handleFileListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// keys typed into the filter belong to the list
	if m.fileList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.fileList, cmd = m.fileList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.enter):
		if item, ok := m.fileList.SelectedItem().(fileItem); ok {
			m.selected = item.path
			m.results = nil
			m.err = nil
			m.view = PredictView
			return m, m.classify(item.path)
		}
		return m, nil
	case key.Matches(msg, m.keys.batch):
		if m.engine != nil && len(m.files) > 0 {
			m.view = BatchView
			m.err = nil
			return m, m.startBatch()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.fileList, cmd = m.fileList.Update(msg)
	return m, cmd
}

func (m *Model) handlePredictKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		if len(m.files) > 1 {
			m.view = FileListView
		}
	case key.Matches(msg, m.keys.next):
		if n := len(m.results); n > 0 {
			m.modelIdx = (m.modelIdx + 1) % n
		}
	case key.Matches(msg, m.keys.prev):
		if n := len(m.results); n > 0 {
			m.modelIdx = (m.modelIdx + n - 1) % n
		}
	}
	return m, nil
}

func (m *Model) handleSummaryKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.back):
		m.view = FileListView
		m.batch = nil
		m.err = nil
	}
	return m, nil
}

func (m *Model) classify(path string) tea.Cmd {
	return func() tea.Msg {
		x, err := preprocess.FromFile(path)
		if err != nil {
			return classifiedMsg(path, nil, err)
		}
		results, err := m.classifier.Run(m.ctx, x)
		return classifiedMsg(path, results, err)
	}
}

func (m *Model) startBatch() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 50)
	m.progress = tasks.ProgressUpdate{}

	ch := m.progressChan
	done := make(chan batchComplete, 1)
	go func() {
		result, err := m.engine.Run(m.ctx, ch, m.files, m.batchOpts)
		done <- batchComplete{result, err}
		close(ch)
	}()

	m.batchDone = done
	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	ch, done := m.progressChan, m.batchDone
	return func() tea.Msg {
		if ch != nil {
			if update, ok := <-ch; ok {
				return progressUpdateMsg(update)
			}
		}
		res := <-done
		return batchCompleteMsg(res.result, res.err)
	}
}

func (m *Model) renderFileList() string {
	helpKeys := []key.Binding{m.keys.enter, m.keys.quit}
	if m.engine != nil {
		helpKeys = []key.Binding{m.keys.enter, m.keys.batch, m.keys.quit}
	}
	return fmt.Sprintf("%s\n\n%s", m.fileList.View(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderPredict() string {
	title := styles.title.Render(filepath.Base(m.selected))

	if m.err != nil {
		return fmt.Sprintf("%s\n%s\n\n%s", title, styles.err.Render(fmt.Sprintf("Error: %v", m.err)),
			m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit}))
	}
	if m.results == nil {
		return fmt.Sprintf("%s\nClassifying...", title)
	}

	var tabs []string
	for i, res := range m.results {
		style := styles.tab
		if i == m.modelIdx {
			style = styles.active
		}
		tabs = append(tabs, style.Render(fmt.Sprintf("%s: %d", res.Name, res.Guess.Digit)))
	}

	res := m.results[m.modelIdx]
	var b strings.Builder
	for _, p := range res.Output {
		line := fmt.Sprintf("%d %s %6.2f%%", p.Digit, m.bar.ViewAs(p.Confidence), p.Confidence*100)
		if p.Digit == res.Guess.Digit {
			line = styles.ok.Render(line)
		}
		b.WriteString(line + "\n")
	}

	helpKeys := []key.Binding{m.keys.prev, m.keys.next, m.keys.quit}
	if len(m.files) > 1 {
		helpKeys = []key.Binding{m.keys.prev, m.keys.next, m.keys.back, m.keys.quit}
	}

	return fmt.Sprintf("%s\n%s\n\n%s\n%s", title, strings.Join(tabs, " "), b.String(), m.help.ShortHelpView(helpKeys))
}

func (m *Model) renderBatch() string {
	title := styles.title.Render("Classifying images")

	var ratio float64
	if m.progress.Phase == tasks.Classify && m.progress.Total > 0 {
		ratio = float64(m.progress.Step) / float64(m.progress.Total)
	}

	return fmt.Sprintf("%s\n%s\n\n%s", title, m.bar.ViewAs(ratio), m.progress.Message)
}

func (m *Model) renderSummary() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.back, m.keys.quit})

	if m.err != nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render(fmt.Sprintf("Batch failed: %v", m.err)), helpView)
	}
	if m.batch == nil {
		return fmt.Sprintf("%s\n\n%s", styles.err.Render("No result available"), helpView)
	}

	title := styles.ok.Render("✓ Batch Complete!")
	info := fmt.Sprintf("\nImages: %d\nClassified: %d\nFailed: %d\nManifest: %s",
		m.batch.Total, m.batch.Succeeded, m.batch.Failed, m.batch.ManifestPath)
	if m.batch.ReportPath != "" {
		info += fmt.Sprintf("\nReport: %s", m.batch.ReportPath)
	}

	var failed string
	if m.batch.Failed > 0 {
		failed = "\n\n" + styles.warn.Render(fmt.Sprintf("Failed to classify %d images:", m.batch.Failed))
		for _, res := range m.batch.Results {
			if res.Error != nil {
				failed += fmt.Sprintf("\n  • %s: %v", filepath.Base(res.Path), res.Error)
			}
		}
	}

	return fmt.Sprintf("%s\n%s%s\n\n%s", title, info, failed, helpView)
}
