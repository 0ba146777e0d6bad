package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/caisiyang/CNJP/internal/engine"
	"github.com/caisiyang/CNJP/internal/favorites"
	"github.com/caisiyang/CNJP/internal/news"
	"github.com/caisiyang/CNJP/internal/view"
)

// chipOrder is the fixed display order of category chips.
var chipOrder = []string{
	news.CategoryAll,
	"politics",
	"economy",
	"society",
	"military",
	"tech",
	"sports",
	"entertainment",
	"disaster",
	"world",
	news.CategoryOther,
}

// App is the root Bubble Tea model.
//
// App never mutates engine or pipeline state from View; all writes happen
// in Update, and the derived display slice is recomputed after each one.
type App struct {
	eng  *engine.Engine
	pipe *view.Pipeline
	favs *favorites.List

	search  textinput.Model
	spin    spinner.Model
	display []news.Item
	total   int
	hasMore bool
	favSet  map[string]bool
	cursor  int
	err     error
	width   int
	height  int
	ready   bool
}

// New creates the root model. favs may be nil to disable favorites.
func New(eng *engine.Engine, pipe *view.Pipeline, favs *favorites.List) App {
	search := textinput.New()
	search.Placeholder = "搜索标题 / 来源..."
	search.Prompt = "/ "
	search.CharLimit = 64

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	a := App{
		eng:    eng,
		pipe:   pipe,
		favs:   favs,
		search: search,
		spin:   spin,
		favSet: make(map[string]bool),
	}
	a.loadFavorites()
	return a
}

// Init starts the spinner.
func (a App) Init() tea.Cmd {
	return a.spin.Tick
}

// Update handles messages and returns the updated model and any commands.
func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.ready = true
		return a, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		return a, cmd

	case EngineEvent:
		return a.handleEngineEvent(msg.Event)

	case PipelineCommitted:
		// Debounced query landed: re-derive and jump to the top.
		a.cursor = 0
		a.refreshList()
		return a, nil

	case refreshFinished:
		a.cursor = 0
		a.refreshList()
		return a, nil

	case favoriteToggled:
		if msg.Err != nil {
			a.err = msg.Err
			return a, nil
		}
		a.favSet[msg.Link] = msg.Saved
		if !msg.Saved {
			delete(a.favSet, msg.Link)
		}
		return a, nil
	}

	return a, nil
}

// handleEngineEvent reacts to data-layer notifications.
func (a App) handleEngineEvent(ev engine.Event) (tea.Model, tea.Cmd) {
	switch ev.(type) {
	case engine.Loaded, engine.HistoryMerged:
		a.refreshList()
	case engine.NewContent:
		// Banner only - the list must not move under the reader.
	case engine.FeedApplied, engine.Refreshed:
		a.cursor = 0
		a.refreshList()
	}
	return a, nil
}

// handleKeyMsg processes keyboard input.
func (a App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.err != nil {
		a.err = nil
	}

	// Focused search box swallows everything except escape and enter.
	if a.search.Focused() {
		switch msg.String() {
		case "esc":
			a.search.Blur()
			a.search.SetValue("")
			a.pipe.ClearSearch()
			a.cursor = 0
			a.refreshList()
			return a, nil
		case "enter":
			a.search.Blur()
			return a, nil
		}
		var cmd tea.Cmd
		a.search, cmd = a.search.Update(msg)
		a.pipe.SetInput(a.search.Value())
		return a, cmd
	}

	switch msg.String() {
	case "q", "ctrl+c":
		return a, tea.Quit

	case "/":
		return a, a.search.Focus()

	case "j", "down":
		if a.cursor < len(a.display)-1 {
			a.cursor++
		} else if a.hasMore {
			// Reading past the window: widen it.
			a.pipe.LoadMore()
			a.refreshList()
			if a.cursor < len(a.display)-1 {
				a.cursor++
			}
		}
		return a, nil

	case "k", "up":
		if a.cursor > 0 {
			a.cursor--
		}
		return a, nil

	case "g", "home":
		a.cursor = 0
		return a, nil

	case "G", "end":
		if len(a.display) > 0 {
			a.cursor = len(a.display) - 1
		}
		return a, nil

	case "tab":
		a.cycleCategory(1)
		return a, nil

	case "shift+tab":
		a.cycleCategory(-1)
		return a, nil

	case "s":
		a.pipe.ToggleSortMode()
		a.cursor = 0
		a.refreshList()
		return a, nil

	case "n":
		if a.eng.AcceptPending() {
			a.cursor = 0
			a.refreshList()
		}
		return a, nil

	case "m":
		if a.hasMore {
			a.pipe.LoadMore()
			a.refreshList()
		}
		return a, nil

	case "r":
		eng := a.eng
		return a, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			eng.Refresh(ctx)
			return refreshFinished{}
		}

	case "f":
		if a.favs == nil || len(a.display) == 0 || a.cursor >= len(a.display) {
			return a, nil
		}
		item := a.display[a.cursor]
		favs := a.favs
		return a, func() tea.Msg {
			saved, err := favs.Toggle(item)
			return favoriteToggled{Link: item.Link, Saved: saved, Err: err}
		}
	}

	return a, nil
}

// cycleCategory moves the active category chip by delta and re-derives.
func (a *App) cycleCategory(delta int) {
	current := a.pipe.Category()
	idx := 0
	for i, key := range chipOrder {
		if key == current {
			idx = i
			break
		}
	}
	idx = (idx + delta + len(chipOrder)) % len(chipOrder)
	a.pipe.SetCategory(chipOrder[idx])
	a.cursor = 0
	a.refreshList()
}

// refreshList re-derives the display slice from the engine's data source.
func (a *App) refreshList() {
	result := a.pipe.Apply(a.eng.DataSource())
	a.display = result.Display
	a.total = result.Total
	a.hasMore = result.HasMore
	if a.cursor >= len(a.display) && len(a.display) > 0 {
		a.cursor = len(a.display) - 1
	}
}

// loadFavorites seeds the favorite-link set from disk.
func (a *App) loadFavorites() {
	if a.favs == nil {
		return
	}
	items, err := a.favs.All()
	if err != nil {
		a.err = err
		return
	}
	for _, it := range items {
		a.favSet[it.Link] = true
	}
}

// View renders the UI.
func (a App) View() string {
	if !a.ready {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(a.renderHeader())
	b.WriteString("\n")
	b.WriteString(a.renderChips())
	b.WriteString("\n")
	if a.search.Focused() || a.search.Value() != "" {
		b.WriteString(a.search.View())
		b.WriteString("\n")
	}
	b.WriteString(a.renderList())
	if a.err != nil {
		b.WriteString("\n")
		b.WriteString(ErrorStyle.Render("Error: " + a.err.Error() + " (press any key to dismiss)"))
	}
	b.WriteString("\n")
	b.WriteString(a.renderStatus())
	return b.String()
}

func (a App) renderHeader() string {
	title := TitleStyle.Render("CNJP 新闻")

	parts := []string{title}
	if updated := a.eng.LastUpdated(); updated != "" {
		parts = append(parts, SubtleStyle.Render("更新 "+updated))
	}
	if a.eng.IsLoading() || a.eng.IsSearchingAll() || a.eng.IsRefreshing() {
		parts = append(parts, a.spin.View())
	}
	if n := a.eng.NewContentCount(); n > 0 {
		parts = append(parts, BannerStyle.Render(fmt.Sprintf("%d 条新内容 · 按 n 加载", n)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, strings.Join(parts, " "))
}

func (a App) renderChips() string {
	source := a.eng.DataSource()
	chips := make([]string, 0, len(chipOrder))
	active := a.pipe.Category()
	for _, key := range chipOrder {
		label := key
		if key != news.CategoryAll {
			label = fmt.Sprintf("%s %d", key, a.pipe.Count(source, key))
		}
		if key == active {
			chips = append(chips, ActiveChipStyle.Render(label))
		} else {
			chips = append(chips, ChipStyle.Render(label))
		}
	}
	return strings.Join(chips, "")
}

func (a App) renderList() string {
	if len(a.display) == 0 {
		if a.eng.IsLoading() {
			return SubtleStyle.Render("  加载中...")
		}
		return SubtleStyle.Render("  没有数据")
	}

	// Keep the cursor visible inside the available rows.
	rows := a.listHeight()
	start := 0
	if a.cursor >= rows {
		start = a.cursor - rows + 1
	}
	end := start + rows
	if end > len(a.display) {
		end = len(a.display)
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		b.WriteString(a.renderRow(i))
		if i < end-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func (a App) renderRow(i int) string {
	it := a.display[i]

	when := ""
	if it.Timestamp > 0 {
		when = time.Unix(it.Timestamp, 0).Format("01-02 15:04")
	}
	star := "  "
	if a.favSet[it.Link] {
		star = FavoriteStyle.Render("★ ")
	}
	title := it.Title
	if title == "" {
		title = it.TitleTC
	}
	if title == "" {
		title = it.TitleJA
	}

	line := fmt.Sprintf("%s%s %s %s", star, SubtleStyle.Render(when), title, SubtleStyle.Render(it.Origin))
	if i == a.cursor {
		return SelectedStyle.Width(a.width).Render(line)
	}
	return line
}

func (a App) renderStatus() string {
	mode := "发布时间"
	if a.pipe.SortMode() == view.SortFetch {
		mode = "抓取时间"
	}
	status := fmt.Sprintf("%d/%d 条 · 排序: %s", len(a.display), a.total, mode)
	if a.hasMore {
		status += " · m 加载更多"
	}
	if a.eng.HistoryLoaded() {
		status += " · 全部历史"
	}
	status += " · / 搜索 · tab 分类 · q 退出"
	return StatusStyle.Width(a.width).Render(status)
}

// listHeight returns the number of rows available for the item list.
func (a App) listHeight() int {
	// header + chips + status, plus the search line when shown
	reserved := 4
	if a.search.Focused() || a.search.Value() != "" {
		reserved++
	}
	h := a.height - reserved
	if h < 1 {
		h = 1
	}
	return h
}

// Cursor returns the current cursor position (for testing).
func (a App) Cursor() int {
	return a.cursor
}

// Display returns the current display slice (for testing).
func (a App) Display() []news.Item {
	return a.display
}
