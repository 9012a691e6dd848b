// Package tui is the terminal question loop over a chunk store.
package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dgallion1/bookrag/internal/answer"
	"github.com/dgallion1/bookrag/internal/retrieval"
)

// NoResultsMessage is shown when no passage shares a word with the query.
const NoResultsMessage = "No relevant passages found. Try rephrasing your question."

// Port is the TUI-facing subset of the retrieval and answer services.
type Port interface {
	Search(query string) []retrieval.Result
	Ask(ctx context.Context, question string, results []retrieval.Result) answer.Reply
}

type answerMsg struct {
	query string
	reply answer.Reply
}

// Model is the Bubble Tea model for the question loop.
type Model struct {
	port      Port
	input     textinput.Model
	viewport  viewport.Model
	results   []retrieval.Result
	summary   string
	status    string
	answer    string
	cursor    int
	ready     bool
	asking    bool
	lastQuery string
}

// New creates a model. summary is shown under the title.
func New(port Port, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question and press Enter (ctrl+a for an answer, 'quit' to exit)"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{port: port, input: ti, viewport: vp, summary: summary, status: "Loaded. Ask any question about the books."}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header and summary, status, spacer
		vh := max(3, msg.Height-reserved)
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil

	case answerMsg:
		if msg.query != m.lastQuery {
			return m, nil
		}
		m.asking = false
		m.answer = msg.reply.Text
		m.status = "Answer ready."
		if msg.reply.Fallback {
			m.status = "No generated answer available."
		}
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			switch strings.ToLower(q) {
			case "":
				m.status = "Please enter a question."
				return m, nil
			case "quit", "exit", "q":
				return m, tea.Quit
			}
			m.search(q)
			m.input.SetValue("")
			m.viewport.SetContent(m.renderCurrentResult())
			return m, nil
		case "ctrl+a":
			if m.lastQuery == "" || len(m.results) == 0 || m.asking {
				return m, nil
			}
			m.asking = true
			m.status = "Thinking..."
			return m, m.ask(m.lastQuery, m.results)
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) search(q string) {
	res := m.port.Search(q)
	m.lastQuery = q
	m.answer = ""
	m.asking = false
	m.cursor = 0
	if !retrieval.HasOverlap(res) {
		m.results = nil
		m.status = NoResultsMessage
		return
	}
	m.results = res
	m.status = fmt.Sprintf("Found %d relevant passages for %q", len(res), q)
}

func (m Model) ask(q string, results []retrieval.Result) tea.Cmd {
	port := m.port
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		return answerMsg{query: q, reply: port.Ask(ctx, q, results)}
	}
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Book Questions")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrentResult() string {
	if len(m.results) == 0 {
		return "No results yet."
	}
	var sb strings.Builder
	if m.answer != "" {
		sb.WriteString(answerStyle.Render(m.answer))
		sb.WriteString("\n\n")
	}
	r := m.results[m.cursor]
	fmt.Fprintf(&sb, "Result %d/%d  score=%.3f\n", m.cursor+1, len(m.results), r.Score)
	fmt.Fprintf(&sb, "Book: %s\nChapter: %s\nWords: %d\n\n", r.Chunk.BookTitle, r.Chunk.Chapter, r.Chunk.WordCount)
	sb.WriteString(highlightBestSentence(r.Chunk.Text, m.lastQuery))
	return sb.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	answerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	wordRe         = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence emphasises the sentence sharing the most words with
// the query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := tokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx, bestScore := 0, -1
	for i, s := range sentences {
		if score := overlap(qTokens, s); score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sent = highlightStyle.Render(sent)
		}
		sentences[i] = sent
	}
	return strings.Join(sentences, " ")
}

func tokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func overlap(queryTokens map[string]struct{}, sentence string) int {
	n := 0
	for t := range tokenSet(sentence) {
		if _, ok := queryTokens[t]; ok {
			n++
		}
	}
	return n
}
