package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dgallion1/bookrag/internal/answer"
	"github.com/dgallion1/bookrag/internal/book"
	"github.com/dgallion1/bookrag/internal/retrieval"
)

type fakePort struct {
	results []retrieval.Result
	queries []string
	asked   string
}

func (f *fakePort) Search(q string) []retrieval.Result {
	f.queries = append(f.queries, q)
	return f.results
}

func (f *fakePort) Ask(_ context.Context, q string, _ []retrieval.Result) answer.Reply {
	f.asked = q
	return answer.Reply{Text: "Attention is the doorway."}
}

func sampleResults() []retrieval.Result {
	return []retrieval.Result{
		{Chunk: book.Chunk{BookTitle: "Mind", Chapter: "Origins", Text: "Breath is steady. Attention is a doorway.", WordCount: 7}, Score: 0.4, Lexical: 0.1},
		{Chunk: book.Chunk{BookTitle: "Body", Chapter: "Practice", Text: "Walk slowly.", WordCount: 2}, Score: 0.3, Lexical: 0.05},
	}
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return next.(Model)
}

func submit(t *testing.T, m Model, q string) (Model, tea.Cmd) {
	t.Helper()
	m.input.SetValue(q)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return next.(Model), cmd
}

func TestModel_SearchShowsResults(t *testing.T) {
	port := &fakePort{results: sampleResults()}
	m := sized(t, New(port, "2 books"))

	m, _ = submit(t, m, "what is attention")
	if len(port.queries) != 1 || port.queries[0] != "what is attention" {
		t.Fatalf("expected one search, got %v", port.queries)
	}
	if len(m.results) != 2 || !strings.Contains(m.status, "Found 2") {
		t.Errorf("unexpected state: %d results, status %q", len(m.results), m.status)
	}
	view := m.renderCurrentResult()
	if !strings.Contains(view, "Book: Mind") || !strings.Contains(view, "Result 1/2") {
		t.Errorf("unexpected rendering %q", view)
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	if m.cursor != 1 || !strings.Contains(m.renderCurrentResult(), "Book: Body") {
		t.Errorf("expected cursor on second result, got %d", m.cursor)
	}
	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if next.(Model).cursor != 0 {
		t.Error("expected cursor to wrap around")
	}
}

func TestModel_NoOverlap(t *testing.T) {
	port := &fakePort{results: []retrieval.Result{{Score: 0.3, Lexical: 0}}}
	m := sized(t, New(port, ""))

	m, _ = submit(t, m, "zebra")
	if m.status != NoResultsMessage || len(m.results) != 0 {
		t.Errorf("expected no-results message, got %q with %d results", m.status, len(m.results))
	}
}

func TestModel_EmptyAndQuit(t *testing.T) {
	port := &fakePort{}
	m := sized(t, New(port, ""))

	m, cmd := submit(t, m, "   ")
	if cmd != nil || len(port.queries) != 0 || m.status != "Please enter a question." {
		t.Errorf("expected prompt for a question, got status %q", m.status)
	}

	for _, word := range []string{"quit", "EXIT", "q"} {
		_, cmd := submit(t, m, word)
		if cmd == nil {
			t.Fatalf("%q: expected quit command", word)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%q: expected QuitMsg", word)
		}
	}
}

func TestModel_Ask(t *testing.T) {
	port := &fakePort{results: sampleResults()}
	m := sized(t, New(port, ""))
	m, _ = submit(t, m, "attention")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlA})
	m = next.(Model)
	if cmd == nil || !m.asking {
		t.Fatal("expected an answer command")
	}
	msg := cmd()
	if port.asked != "attention" {
		t.Errorf("expected question forwarded, got %q", port.asked)
	}

	next, _ = m.Update(msg)
	m = next.(Model)
	if m.asking || m.answer != "Attention is the doorway." {
		t.Errorf("expected answer stored, got %q", m.answer)
	}
	if !strings.Contains(m.renderCurrentResult(), "Attention is the doorway.") {
		t.Error("expected answer rendered above the passage")
	}
}

func TestModel_StaleAnswerIgnored(t *testing.T) {
	port := &fakePort{results: sampleResults()}
	m := sized(t, New(port, ""))
	m, _ = submit(t, m, "attention")

	next, _ := m.Update(answerMsg{query: "older question", reply: answer.Reply{Text: "stale"}})
	if next.(Model).answer != "" {
		t.Error("expected answer for an older query to be dropped")
	}
}

func TestHighlightBestSentence(t *testing.T) {
	got := highlightBestSentence("Breath is steady. Attention is a doorway.", "attention")
	if !strings.Contains(got, "Breath is steady.") || !strings.Contains(got, "Attention is a doorway.") {
		t.Errorf("expected both sentences kept, got %q", got)
	}
	if highlightBestSentence("", "x") != "" {
		t.Error("expected empty text unchanged")
	}
}
