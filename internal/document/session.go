package document

import "strings"

// Session is a viewer's search state over one corpus: the full document or
// a single extracted page. Changing the corpus or clearing the query resets
// navigation.
type Session struct {
	corpus  string
	query   string
	cursor  *Cursor
	metrics Metrics
}

// NewSession starts an idle session over corpus.
func NewSession(corpus string, m Metrics) *Session {
	return &Session{
		corpus:  corpus,
		cursor:  NewCursor(),
		metrics: m.normalized(),
	}
}

// SetCorpus swaps the searched text (a new page was selected) and resets.
func (s *Session) SetCorpus(corpus string) {
	s.corpus = corpus
	s.query = ""
	s.cursor.Reset()
}

// SetQuery runs a new search. An empty query resets the session.
func (s *Session) SetQuery(query string) {
	s.query = query
	if strings.TrimSpace(query) == "" {
		s.cursor.Reset()
		return
	}
	s.cursor.Load(Search(s.corpus, query))
}

// Next selects the following match.
func (s *Session) Next() { s.cursor.Next() }

// Prev selects the preceding match.
func (s *Session) Prev() { s.cursor.Prev() }

// Reset clears the query and the results.
func (s *Session) Reset() {
	s.query = ""
	s.cursor.Reset()
}

func (s *Session) Cursor() *Cursor { return s.cursor }

func (s *Session) Query() string { return s.query }

func (s *Session) Corpus() string { return s.corpus }

func (s *Session) State() CursorState { return s.cursor.State() }

// Highlights renders the corpus with the current match flagged.
func (s *Session) Highlights() []Span {
	if s.cursor.State() == StateIdle {
		return plainSpans(s.corpus)
	}
	current, _ := s.cursor.Current()
	return BuildHighlights(s.corpus, s.query, current)
}

// ScrollOffset is the scroll position for the current match, or 0 when
// there is no selection.
func (s *Session) ScrollOffset() int {
	current, ok := s.cursor.Current()
	if !ok {
		return 0
	}
	return ScrollOffset(s.corpus, current, s.metrics)
}
