// Package search is an in-memory inverted index over journal entries, tasks
// and notes.
//
// The index is rebuilt from the local cache, never from the remote store,
// and kept current between rebuilds by single-document updates. Queries
// match whole terms, prefixes and fuzzy subsequences, with title hits
// weighted above body hits.
package search

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/jotdeck/jotdeck/internal/schema"
)

// ErrDuplicate is returned by Add for a document that is already indexed.
var ErrDuplicate = errors.New("document already indexed")

const (
	titleBoost   = 3.0
	exactWeight  = 1.0
	prefixWeight = 0.6
	fuzzyWeight  = 0.3

	minPrefixLen = 2
	minFuzzyLen  = 3
	maxFuzzy     = 5
)

// Source provides the documents for a full rebuild. *cache.DB satisfies it.
type Source interface {
	AllJournal(ctx context.Context) ([]schema.JournalEntry, error)
	AllTasks(ctx context.Context) ([]schema.Task, error)
	AllNotes(ctx context.Context) ([]schema.Note, error)
}

// Filters narrows a search.
type Filters struct {
	Types  []DocType // empty = all kinds
	Folder string    // notes only
	Status string    // tasks only
	Limit  int       // 0 = no limit
}

// Result is one ranked hit.
type Result struct {
	Document
	Score   float64  `json:"score"`
	Terms   []string `json:"terms"` // index terms that matched
	Snippet string   `json:"snippet,omitempty"`
}

type posting struct {
	title int
	body  int
}

// Index is safe for concurrent use.
type Index struct {
	mu       sync.RWMutex
	docs     map[string]Document
	postings map[string]map[string]posting // term -> doc key -> counts
	vocab    []string                      // sorted terms, nil when stale

	rebuildMu    sync.Mutex
	rebuildTimer *time.Timer
	rebuildDelay time.Duration
	closed       bool

	logger *log.Logger
}

// New creates an empty index. rebuildDelay is the quiet period used by
// ScheduleRebuild; a nil logger writes to stderr.
func New(rebuildDelay time.Duration, logger *log.Logger) *Index {
	if logger == nil {
		logger = log.New(os.Stderr, "[search] ", log.LstdFlags)
	}
	if rebuildDelay <= 0 {
		rebuildDelay = 2 * time.Second
	}
	return &Index{
		docs:         make(map[string]Document),
		postings:     make(map[string]map[string]posting),
		rebuildDelay: rebuildDelay,
		logger:       logger,
	}
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// Add indexes a new document.
func (ix *Index) Add(doc Document) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.docs[doc.Key()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, doc.Key())
	}
	ix.addLocked(doc)
	return nil
}

// Update indexes doc, replacing any previous version.
func (ix *Index) Update(doc Document) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(doc.Key())
	ix.addLocked(doc)
}

// Remove drops a document. Unknown documents are ignored.
func (ix *Index) Remove(t DocType, id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(Key(t, id))
}

// Replace swaps the whole index content for docs.
func (ix *Index) Replace(docs []Document) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.docs = make(map[string]Document, len(docs))
	ix.postings = make(map[string]map[string]posting)
	ix.vocab = nil
	for _, doc := range docs {
		ix.addLocked(doc)
	}
}

func (ix *Index) addLocked(doc Document) {
	key := doc.Key()
	ix.docs[key] = doc

	for term, n := range termCounts(doc.Title) {
		p := ix.postingLocked(term)
		hits := p[key]
		hits.title += n
		p[key] = hits
	}
	for term, n := range termCounts(doc.Body) {
		p := ix.postingLocked(term)
		hits := p[key]
		hits.body += n
		p[key] = hits
	}
}

func (ix *Index) postingLocked(term string) map[string]posting {
	p, ok := ix.postings[term]
	if !ok {
		p = make(map[string]posting)
		ix.postings[term] = p
		ix.vocab = nil
	}
	return p
}

func (ix *Index) removeLocked(key string) {
	doc, ok := ix.docs[key]
	if !ok {
		return
	}
	delete(ix.docs, key)
	for _, text := range []string{doc.Title, doc.Body} {
		for _, term := range tokenize(text) {
			p, ok := ix.postings[term]
			if !ok {
				continue
			}
			delete(p, key)
			if len(p) == 0 {
				delete(ix.postings, term)
				ix.vocab = nil
			}
		}
	}
}

// vocabulary returns the sorted term list, rebuilding it if stale. The
// caller must not hold ix.mu.
func (ix *Index) vocabulary() []string {
	ix.mu.RLock()
	v := ix.vocab
	ix.mu.RUnlock()
	if v != nil {
		return v
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.vocab == nil {
		v := make([]string, 0, len(ix.postings))
		for term := range ix.postings {
			v = append(v, term)
		}
		sort.Strings(v)
		ix.vocab = v
	}
	return ix.vocab
}

type expansion struct {
	term   string
	weight float64
}

// expand maps a query token onto index terms: itself, terms it prefixes and
// fuzzy subsequence matches.
func expand(token string, vocab []string) []expansion {
	seen := make(map[string]bool)
	var out []expansion

	i := sort.SearchStrings(vocab, token)
	if i < len(vocab) && vocab[i] == token {
		out = append(out, expansion{term: token, weight: exactWeight})
		seen[token] = true
	}

	if len([]rune(token)) >= minPrefixLen {
		for j := i; j < len(vocab) && strings.HasPrefix(vocab[j], token); j++ {
			if seen[vocab[j]] {
				continue
			}
			// Shorter completions are closer to what was typed.
			ratio := float64(len(token)) / float64(len(vocab[j]))
			out = append(out, expansion{term: vocab[j], weight: prefixWeight * ratio})
			seen[vocab[j]] = true
		}
	}

	if len([]rune(token)) >= minFuzzyLen {
		matches := fuzzy.Find(token, vocab)
		added := 0
		for _, m := range matches {
			if added == maxFuzzy {
				break
			}
			if seen[m.Str] {
				continue
			}
			ratio := float64(len(token)) / float64(len(m.Str))
			out = append(out, expansion{term: m.Str, weight: fuzzyWeight * ratio})
			seen[m.Str] = true
			added++
		}
	}
	return out
}

// Search ranks documents against query. Every query token contributes its
// best-matching expansion, and the total is scaled by the square of the
// fraction of tokens that matched.
func (ix *Index) Search(query string, f Filters) []Result {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil
	}
	vocab := ix.vocabulary()

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	type acc struct {
		score   float64
		matched int
		terms   []string
	}
	scores := make(map[string]*acc)

	for _, tok := range tokens {
		best := make(map[string]float64)
		bestTerm := make(map[string]string)
		for _, ex := range expand(tok, vocab) {
			for key, hits := range ix.postings[ex.term] {
				s := ex.weight * (titleBoost*tf(hits.title) + tf(hits.body))
				if s > best[key] {
					best[key] = s
					bestTerm[key] = ex.term
				}
			}
		}
		for key, s := range best {
			a, ok := scores[key]
			if !ok {
				a = &acc{}
				scores[key] = a
			}
			a.score += s
			a.matched++
			a.terms = append(a.terms, bestTerm[key])
		}
	}

	results := make([]Result, 0, len(scores))
	for key, a := range scores {
		doc := ix.docs[key]
		if !f.match(doc) {
			continue
		}
		coverage := float64(a.matched) / float64(len(tokens))
		results = append(results, Result{
			Document: doc,
			Score:    a.score * coverage * coverage,
			Terms:    a.terms,
			Snippet:  snippet(doc.Body, a.terms),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Key() < results[j].Key()
	})
	if f.Limit > 0 && len(results) > f.Limit {
		results = results[:f.Limit]
	}
	return results
}

func tf(n int) float64 {
	if n == 0 {
		return 0
	}
	return 1 + math.Log(float64(n))
}

func (f Filters) match(doc Document) bool {
	if len(f.Types) > 0 {
		ok := false
		for _, t := range f.Types {
			if t == doc.Type {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if f.Folder != "" && doc.Folder != f.Folder {
		return false
	}
	if f.Status != "" && doc.Status != f.Status {
		return false
	}
	return true
}

const snippetRadius = 40

// snippet returns the text around the first occurrence of any term.
func snippet(body string, terms []string) string {
	if body == "" {
		return ""
	}
	lower := strings.ToLower(body)
	pos := -1
	for _, term := range terms {
		if i := strings.Index(lower, term); i >= 0 && (pos < 0 || i < pos) {
			pos = i
		}
	}
	runes := []rune(body)
	if pos < 0 {
		return schema.Preview(body, 2*snippetRadius)
	}
	// Convert the byte offset in lower to a rune offset. ToLower can change
	// byte lengths, so count runes in the lowered prefix.
	runePos := len([]rune(lower[:pos]))
	start := runePos - snippetRadius
	if start < 0 {
		start = 0
	}
	end := runePos + snippetRadius
	if end > len(runes) {
		end = len(runes)
	}
	if start > len(runes) {
		start = len(runes)
	}
	s := strings.TrimSpace(string(runes[start:end]))
	if start > 0 {
		s = "…" + s
	}
	if end < len(runes) {
		s += "…"
	}
	return s
}
