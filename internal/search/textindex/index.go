package textindex

import (
	"math"
	"slices"
	"sort"
	"strings"
)

const (
	maxPrefixExpansions = 64
	prefixPenalty       = 0.8
)

// Field is one weighted piece of a document's text
type Field struct {
	Text   string
	Weight float64
}

type posting struct {
	doc int
	tf  float64
}

type Hit struct {
	Doc   int
	Score float64
}

// Index is immutable once built and safe for concurrent reads
type Index struct {
	docs     int
	postings map[string][]posting
	terms    []string
}

type Builder struct {
	docs     int
	postings map[string][]posting
}

func NewBuilder() *Builder {
	return &Builder{postings: map[string][]posting{}}
}

// Add indexes one document and returns its ordinal
func (b *Builder) Add(fields ...Field) int {
	doc := b.docs
	b.docs++

	tf := map[string]float64{}
	for _, f := range fields {
		w := f.Weight
		if w <= 0 {
			w = 1
		}
		for _, tok := range Tokenize(f.Text) {
			tf[tok] += w
		}
	}
	for term, v := range tf {
		b.postings[term] = append(b.postings[term], posting{doc: doc, tf: v})
	}
	return doc
}

func (b *Builder) Build() *Index {
	terms := make([]string, 0, len(b.postings))
	for t := range b.postings {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	idx := &Index{docs: b.docs, postings: b.postings, terms: terms}
	b.postings = nil
	return idx
}

func (x *Index) Len() int { return x.docs }

// Search ranks documents containing every query token. The last token also matches as a
// prefix unless the query ends in a separator. Equal scores keep insertion order.
func (x *Index) Search(query string, limit int) []Hit {
	tokens := Tokenize(query)
	if len(tokens) == 0 || x.docs == 0 {
		return nil
	}
	prefixLast := endsInsideToken(query)

	var scores map[int]float64
	for i, tok := range tokens {
		expand := prefixLast && i == len(tokens)-1
		tokScores := x.scoreToken(tok, expand)
		if len(tokScores) == 0 {
			return nil
		}
		if scores == nil {
			scores = tokScores
			continue
		}
		// AND: keep only docs that matched every token so far
		for doc, s := range scores {
			ts, ok := tokScores[doc]
			if !ok {
				delete(scores, doc)
				continue
			}
			scores[doc] = s + ts
		}
		if len(scores) == 0 {
			return nil
		}
	}

	hits := make([]Hit, 0, len(scores))
	for doc, s := range scores {
		hits = append(hits, Hit{Doc: doc, Score: s})
	}
	SortHits(hits)
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// SortHits orders by score descending, then document ordinal
func SortHits(hits []Hit) {
	slices.SortFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return a.Doc - b.Doc
		}
	})
}

func (x *Index) scoreToken(tok string, prefix bool) map[int]float64 {
	out := map[int]float64{}
	add := func(term string, factor float64) {
		ps := x.postings[term]
		if len(ps) == 0 {
			return
		}
		idf := math.Log(1 + float64(x.docs)/float64(len(ps)))
		for _, p := range ps {
			s := p.tf * idf * factor
			if s > out[p.doc] {
				out[p.doc] = s
			}
		}
	}

	add(tok, 1)
	if !prefix {
		return out
	}
	i := sort.SearchStrings(x.terms, tok)
	n := 0
	for ; i < len(x.terms) && n < maxPrefixExpansions; i++ {
		term := x.terms[i]
		if !strings.HasPrefix(term, tok) {
			break
		}
		if term == tok {
			continue
		}
		add(term, prefixPenalty)
		n++
	}
	return out
}
