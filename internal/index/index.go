// Package index keeps a bleve full-text index of acquired papers.
//
// Each downloaded paper is indexed with its metadata and the text of its
// first pages, so the local library can be searched without re-reading PDFs.
package index

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/reference-service/internal/domain"
	"github.com/helixir/reference-service/internal/pdf"
)

const (
	documentType    = "paper"
	defaultMaxPages = 3
	defaultLimit    = 20
	maxLimit        = 100
)

// Document is what gets indexed for one paper.
type Document struct {
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	Abstract string   `json:"abstract"`
	Venue    string   `json:"venue"`
	Year     int      `json:"year"`
	DOI      string   `json:"doi"`
	Text     string   `json:"text"`
}

// BleveType selects the paper document mapping.
func (Document) BleveType() string { return documentType }

// Hit is one search result.
type Hit struct {
	PaperID string  `json:"paper_id"`
	Score   float64 `json:"score"`
	Title   string  `json:"title"`
}

// TextExtractor returns the text of the first maxPages pages of a PDF.
type TextExtractor func(path string, maxPages int) (string, error)

// BleveIndex is a full-text index of papers keyed by paper id.
type BleveIndex struct {
	index    bleve.Index
	maxPages int
	extract  TextExtractor
	logger   zerolog.Logger
}

// Option configures a BleveIndex.
type Option func(*BleveIndex)

// WithMaxPages limits how many PDF pages are extracted per paper.
func WithMaxPages(n int) Option {
	return func(i *BleveIndex) {
		if n > 0 {
			i.maxPages = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(i *BleveIndex) { i.logger = l.With().Str("component", "index").Logger() }
}

// WithTextExtractor replaces pdf.ExtractText.
func WithTextExtractor(fn TextExtractor) Option {
	return func(i *BleveIndex) { i.extract = fn }
}

// Open opens the index at path, creating it when it does not exist.
func Open(path string, opts ...Option) (*BleveIndex, error) {
	if path == "" {
		return nil, domain.NewConfigError("index.path", "index path is required")
	}
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		idx, err = bleve.New(path, newMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", path, err)
	}
	return newIndex(idx, opts), nil
}

// NewMemory creates an index that lives only in memory.
func NewMemory(opts ...Option) (*BleveIndex, error) {
	idx, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("creating memory index: %w", err)
	}
	return newIndex(idx, opts), nil
}

func newIndex(idx bleve.Index, opts []Option) *BleveIndex {
	i := &BleveIndex{
		index:    idx,
		maxPages: defaultMaxPages,
		extract:  pdf.ExtractText,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func newMapping() mapping.IndexMapping {
	text := bleve.NewTextFieldMapping()
	text.Analyzer = en.AnalyzerName

	stored := bleve.NewTextFieldMapping()
	stored.Analyzer = en.AnalyzerName
	stored.Store = true

	exact := bleve.NewTextFieldMapping()
	exact.Analyzer = keyword.Name

	year := bleve.NewNumericFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("title", stored)
	doc.AddFieldMappingsAt("authors", text)
	doc.AddFieldMappingsAt("abstract", text)
	doc.AddFieldMappingsAt("venue", text)
	doc.AddFieldMappingsAt("text", text)
	doc.AddFieldMappingsAt("doi", exact)
	doc.AddFieldMappingsAt("year", year)

	m := bleve.NewIndexMapping()
	m.AddDocumentMapping(documentType, doc)
	m.DefaultAnalyzer = en.AnalyzerName
	return m
}

// Index adds or replaces a downloaded paper. A PDF whose text cannot be
// extracted is still indexed by its metadata.
func (i *BleveIndex) Index(ctx context.Context, p *domain.Paper) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p == nil || p.ID == uuid.Nil {
		return domain.NewValidationError("paper", "paper id is required")
	}

	doc := Document{
		Title:    p.Title,
		Authors:  p.AuthorNames(),
		Abstract: p.Abstract,
		Venue:    p.Venue,
		Year:     p.PublicationYear,
		DOI:      p.DOI(),
	}
	if p.LocalPath != "" {
		text, err := i.extract(p.LocalPath, i.maxPages)
		if err != nil {
			i.logger.Warn().Err(err).Str("paper_id", p.ID.String()).Msg("text extraction failed, indexing metadata only")
		}
		doc.Text = text
	}

	if err := i.index.Index(p.ID.String(), doc); err != nil {
		return fmt.Errorf("indexing paper %s: %w", p.ID, err)
	}
	return nil
}

// Search runs a free-text query over titles, authors, abstracts and extracted
// text, best matches first.
func (i *BleveIndex) Search(ctx context.Context, text string, limit int) ([]Hit, uint64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, 0, domain.NewValidationError("q", "search text is required")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	var fields []query.Query
	for _, field := range []string{"title", "authors", "abstract", "venue", "text"} {
		q := query.NewMatchQuery(text)
		q.SetField(field)
		if field == "title" {
			q.SetBoost(2)
		}
		fields = append(fields, q)
	}
	doi := query.NewTermQuery(domain.NormalizeDOI(text))
	doi.SetField("doi")
	fields = append(fields, doi)

	req := bleve.NewSearchRequestOptions(query.NewDisjunctionQuery(fields), limit, 0, false)
	req.Fields = []string{"title"}

	res, err := i.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, 0, fmt.Errorf("searching index: %w", err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		title, _ := h.Fields["title"].(string)
		hits = append(hits, Hit{PaperID: h.ID, Score: h.Score, Title: title})
	}
	return hits, res.Total, nil
}

// Delete removes a paper from the index.
func (i *BleveIndex) Delete(id string) error {
	return i.index.Delete(id)
}

// Count returns the number of indexed papers.
func (i *BleveIndex) Count() (uint64, error) {
	return i.index.DocCount()
}

// Close releases the index.
func (i *BleveIndex) Close() error {
	return i.index.Close()
}
