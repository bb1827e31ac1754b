package httpserver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/helixir/reference-service/internal/acquisition"
	"github.com/helixir/reference-service/internal/domain"
	"github.com/helixir/reference-service/internal/repository"
)

// Pagination and validation constants.
const (
	defaultPageSize    = 50
	maxPageSize        = 100
	maxRequestBodySize = 1 << 20 // 1 MB limit for JSON bodies
	maxVerifyBodySize  = 4 << 20 // manuscripts are larger
)

// acquisitionRequest needs a query, a list of known DOIs, or both.
type acquisitionRequest struct {
	Query      string   `json:"query" validate:"required_without=DOIs,omitempty,min=3,max=1000"`
	DOIs       []string `json:"dois" validate:"omitempty,max=200,dive,required,max=512"`
	MaxResults int      `json:"max_results" validate:"gte=0,lte=200"`
	YearFrom   int      `json:"year_from" validate:"omitempty,gte=1000,lte=2100"`
	YearTo     int      `json:"year_to" validate:"omitempty,gte=1000,lte=2100"`
}

type resolutionRequest struct {
	DOI     string `json:"doi" validate:"required_without_all=Title ArXivID PMID,max=512"`
	Title   string `json:"title" validate:"max=1000"`
	ArXivID string `json:"arxiv_id" validate:"max=64"`
	PMID    string `json:"pmid" validate:"omitempty,numeric,max=16"`
}

type verificationRequest struct {
	Text string `json:"text" validate:"required"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate reads a JSON body into dst and validates it, writing a
// 400 response on failure.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, limit int64, dst interface{}) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if int64(len(body)) > limit {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "required_without":
		return "query or dois is required"
	case "required_without_all":
		return "one of doi, title, arxiv_id or pmid is required"
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// startAcquisition handles POST /acquisitions. The run is synchronous and
// answers with the acquisition report.
func (s *Server) startAcquisition(w http.ResponseWriter, r *http.Request) {
	var req acquisitionRequest
	if !s.decodeAndValidate(w, r, maxRequestBodySize, &req) {
		return
	}

	areq := acquisition.Request{
		Query:      strings.TrimSpace(req.Query),
		MaxResults: req.MaxResults,
		YearFrom:   req.YearFrom,
		YearTo:     req.YearTo,
	}
	for _, doi := range req.DOIs {
		if d := domain.NormalizeDOI(doi); d != "" {
			areq.Papers = append(areq.Papers, &domain.Paper{
				Identifiers: domain.Identifiers{domain.IdentifierTypeDOI: d},
			})
		}
	}
	if err := areq.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}

	report, err := s.deps.Acquirer.Run(r.Context(), areq)
	if err != nil {
		s.logger.Error().Err(err).Msg("acquisition run failed")
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// resolveLocation handles POST /resolutions. A paper already in the store is
// resolved with all its known identifiers, and a found location is recorded.
func (s *Server) resolveLocation(w http.ResponseWriter, r *http.Request) {
	var req resolutionRequest
	if !s.decodeAndValidate(w, r, maxRequestBodySize, &req) {
		return
	}
	ctx := r.Context()

	paper := &domain.Paper{Title: strings.TrimSpace(req.Title), Identifiers: domain.Identifiers{}}
	if doi := domain.NormalizeDOI(req.DOI); doi != "" {
		paper.Identifiers[domain.IdentifierTypeDOI] = doi
	}
	if req.ArXivID != "" {
		paper.Identifiers[domain.IdentifierTypeArXivID] = strings.TrimSpace(req.ArXivID)
	}
	if req.PMID != "" {
		paper.Identifiers[domain.IdentifierTypePubMedID] = req.PMID
	}

	stored, err := repository.FindMatch(ctx, s.deps.Papers, paper)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if stored != nil {
		paper = stored
	}

	loc := s.deps.Resolver.Resolve(ctx, paper)
	resp := resolutionResponse{Found: loc != nil, Location: loc}
	if stored != nil {
		resp.PaperID = stored.ID.String()
		if loc != nil {
			if _, err := s.deps.Papers.RecordAcquisition(ctx, stored.ID, repository.AcquisitionUpdate{
				PDFURL: loc.URL,
				Status: domain.StatusPDFURLKnown,
			}); err != nil {
				s.logger.Warn().Err(err).Str("paper_id", stored.ID.String()).Msg("failed to record resolved location")
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// verifyCitations handles POST /verifications.
func (s *Server) verifyCitations(w http.ResponseWriter, r *http.Request) {
	if s.deps.Verifier == nil {
		writeError(w, http.StatusServiceUnavailable, "citation verification is not configured")
		return
	}
	var req verificationRequest
	if !s.decodeAndValidate(w, r, maxVerifyBodySize, &req) {
		return
	}

	annotated, report, err := s.deps.Verifier.Verify(r.Context(), req.Text)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, verificationResponse{
		AnnotatedText: annotated,
		Summary:       report.Summary(),
		Report:        report,
	})
}

// getPaper handles GET /papers/{paperID}.
func (s *Server) getPaper(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, chi.URLParam(r, "paperID"), "paper_id")
	if !ok {
		return
	}
	paper, err := s.deps.Papers.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, domainPaperToResponse(paper))
}

// listPapers handles GET /papers with optional status and source filters.
func (s *Server) listPapers(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaginationParams(r)
	filter := repository.PaperFilter{Limit: limit, Offset: offset}

	for _, st := range r.URL.Query()["status"] {
		filter.Statuses = append(filter.Statuses, domain.AcquisitionStatus(st))
	}
	if sourceParam := r.URL.Query().Get("source"); sourceParam != "" {
		source := domain.SourceType(sourceParam)
		filter.Source = &source
	}
	if err := filter.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}

	papers, totalCount, err := s.deps.Papers.List(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	responses := make([]paperResponse, len(papers))
	for i, p := range papers {
		responses[i] = domainPaperToResponse(p)
	}
	writeJSON(w, http.StatusOK, listPapersResponse{
		Papers:        responses,
		NextPageToken: encodeHTTPPageToken(offset, limit, int(totalCount)),
		TotalCount:    int(totalCount),
	})
}

// getWishlist handles GET /papers/wishlist. format=yaml returns the exported
// wishlist document instead of JSON.
func (s *Server) getWishlist(w http.ResponseWriter, r *http.Request) {
	entries, err := acquisition.Wishlist(r.Context(), s.deps.Papers)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if format := r.URL.Query().Get("format"); format == acquisition.FormatYAML {
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		if err := acquisition.WriteWishlist(w, entries, format); err != nil {
			s.logger.Error().Err(err).Msg("failed to write wishlist")
		}
		return
	}
	writeJSON(w, http.StatusOK, wishlistResponse{Papers: entries, TotalCount: len(entries)})
}

// searchPapers handles GET /papers/search?q=.
func (s *Server) searchPapers(w http.ResponseWriter, r *http.Request) {
	if s.deps.Index == nil {
		writeError(w, http.StatusServiceUnavailable, "full-text index is not enabled")
		return
	}
	limit, _ := parsePaginationParams(r)
	hits, total, err := s.deps.Index.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponse{Hits: hits, TotalCount: total})
}

// writeDomainError maps domain errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, domain.ErrInvalidInput):
		var ve *domain.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
		} else {
			writeError(w, http.StatusBadRequest, "invalid input")
		}
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "resource already exists")
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, domain.ErrServiceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// parseUUID parses a UUID from a string, writing a 400 error response if invalid.
// The parse error details are not included to avoid echoing input.
func parseUUID(w http.ResponseWriter, s, fieldName string) (uuid.UUID, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a valid UUID", fieldName))
		return uuid.Nil, false
	}
	return id, true
}

// parsePaginationParams extracts page_size and page_token from query parameters.
func parsePaginationParams(r *http.Request) (limit, offset int) {
	limit = defaultPageSize
	if pageSizeStr := r.URL.Query().Get("page_size"); pageSizeStr != "" {
		if parsed, err := strconv.Atoi(pageSizeStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	if pageToken := r.URL.Query().Get("page_token"); pageToken != "" {
		decoded, err := base64.StdEncoding.DecodeString(pageToken)
		if err == nil {
			if parsed, parseErr := strconv.Atoi(string(decoded)); parseErr == nil && parsed > 0 {
				offset = parsed
			}
		}
	}

	return limit, offset
}

// encodeHTTPPageToken encodes the next offset as a base64 page token.
// Returns an empty string if there are no more results.
func encodeHTTPPageToken(offset, limit, totalCount int) string {
	nextOffset := offset + limit
	if nextOffset < totalCount {
		return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(nextOffset)))
	}
	return ""
}
