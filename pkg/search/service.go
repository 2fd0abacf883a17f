package search

import (
	"context"
	"strings"

	"github.com/activecm/rita-pdns/pkg/metrics"
	"github.com/activecm/rita-pdns/pkg/record"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// search modes reported to metrics and logs
const (
	ModeExact    = "exact"
	ModeFallback = "fallback"
	ModeLike     = "like"
)

//ErrEmptyTerm is returned when a search is requested without a term
var ErrEmptyTerm = errors.New("search term must not be empty")

type (
	//Finder is the read side of a record.Repository
	Finder interface {
		Find(ctx context.Context, term string) ([]record.Record, error)
		Like(ctx context.Context, term string) ([]record.Record, error)
	}

	//Service answers passive dns lookups
	Service struct {
		finder  Finder
		log     *log.Logger
		metrics *metrics.Metrics
	}
)

//NewService creates a Service reading from finder
func NewService(finder Finder, logger *log.Logger, m *metrics.Metrics) *Service {
	return &Service{
		finder:  finder,
		log:     logger,
		metrics: m,
	}
}

//Search returns the records whose query or answer equals term. When there
//are none it returns the records whose query or answer contains term.
func (s *Service) Search(ctx context.Context, term string) ([]record.Record, error) {
	if strings.TrimSpace(term) == "" {
		return nil, ErrEmptyTerm
	}

	records, err := s.finder.Find(ctx, term)
	if err != nil {
		return nil, errors.Wrapf(err, "exact search for %q", term)
	}
	if len(records) > 0 {
		s.observe(ModeExact, term, len(records))
		return records, nil
	}

	records, err = s.finder.Like(ctx, term)
	if err != nil {
		return nil, errors.Wrapf(err, "substring search for %q", term)
	}
	s.observe(ModeFallback, term, len(records))
	return records, nil
}

//Like returns the records whose query or answer contains term
func (s *Service) Like(ctx context.Context, term string) ([]record.Record, error) {
	if strings.TrimSpace(term) == "" {
		return nil, ErrEmptyTerm
	}

	records, err := s.finder.Like(ctx, term)
	if err != nil {
		return nil, errors.Wrapf(err, "substring search for %q", term)
	}
	s.observe(ModeLike, term, len(records))
	return records, nil
}

func (s *Service) observe(mode, term string, found int) {
	s.metrics.ObserveSearch(mode)
	s.log.WithFields(log.Fields{
		"mode":    mode,
		"term":    term,
		"results": found,
	}).Debug("Searched records")
}
