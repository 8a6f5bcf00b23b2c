package replay

import (
	"errors"
	"sync"

	"github.com/avelichka/ladderd/internal/domain"
	"github.com/avelichka/ladderd/internal/eventlog"
)

// Service exposes a shared log to the API layer, holding one cursor
// engine per ticker so sequential scrub requests stay incremental.
// Safe for concurrent use.
type Service struct {
	mu         sync.Mutex
	log        *eventlog.Log
	engines    map[string]*Engine
	timeframes []int64
	defaultTF  int64
}

// NewService wraps a loaded log. Returns domain.ErrEmptyLog when the
// log holds no events.
func NewService(log *eventlog.Log, timeframes []int64, defaultTF int64) (*Service, error) {
	if log.Empty() {
		return nil, domain.ErrEmptyLog
	}
	return &Service{
		log:        log,
		engines:    make(map[string]*Engine),
		timeframes: timeframes,
		defaultTF:  defaultTF,
	}, nil
}

// Tickers lists the instruments present in the log, sorted.
func (s *Service) Tickers() []string {
	return s.log.Tickers()
}

// Bounds returns the first and last timestamp across the whole log.
func (s *Service) Bounds() (minTS, maxTS int64) {
	minTS, _ = s.log.MinTS()
	maxTS, _ = s.log.MaxTS()
	return minTS, maxTS
}

// engineFor returns the cursor engine for ticker, building it on first
// use. Callers hold s.mu.
func (s *Service) engineFor(ticker string) (*Engine, error) {
	if eng, ok := s.engines[ticker]; ok {
		return eng, nil
	}
	eng, err := NewEngine(s.log, ticker, s.timeframes, s.defaultTF)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyLog) {
			return nil, domain.ErrUnknownTicker
		}
		return nil, err
	}
	s.engines[ticker] = eng
	return eng, nil
}

// SnapshotAt cold-rebuilds ticker's state as of target.
func (s *Service) SnapshotAt(ticker string, target int64) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	eng, err := s.engineFor(ticker)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return eng.SnapshotAt(target), nil
}

// AdvanceTo scrubs ticker's cursor to target.
func (s *Service) AdvanceTo(ticker string, target int64) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	eng, err := s.engineFor(ticker)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return eng.AdvanceTo(target), nil
}
