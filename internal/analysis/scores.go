package analysis

import (
	"math/rand"
	"sync"
	"time"
)

const (
	fallbackMin   = 60
	fallbackRange = 36 // fallback scores land in [60,95]
)

// ScoreSource draws fallback category scores.
type ScoreSource interface {
	Draw() int
}

// RandomScoreSource draws uniformly from [60,95]. Safe for concurrent use.
type RandomScoreSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomScoreSource returns a source with a fixed seed, for reproducible output.
func NewRandomScoreSource(seed int64) *RandomScoreSource {
	return &RandomScoreSource{rng: rand.New(rand.NewSource(seed))}
}

// NewTimeSeededScoreSource returns the production source.
func NewTimeSeededScoreSource() *RandomScoreSource {
	return NewRandomScoreSource(time.Now().UnixNano())
}

func (s *RandomScoreSource) Draw() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fallbackMin + s.rng.Intn(fallbackRange)
}

// FallbackResult builds a result from three independent draws.
func FallbackResult(src ScoreSource) AnalysisResult {
	posture := src.Draw()
	confidence := src.Draw()
	eyeContact := src.Draw()

	res := Aggregate(posture, confidence, eyeContact)
	res.Source = SourceFallback
	return res
}
