package dashboard

import (
	"context"

	"github.com/evkuzin/planthealth/cache"
	"github.com/evkuzin/planthealth/storage"
)

const (
	kindSummary        = "summary"
	kindRecommendation = "recommendation"
)

// insight returns a generated text for the plant, from the cache when
// possible. It is empty when the assistant is off or has nothing to say.
func (s *Server) insight(ctx context.Context, plant *storage.Plant, reading *storage.Reading, kind string) string {
	if s.assistant == nil || reading == nil {
		return ""
	}
	key := cache.Key(plant.ID, kind)
	text, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warnf("cannot read cache: %s", err)
	}
	if ok {
		return text
	}

	switch kind {
	case kindSummary:
		text, err = s.assistant.Summary(ctx, plant, reading)
	default:
		text, err = s.assistant.Recommendation(ctx, plant, reading)
	}
	if err != nil {
		s.logger.Warnf("cannot get %s for %s: %s", kind, plant.Name, err)
		return ""
	}
	if err := s.cache.Set(ctx, key, text, s.conf.OpenAI.CacheTTL); err != nil {
		s.logger.Warnf("cannot write cache: %s", err)
	}
	return text
}
