package llm

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"github.com/rs/zerolog/log"

	"github.com/raine/listing-studio/internal/media"
	"github.com/raine/listing-studio/internal/storage"
)

// CachedGenerator wraps a Generator with a result cache.
type CachedGenerator struct {
	inner Generator
	cache storage.GenerationCache
}

// NewCachedGenerator creates a cached generator. A nil cache disables caching.
func NewCachedGenerator(inner Generator, cache storage.GenerationCache) *CachedGenerator {
	return &CachedGenerator{inner: inner, cache: cache}
}

func (c *CachedGenerator) Model() string {
	return c.inner.Model()
}

// cacheKey hashes the model, media type and image bytes.
// Each part is length prefixed to prevent boundary collisions.
func cacheKey(model string, image media.EncodedImage) string {
	h := sha256.New()
	for _, part := range [][]byte{[]byte(model), []byte(image.MIMEType), image.Data} {
		binary.Write(h, binary.LittleEndian, int64(len(part)))
		h.Write(part)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Generate returns a cached result for an identical image, otherwise calls
// the wrapped generator and caches what it returns.
func (c *CachedGenerator) Generate(ctx context.Context, image media.EncodedImage) (*Generation, error) {
	key := cacheKey(c.inner.Model(), image)

	if c.cache != nil {
		cached, err := c.cache.GetGeneration(key)
		if err != nil {
			log.Warn().Err(err).Msg("failed to check generation cache")
		} else if cached != nil {
			log.Debug().Str("hash", key[:16]).Msg("generation cache hit")
			return &Generation{Result: cached, Usage: Usage{Cached: true}}, nil
		}
	}

	gen, err := c.inner.Generate(ctx, image)
	if err != nil {
		return nil, err
	}

	if c.cache != nil && gen.Result != nil {
		if err := c.cache.SetGeneration(key, gen.Result); err != nil {
			log.Warn().Err(err).Msg("failed to cache generation result")
		} else {
			log.Debug().Str("hash", key[:16]).Msg("cached generation result")
		}
	}

	return gen, nil
}
