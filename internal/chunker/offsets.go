package chunker

import (
	"context"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/okandolu/hae-gpt/internal/models"
)

type offset struct {
	pos      int
	strategy models.Strategy
}

// offsets returns the chunk start positions for runes. Text longer than the
// advisory limit is cut into consecutive segments, each advised on its own;
// a segment whose advisory request fails falls back to the fixed stride.
func (c *Chunker) offsets(ctx context.Context, runes []rune) []offset {
	if c.advisor == nil {
		return tagged(strideOffsets(len(runes), c.stride), 0, models.StrategyFixedStride)
	}

	var out []offset
	for base := 0; base < len(runes); base += c.maxChars {
		end := min(base+c.maxChars, len(runes))
		out = append(out, c.segmentOffsets(ctx, runes[base:end], base)...)
	}
	return out
}

func (c *Chunker) segmentOffsets(ctx context.Context, segment []rune, base int) []offset {
	c.stats.advisoryCall()
	raw, err := c.advisor.SuggestSplitOffsets(ctx, string(segment))
	if err != nil {
		c.stats.advisoryFailure()
		log.Warn().Err(err).Int("offset", base).Int("length", len(segment)).Msg("Split advisory failed, using fixed stride")
		return tagged(strideOffsets(len(segment), c.stride), base, models.StrategyFixedStride)
	}
	return tagged(SanitizeOffsets(raw, len(segment)), base, models.StrategyAdvisory)
}

// SanitizeOffsets drops positions outside [0, n), sorts and deduplicates the
// rest and makes sure the list starts at 0.
func SanitizeOffsets(raw []int, n int) []int {
	if n <= 0 {
		return nil
	}
	out := make([]int, 0, len(raw)+1)
	out = append(out, 0)
	for _, off := range raw {
		if off > 0 && off < n {
			out = append(out, off)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func strideOffsets(n, stride int) []int {
	if n <= 0 {
		return nil
	}
	out := make([]int, 0, n/stride+1)
	for off := 0; off < n; off += stride {
		out = append(out, off)
	}
	return out
}

func tagged(positions []int, base int, strategy models.Strategy) []offset {
	out := make([]offset, len(positions))
	for i, p := range positions {
		out[i] = offset{pos: base + p, strategy: strategy}
	}
	return out
}
