// Package services – windowing.
//
// splitChunks partitions a chronologically ordered message window into the
// fixed-size groups that drive the map stage. Chunk size trades external-call
// count against per-call prompt size: bigger chunks mean fewer generation
// calls but risk blowing the model's context/quality budget.
package services

import "github.com/ghonche/summary-bot/internal/domain"

// splitChunks returns contiguous, non-overlapping groups of size messages
// each, in order; only the last group may be shorter. Zero input yields zero
// chunks; callers short-circuit on an empty window before getting here.
func splitChunks(msgs []domain.Message, size int) [][]domain.Message {
	if size <= 0 || len(msgs) == 0 {
		return nil
	}
	out := make([][]domain.Message, 0, (len(msgs)+size-1)/size)
	for start := 0; start < len(msgs); start += size {
		end := start + size
		if end > len(msgs) {
			end = len(msgs)
		}
		out = append(out, msgs[start:end])
	}
	return out
}
