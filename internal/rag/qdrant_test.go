package rag

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
)

// ---------------------------------------------------------------------------
// Hit ranking
// ---------------------------------------------------------------------------

func hit(ordinal int, score float64) ScoredChunk {
	return ScoredChunk{Chunk: Chunk{Ordinal: ordinal}, Score: score}
}

func ordinals(hits []ScoredChunk) []int {
	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = h.Chunk.Ordinal
	}
	return out
}

func Test_RankTopK(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		hits        []ScoredChunk
		k, limit    int
		want        []int
		wantSettled bool
	}{
		{
			// The server returned ordinals 7 and 9 first; ordinal 2 ties
			// the boundary score and must displace 9.
			name:        "tie at the boundary prefers the lower ordinal",
			hits:        []ScoredChunk{hit(0, 0.9), hit(7, 0.5), hit(9, 0.5), hit(2, 0.5)},
			k:           2,
			limit:       10,
			want:        []int{0, 2},
			wantSettled: true,
		},
		{
			name:        "fewer hits than k",
			hits:        []ScoredChunk{hit(3, 0.1), hit(1, 0.8)},
			k:           5,
			limit:       13,
			want:        []int{1, 3},
			wantSettled: true,
		},
		{
			name:        "full page with a clear boundary",
			hits:        []ScoredChunk{hit(4, 0.9), hit(5, 0.7), hit(6, 0.3)},
			k:           2,
			limit:       3,
			want:        []int{4, 5},
			wantSettled: true,
		},
		{
			name:        "full page ending inside the tie",
			hits:        []ScoredChunk{hit(4, 0.9), hit(8, 0.5), hit(6, 0.5)},
			k:           2,
			limit:       3,
			want:        []int{4, 6},
			wantSettled: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			top, settled := rankTopK(tc.hits, tc.k, tc.limit)
			got := ordinals(top)
			if len(got) != len(tc.want) {
				t.Fatalf("ordinals = %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("ordinals = %v, want %v", got, tc.want)
				}
			}
			if settled != tc.wantSettled {
				t.Errorf("settled = %v, want %v", settled, tc.wantSettled)
			}
		})
	}
}

func Test_ScoredChunkFromPoint(t *testing.T) {
	t.Parallel()

	p := &qdrant.ScoredPoint{
		Id: qdrant.NewIDUUID("5f0c6f9e-2a39-4d0b-9a53-0f1f0c7c1a11"),
		Payload: qdrant.NewValueMap(map[string]any{
			payloadText:    "Acme Corp joined.",
			payloadSource:  "news.txt",
			payloadOrdinal: 3,
			"title":        "Town Hall",
		}),
		Score: 0.75,
	}

	got := scoredChunkFromPoint(p)
	if got.Chunk.ID != "5f0c6f9e-2a39-4d0b-9a53-0f1f0c7c1a11" {
		t.Errorf("ID = %q", got.Chunk.ID)
	}
	if got.Chunk.Text != "Acme Corp joined." || got.Chunk.Source != "news.txt" || got.Chunk.Ordinal != 3 {
		t.Errorf("unexpected chunk %+v", got.Chunk)
	}
	if got.Chunk.Metadata["title"] != "Town Hall" || len(got.Chunk.Metadata) != 1 {
		t.Errorf("metadata = %v", got.Chunk.Metadata)
	}
	if got.Score != 0.75 {
		t.Errorf("score = %v, want 0.75", got.Score)
	}
}
