// Package prompt serves writing suggestions matched to a child's age, rotating
// through each age bucket without repeats until the bucket is exhausted.
package prompt

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math/rand"

	"capsulemail/internal/model"
)

//go:embed prompts.json
var promptsJSON []byte

// UsageStore persists which prompt IDs have already been shown.
type UsageStore interface {
	UsedIDs(ctx context.Context) (map[int]bool, error)
	MarkUsed(ctx context.Context, id int) error
}

// Library holds the embedded prompt catalog and picks prompts for an age.
type Library struct {
	prompts []model.Prompt
	buckets []model.AgeBucket
	usage   UsageStore

	// Intn is the random source; overridable in tests.
	Intn func(n int) int
}

func NewLibrary(usage UsageStore) (*Library, error) {
	var data struct {
		AgeBuckets []model.AgeBucket `json:"ageBuckets"`
		Prompts    []model.Prompt    `json:"prompts"`
	}
	if err := json.Unmarshal(promptsJSON, &data); err != nil {
		return nil, fmt.Errorf("decode embedded prompts: %w", err)
	}
	return &Library{
		prompts: data.Prompts,
		buckets: data.AgeBuckets,
		usage:   usage,
		Intn:    rand.Intn,
	}, nil
}

// Buckets returns all age buckets in catalog order.
func (l *Library) Buckets() []model.AgeBucket {
	return l.buckets
}

// BucketForDays finds the bucket covering the given day count. Ages outside
// every bucket clamp to the nearest one so a prompt is always available.
func (l *Library) BucketForDays(days int) model.AgeBucket {
	for _, b := range l.buckets {
		if days >= b.MinDays && days <= b.MaxDays {
			return b
		}
	}
	if days < l.buckets[0].MinDays {
		return l.buckets[0]
	}
	return l.buckets[len(l.buckets)-1]
}

// ForBucket returns the prompts belonging to one bucket, in catalog order.
func (l *Library) ForBucket(bucketID string) []model.Prompt {
	var out []model.Prompt
	for _, p := range l.prompts {
		if p.AgeBucket == bucketID {
			out = append(out, p)
		}
	}
	return out
}

// RandomForAge picks a random prompt for the child's age, preferring prompts
// not yet shown. Once every prompt in the bucket has been used the rotation
// resets and the full bucket is eligible again.
func (l *Library) RandomForAge(ctx context.Context, daysSinceBirth int) (model.Prompt, error) {
	bucket := l.BucketForDays(daysSinceBirth)
	candidates := l.ForBucket(bucket.ID)
	if len(candidates) == 0 {
		return model.Prompt{}, fmt.Errorf("no prompts for bucket %s", bucket.ID)
	}

	used, err := l.usage.UsedIDs(ctx)
	if err != nil {
		return model.Prompt{}, fmt.Errorf("load used prompts: %w", err)
	}
	var unused []model.Prompt
	for _, p := range candidates {
		if !used[p.ID] {
			unused = append(unused, p)
		}
	}
	if len(unused) > 0 {
		candidates = unused
	}

	chosen := candidates[l.Intn(len(candidates))]
	if err := l.usage.MarkUsed(ctx, chosen.ID); err != nil {
		return model.Prompt{}, fmt.Errorf("mark prompt used: %w", err)
	}
	return chosen, nil
}

// NextInBucket cycles to the prompt after the current one within the same
// bucket, wrapping at the end. An unknown current prompt falls back to a
// random pick.
func (l *Library) NextInBucket(ctx context.Context, currentID, daysSinceBirth int) (model.Prompt, error) {
	bucket := l.BucketForDays(daysSinceBirth)
	prompts := l.ForBucket(bucket.ID)

	current := -1
	for i, p := range prompts {
		if p.ID == currentID {
			current = i
			break
		}
	}
	if current == -1 {
		return l.RandomForAge(ctx, daysSinceBirth)
	}

	next := prompts[(current+1)%len(prompts)]
	if err := l.usage.MarkUsed(ctx, next.ID); err != nil {
		return model.Prompt{}, fmt.Errorf("mark prompt used: %w", err)
	}
	return next, nil
}
