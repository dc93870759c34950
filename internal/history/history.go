// Package history groups conversation summaries into display buckets.
package history

import (
	"sort"
	"time"

	"unichat/internal/types"
)

const (
	LabelToday          = "Today"
	LabelPrevious7Days  = "Previous 7 Days"
	LabelPrevious30Days = "Previous 30 Days"
)

type Bucket struct {
	Label         string
	Conversations []types.Conversation
}

// Index is the bucketed view of a conversation list at one instant. It is
// derived on demand and never stored.
type Index struct {
	Buckets []Bucket
}

// Build buckets conversations relative to now. Days are compared as calendar
// days in now's location, and a creation date after today counts as within the
// previous 7 days. Fixed buckets come first, then one bucket per creation month
// name, most recent first. Inside a bucket the input order is kept.
func Build(conversations []types.Conversation, now time.Time) Index {
	var (
		fixed  = map[string][]types.Conversation{}
		months = map[string]*monthBucket{}
	)
	for _, conv := range conversations {
		conv.AgentType = types.NormalizeAgentKind(conv.AgentType)
		created := conv.CreatedAt.In(now.Location())
		days := daysBetween(created, now)
		switch {
		case days == 0:
			fixed[LabelToday] = append(fixed[LabelToday], conv)
		case days < 7:
			fixed[LabelPrevious7Days] = append(fixed[LabelPrevious7Days], conv)
		case days < 30:
			fixed[LabelPrevious30Days] = append(fixed[LabelPrevious30Days], conv)
		default:
			label := created.Month().String()
			bucket, ok := months[label]
			if !ok {
				bucket = &monthBucket{age: monthsBetween(created, now)}
				months[label] = bucket
			}
			bucket.age = min(bucket.age, monthsBetween(created, now))
			bucket.conversations = append(bucket.conversations, conv)
		}
	}

	var idx Index
	for _, label := range []string{LabelToday, LabelPrevious7Days, LabelPrevious30Days} {
		if items := fixed[label]; len(items) > 0 {
			idx.Buckets = append(idx.Buckets, Bucket{Label: label, Conversations: items})
		}
	}
	labels := make([]string, 0, len(months))
	for label := range months {
		labels = append(labels, label)
	}
	sort.SliceStable(labels, func(i, j int) bool {
		a, b := months[labels[i]], months[labels[j]]
		if a.age != b.age {
			return a.age < b.age
		}
		return labels[i] < labels[j]
	})
	for _, label := range labels {
		idx.Buckets = append(idx.Buckets, Bucket{Label: label, Conversations: months[label].conversations})
	}
	return idx
}

type monthBucket struct {
	age           int
	conversations []types.Conversation
}

// Lookup returns the conversations filed under label.
func (i Index) Lookup(label string) ([]types.Conversation, bool) {
	for _, bucket := range i.Buckets {
		if bucket.Label == label {
			return bucket.Conversations, true
		}
	}
	return nil, false
}

func (i Index) Labels() []string {
	out := make([]string, 0, len(i.Buckets))
	for _, bucket := range i.Buckets {
		out = append(out, bucket.Label)
	}
	return out
}

// Len counts conversations across all buckets.
func (i Index) Len() int {
	n := 0
	for _, bucket := range i.Buckets {
		n += len(bucket.Conversations)
	}
	return n
}

// daysBetween counts calendar days from a to b. Negative when a is later.
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	start := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	end := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}

func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}
