// Package analytics derives campaign statistics from tracking records.
// Nothing here is persisted; every call recomputes from the ledger.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/ignite/bulkmail/internal/domain"
)

// Totals are record counts per reporting bucket. Buckets overlap: a
// clicked record is also opened, delivered and sent.
type Totals struct {
	TotalRecipients int `json:"totalRecipients"`
	Sent            int `json:"sent"`
	Delivered       int `json:"delivered"`
	Opened          int `json:"opened"`
	Clicked         int `json:"clicked"`
	Bounced         int `json:"bounced"`
	Unsubscribed    int `json:"unsubscribed"`
	Failed          int `json:"failed"`
}

// Rates are percentages rounded to two decimals.
type Rates struct {
	OpenRate   float64 `json:"openRate"`
	ClickRate  float64 `json:"clickRate"`
	BounceRate float64 `json:"bounceRate"`
}

// TimelineEntry is one open or click in a campaign's timeline.
type TimelineEntry struct {
	Type  domain.TrackingEventType `json:"type"`
	Date  time.Time                `json:"date"`
	Email string                   `json:"email"`
	URL   string                   `json:"url,omitempty"`
}

// Summary is the full derived view of one campaign.
type Summary struct {
	Totals   Totals          `json:"summary"`
	Rates    Rates           `json:"rates"`
	Timeline []TimelineEntry `json:"timeline"`
}

// Summarize computes totals, rates and the merged timeline from records.
// totalRecipients overrides the record count when positive.
func Summarize(records []domain.TrackingRecord, totalRecipients int) Summary {
	var s Summary
	s.Totals.TotalRecipients = len(records)
	if totalRecipients > 0 {
		s.Totals.TotalRecipients = totalRecipients
	}
	s.Timeline = make([]TimelineEntry, 0)

	for _, r := range records {
		switch r.Status {
		case domain.TrackingQueued:
		case domain.TrackingFailed:
			s.Totals.Failed++
		default:
			s.Totals.Sent++
		}
		switch r.Status {
		case domain.TrackingSent, domain.TrackingOpened, domain.TrackingClicked:
			s.Totals.Delivered++
		}
		switch r.Status {
		case domain.TrackingOpened, domain.TrackingClicked:
			s.Totals.Opened++
		}
		switch r.Status {
		case domain.TrackingClicked:
			s.Totals.Clicked++
		case domain.TrackingBounced:
			s.Totals.Bounced++
		case domain.TrackingUnsubscribed:
			s.Totals.Unsubscribed++
		}

		if r.OpenedAt != nil {
			s.Timeline = append(s.Timeline, TimelineEntry{Type: domain.EventOpen, Date: *r.OpenedAt, Email: r.Email})
		}
		for _, c := range r.Clicks {
			s.Timeline = append(s.Timeline, TimelineEntry{Type: domain.EventClick, Date: c.ClickedAt, Email: r.Email, URL: c.URL})
		}
	}

	s.Rates = Rates{
		OpenRate:   percent(s.Totals.Opened, s.Totals.Delivered),
		ClickRate:  percent(s.Totals.Clicked, s.Totals.Opened),
		BounceRate: percent(s.Totals.Bounced, s.Totals.Sent),
	}
	sort.SliceStable(s.Timeline, func(i, j int) bool {
		return s.Timeline[i].Date.After(s.Timeline[j].Date)
	})
	return s
}

func percent(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(d)*10000) / 100
}
