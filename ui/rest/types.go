package rest

import (
	"time"

	"github.com/re178/mega-facebook-autoposter/autopost/domain/post"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/topic"
	pkgError "github.com/re178/mega-facebook-autoposter/pkg/error"
	"github.com/re178/mega-facebook-autoposter/pkg/timeutils"
)

type ToggleRequest struct {
	Enabled bool `json:"enabled"`
}

type PauseRequest struct {
	Paused bool `json:"paused"`
}

type MediaProbabilityRequest struct {
	Probability float64 `json:"probability"`
}

type PageRequest struct {
	Name        string `json:"name"`
	ExternalID  string `json:"external_id"`
	AccessToken string `json:"access_token"`
}

// TopicRequest carries dates as YYYY-MM-DD in the scheduler timezone.
type TopicRequest struct {
	OwnerID      string          `json:"owner_id"`
	Name         string          `json:"name"`
	PostsPerDay  int             `json:"posts_per_day"`
	TimeSlots    []string        `json:"time_slots"`
	StartDate    string          `json:"start_date"`
	EndDate      string          `json:"end_date"`
	Cadence      topic.Cadence   `json:"cadence"`
	IncludeMedia bool            `json:"include_media"`
	ContentTag   post.ContentTag `json:"content_tag"`
}

func (r TopicRequest) toPlan(loc *time.Location) (topic.Plan, error) {
	start, err := timeutils.ParseDate(r.StartDate, loc)
	if err != nil {
		return topic.Plan{}, pkgError.PlanningError("start_date: " + err.Error())
	}
	end, err := timeutils.ParseDate(r.EndDate, loc)
	if err != nil {
		return topic.Plan{}, pkgError.PlanningError("end_date: " + err.Error())
	}
	return topic.Plan{
		OwnerID:      r.OwnerID,
		Name:         r.Name,
		PostsPerDay:  r.PostsPerDay,
		TimeSlots:    r.TimeSlots,
		StartDate:    start,
		EndDate:      end,
		Cadence:      r.Cadence,
		IncludeMedia: r.IncludeMedia,
		ContentTag:   r.ContentTag,
	}, nil
}

type PostRequest struct {
	OwnerID     string          `json:"owner_id"`
	Text        string          `json:"text"`
	MediaRef    string          `json:"media_ref"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	ContentTag  post.ContentTag `json:"content_tag"`
}

type MarkContentRequest struct {
	Tag post.ContentTag `json:"tag"`
}

type ReplyRequest struct {
	Kind string `json:"kind"` // comment | message
	ID   string `json:"id"`
	Text string `json:"text"`
}
