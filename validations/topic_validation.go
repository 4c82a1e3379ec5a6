package validations

import (
	"context"
	"errors"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/page"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/post"
	"github.com/re178/mega-facebook-autoposter/autopost/domain/topic"
	pkgError "github.com/re178/mega-facebook-autoposter/pkg/error"
)

var clockPattern = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d$`)

// ValidateTopicPlan rejects malformed plans with a PlanningError.
func ValidateTopicPlan(ctx context.Context, plan topic.Plan) error {
	err := validation.ValidateStructWithContext(ctx, &plan,
		validation.Field(&plan.OwnerID, validation.Required),
		validation.Field(&plan.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&plan.PostsPerDay, validation.Required, validation.Min(1), validation.Max(48)),
		validation.Field(&plan.TimeSlots, validation.Required, validation.Each(validation.Match(clockPattern).Error("must be HH:MM"))),
		validation.Field(&plan.StartDate, validation.Required),
		validation.Field(&plan.EndDate, validation.Required, validation.By(func(value interface{}) error {
			if plan.EndDate.Before(plan.StartDate) {
				return errors.New("must not be before start date")
			}
			return nil
		})),
		validation.Field(&plan.Cadence, validation.In(topic.CadenceDaily, topic.CadenceWeekly, topic.CadenceMonthly)),
		validation.Field(&plan.ContentTag, validation.By(validTag)),
	)
	if err != nil {
		return pkgError.PlanningError(err.Error())
	}
	return nil
}

// ValidateManualPost checks an operator-authored post before it is stored.
func ValidateManualPost(ctx context.Context, item post.ScheduledItem) error {
	err := validation.ValidateStructWithContext(ctx, &item,
		validation.Field(&item.OwnerID, validation.Required),
		validation.Field(&item.Text, validation.Required, validation.Length(1, 63206)),
		validation.Field(&item.ScheduledAt, validation.Required),
		validation.Field(&item.ContentTag, validation.By(validTag)),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}

func ValidatePage(ctx context.Context, p page.Page) error {
	err := validation.ValidateStructWithContext(ctx, &p,
		validation.Field(&p.ID, validation.Required),
		validation.Field(&p.ExternalID, validation.Required),
		validation.Field(&p.AccessToken, validation.Required),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}
	return nil
}

func validTag(value interface{}) error {
	if tag, ok := value.(post.ContentTag); ok && !tag.Valid() {
		return errors.New("must be NORMAL, TRENDING or CRITICAL")
	}
	return nil
}
