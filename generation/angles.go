package generation

import (
	"fmt"
	"strings"

	"github.com/re178/mega-facebook-autoposter/autopost/domain/post"
)

// Angles is the fixed framing rotation. Consecutive posts of one topic take
// consecutive angles.
var Angles = []string{
	"reflective",
	"curious",
	"observational",
	"practical",
	"storytelling",
	"question",
	"encouraging",
	"surprising fact",
}

// AngleFor returns the angle for the n-th generated item of a topic.
func AngleFor(n int) string {
	if n < 0 {
		n = -n
	}
	return Angles[n%len(Angles)]
}

// TextPrompt builds the prompt for one post. A trending or critical tag
// replaces the angle framing with an urgency-appropriate one.
func TextPrompt(topic, angle string, tag post.ContentTag) string {
	topic = strings.TrimSpace(topic)
	switch tag {
	case post.TagCritical:
		return fmt.Sprintf("Write a short, calm and factual Facebook post about a serious recent development related to %q. "+
			"Acknowledge the situation, avoid speculation and sensational language, and point readers to official sources. "+
			"Plain text only, no hashtags, under 80 words.", topic)
	case post.TagTrending:
		return fmt.Sprintf("Write a short, timely Facebook post about %q, which people are talking about right now. "+
			"Sound current and conversational and invite readers to share their view. "+
			"Plain text only, at most two hashtags, under 80 words.", topic)
	}
	if angle == "" {
		angle = Angles[0]
	}
	return fmt.Sprintf("Write a short Facebook post about %q from a %s angle. "+
		"Sound natural and human, avoid clichés, and do not start with the topic name. "+
		"Plain text only, no markdown, under 80 words.", topic, angle)
}

// ImagePrompt builds the prompt for an illustration of topic.
func ImagePrompt(topic string) string {
	return fmt.Sprintf("A clean, realistic photograph illustrating %q, natural light, no text or logos in the image.", strings.TrimSpace(topic))
}
