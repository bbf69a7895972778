// Package publisher delivers phase activities to the public activity log
// and to local observers.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/becomeliminal/nim-autopilot/core"
)

// Publisher records one activity. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, postType core.ActivityType, activity *core.Activity) error
}

// Multi fans an activity out to several publishers. Each one is attempted
// even when an earlier one fails.
type Multi []Publisher

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, postType core.ActivityType, activity *core.Activity) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, postType, activity); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every activity.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(ctx context.Context, postType core.ActivityType, activity *core.Activity) error {
	log.Printf("[PUBLISH] no sink configured, dropping %s", postType)
	return nil
}

// Post is the envelope written to the activity log.
type Post struct {
	PostType core.ActivityType `json:"postType"`
	Channel  string            `json:"channel"`
	Content  *core.Activity    `json:"content"`
}

func newPost(channel string, postType core.ActivityType, activity *core.Activity) (*Post, error) {
	if activity == nil {
		return nil, fmt.Errorf("publish %s: nil activity", postType)
	}
	return &Post{PostType: postType, Channel: channel, Content: activity}, nil
}
