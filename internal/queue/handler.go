package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kinship-crm/kinship/pkg/logger"
	"github.com/kinship-crm/kinship/pkg/store"
)

// Jobs is the work the worker performs for queued messages.
type Jobs interface {
	DescribePhoto(ctx context.Context, id int64) error
	EmbedPerson(ctx context.Context, id int64) error
}

// ErrMalformed marks a message that can never succeed. It goes straight to
// the dead-letter queue.
var ErrMalformed = errors.New("malformed message")

// Handle decodes body and runs the job for queue. Records deleted since
// the message was published are acknowledged without work.
func Handle(ctx context.Context, jobs Jobs, queue string, body []byte) error {
	var err error
	switch queue {
	case PhotoDescribeQueue:
		var msg PhotoMsg
		if jerr := json.Unmarshal(body, &msg); jerr != nil || msg.PhotoID == 0 {
			return fmt.Errorf("%w: %s", ErrMalformed, body)
		}
		err = jobs.DescribePhoto(ctx, msg.PhotoID)
	case PersonEmbedQueue:
		var msg PersonMsg
		if jerr := json.Unmarshal(body, &msg); jerr != nil || msg.PersonID == 0 {
			return fmt.Errorf("%w: %s", ErrMalformed, body)
		}
		err = jobs.EmbedPerson(ctx, msg.PersonID)
	default:
		return fmt.Errorf("%w: unknown queue %s", ErrMalformed, queue)
	}

	if errors.Is(err, store.ErrNotFound) {
		logger.Debug("[Queue] record gone, skipping", "queue", queue)
		return nil
	}
	return err
}
