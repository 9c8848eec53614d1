package courier

import "context"

// PublishSink emits reassembled payloads to a subject through a Publisher.
//
// The group id travels in the group_id header so downstream consumers can
// deduplicate parked re-emits.
type PublishSink struct {
	pub     Publisher
	subject string
}

var _ Sink = (*PublishSink)(nil)

// NewPublishSink returns a Sink publishing to subject.
func NewPublishSink(pub Publisher, subject string) *PublishSink {
	return &PublishSink{pub: pub, subject: subject}
}

// Emit publishes payload with the group_id header.
func (s *PublishSink) Emit(ctx context.Context, groupID string, payload []byte) error {
	return s.pub.Publish(ctx, s.subject, payload, Headers{HeaderGroupID: groupID})
}
