package queue

// Kafka topics carrying the two job kinds.
const (
	TopicFanout  = "events.fanout"
	TopicDeliver = "events.deliver"
)
