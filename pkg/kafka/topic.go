package kafka

import "fmt"

// TopicPrefix is the prefix for every credipesca Kafka topic.
const TopicPrefix = "credipesca"

// Topic builds a fully-qualified topic name such as "credipesca.user.registered".
func Topic(domain, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, domain, action)
}
