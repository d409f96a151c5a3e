package kafka

import "fmt"

// TopicPrefix namespaces every topic owned by this project.
const TopicPrefix = "philanzel"

// Topic builds a fully-qualified topic name, e.g. philanzel.review_section.updated.
func Topic(domain, action string) string {
	return fmt.Sprintf("%s.%s.%s", TopicPrefix, domain, action)
}
