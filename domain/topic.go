package domain

import (
	"fmt"
	"regexp"
	"sort"
)

const (
	topicNamespace = "/mini-chat/1/"
	topicSuffix    = "/proto"

	LobbyTopic = topicNamespace + "group-lobby" + topicSuffix
)

var (
	privateTopicPattern = regexp.MustCompile(`^/mini-chat/1/private-([^-/]+)-([^/]+)/proto$`)
	topicPattern        = regexp.MustCompile(`^/mini-chat/1/[^/\s]+/proto$`)
	userIDPattern       = regexp.MustCompile(`^[^-/\s]+$`)
)

// PrivateTopic is commutative: both participants compute the same topic without a handshake.
func PrivateTopic(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return fmt.Sprintf("%sprivate-%s-%s%s", topicNamespace, ids[0], ids[1], topicSuffix)
}

func GroupTopic(suffix string) string {
	return fmt.Sprintf("%sgroup-%s%s", topicNamespace, suffix, topicSuffix)
}

// ParsePrivateTopic extracts both identifiers encoded in a private topic.
func ParsePrivateTopic(topic string) (string, string, bool) {
	match := privateTopicPattern.FindStringSubmatch(topic)
	if match == nil {
		return "", "", false
	}
	return match[1], match[2], true
}

// IsValidTopic reports whether the topic lives in the application namespace.
func IsValidTopic(topic string) bool {
	return topicPattern.MatchString(topic)
}

// IsValidUserID rejects identifiers that would break the private topic layout.
func IsValidUserID(id string) bool {
	return userIDPattern.MatchString(id)
}

func IsPrivateTopic(topic string) bool {
	return privateTopicPattern.MatchString(topic)
}

// Counterpart returns the identifier of the other participant of a private topic.
// When self is not part of the topic the sender is preferred, then the first identifier.
func Counterpart(topic, self, sender string) (string, bool) {
	a, b, ok := ParsePrivateTopic(topic)
	if !ok {
		return "", false
	}
	switch self {
	case a:
		return b, true
	case b:
		return a, true
	}
	if sender == a || sender == b {
		return sender, true
	}
	return a, true
}
