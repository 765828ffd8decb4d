package service

import (
	"fmt"
	"strings"
)

// copySpec holds the per-type phrasing used for titles and messages.
type copySpec struct {
	title      string // single-notification title
	verb       string // "<actor> <verb>" for single and batch sentences
	batchNoun  string // "3 <batchNoun>" batch title
	needsLabel bool   // verb is completed with a content label
}

var copyTable = map[string]copySpec{
	"CONTENT_LIKED":     {title: "New like", verb: "liked", batchNoun: "new likes", needsLabel: true},
	"CONTENT_COMMENTED": {title: "New comment", verb: "commented on", batchNoun: "new comments", needsLabel: true},
	"CONTENT_SHARED":    {title: "Content shared", verb: "shared", batchNoun: "new shares", needsLabel: true},
	"CONTENT_PUBLISHED": {title: "New content", verb: "published new content", batchNoun: "new posts"},
	"NEW_FOLLOWER":      {title: "New follower", verb: "started following you", batchNoun: "new followers"},
	"MENTION":           {title: "You were mentioned", verb: "mentioned you", batchNoun: "new mentions"},
}

// ContentGenerator turns (type, actor, content) tuples into human-readable
// notification copy. Content titles come from a fallible external lookup, so
// every template has a generic fallback label.
type ContentGenerator struct{}

func NewContentGenerator() *ContentGenerator {
	return &ContentGenerator{}
}

// Compose builds title and message for a single notification.
func (g *ContentGenerator) Compose(typeID, actorName, contentTitle string) (string, string) {
	if typeID == "SYSTEM_ANNOUNCEMENT" {
		msg := contentTitle
		if msg == "" {
			msg = "You have a new announcement"
		}
		return "Announcement", msg
	}

	spec, ok := copyTable[typeID]
	if !ok {
		return "New notification", fmt.Sprintf("%s sent you a notification", orSomeone(actorName))
	}

	sentence := fmt.Sprintf("%s %s", orSomeone(actorName), spec.verb)
	if spec.needsLabel {
		sentence += " " + contentLabel(contentTitle)
	}
	return spec.title, sentence
}

// ComposeBatch builds the summary copy for a flushed batch. The first two
// actors are named; the rest collapse into a count.
func (g *ContentGenerator) ComposeBatch(typeID string, actorNames []string, count int) (string, string) {
	spec, ok := copyTable[typeID]
	if !ok {
		spec = copySpec{title: "New notifications", verb: "sent you notifications", batchNoun: "new notifications"}
	}

	if count == 1 {
		name := "Someone"
		if len(actorNames) > 0 {
			name = actorNames[0]
		}
		sentence := fmt.Sprintf("%s %s", name, spec.verb)
		if spec.needsLabel {
			sentence += " " + contentLabel("")
		}
		return spec.title, sentence
	}

	sentence := fmt.Sprintf("%s %s", actorPhrase(actorNames, count), spec.verb)
	if spec.needsLabel {
		sentence += " " + contentLabel("")
	}
	title := fmt.Sprintf("%d %s", count, spec.batchNoun)
	return title, sentence
}

// actorPhrase names up to two actors and folds the remainder into a count:
// "X and Y", "X, Y and 3 others".
func actorPhrase(names []string, count int) string {
	for len(names) < 2 && len(names) < count {
		names = append(names, "someone")
	}
	if count == 2 {
		return fmt.Sprintf("%s and %s", names[0], names[1])
	}
	return fmt.Sprintf("%s and %d others", strings.Join(names[:2], ", "), count-2)
}

func contentLabel(title string) string {
	if title == "" {
		return "your content"
	}
	return fmt.Sprintf("%q", title)
}

func orSomeone(name string) string {
	if name == "" {
		return "Someone"
	}
	return name
}
