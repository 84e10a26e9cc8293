package agent

import (
	"fmt"
	"strings"
)

// Config holds the topic parameters shared by every agent translator.
type Config struct {
	// Classifier prefixes every control topic, e.g. "$ctl".
	Classifier string

	// RequesterID is the client ID replies are addressed to.
	RequesterID string
}

// Validate checks that both values are usable as single topic levels.
func (c Config) Validate() error {
	if err := checkLevel("classifier", c.Classifier); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := checkLevel("requester id", c.RequesterID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Topic scheme:
//
//	request    {classifier}/{scope}/{client}/{app}/{verb}/{resources...}
//	reply      {classifier}/{scope}/{requester}/{app}/REPLY/{request id}
//	lifecycle  {classifier}/{scope}/{client}/MQTT/{BIRTH|DC|LWT|MISSING}
//	telemetry  {scope}/{client}/{semantic...}

// RequestTopic returns the topic a request is published on.
func (c Config) RequestTopic(r Request) (string, error) {
	levels := append([]string{c.Classifier, r.Scope, r.ClientID, r.App, string(r.Verb)}, r.Resources...)
	return joinLevels(levels)
}

// ReplyTopic returns the topic a reply to requestID is published on.
func (c Config) ReplyTopic(scope, requesterID, app, requestID string) (string, error) {
	return joinLevels([]string{c.Classifier, scope, requesterID, app, string(VerbReply), requestID})
}

// LifecycleTopic returns the topic of a lifecycle event.
func (c Config) LifecycleTopic(scope, clientID string, ev Event) (string, error) {
	return joinLevels([]string{c.Classifier, scope, clientID, lifecycleApp, string(ev)})
}

// ReplyFilter matches every reply addressed to this requester.
func (c Config) ReplyFilter() string {
	return c.Classifier + "/+/" + c.RequesterID + "/+/" + string(VerbReply) + "/#"
}

// LifecycleFilter matches lifecycle events of every device in every scope.
func (c Config) LifecycleFilter() string {
	return c.Classifier + "/+/+/" + lifecycleApp + "/#"
}

// RequestFilter matches every control topic addressed to one device.
func (c Config) RequestFilter(scope, clientID string) string {
	return c.Classifier + "/" + scope + "/" + clientID + "/#"
}

// Correlate extracts the request ID from a reply topic.
func Correlate(topic string) (string, bool) {
	_, id, ok := strings.Cut(topic, "/"+string(VerbReply)+"/")
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// split returns the topic levels after the classifier and whether the
// classifier was present.
func (c Config) split(topic string) (levels []string, control bool) {
	if rest, ok := strings.CutPrefix(topic, c.Classifier+"/"); ok {
		return strings.Split(rest, "/"), true
	}
	return strings.Split(topic, "/"), false
}

func joinLevels(levels []string) (string, error) {
	for _, l := range levels {
		if err := checkLevel("topic level", l); err != nil {
			return "", fmt.Errorf("%w: %w", ErrMalformedTopic, err)
		}
	}
	return strings.Join(levels, "/"), nil
}

func checkLevel(what, l string) error {
	if l == "" {
		return fmt.Errorf("empty %s", what)
	}
	if strings.ContainsAny(l, "/+#") {
		return fmt.Errorf("%s %q contains a reserved character", what, l)
	}
	return nil
}
