// Package loki pushes session-trust telemetry events to Grafana Loki.
package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Job is the job label set on every stream.
const Job = "session-trust"

const pushPath = "/loki/api/v1/push"

// metadataLabels are the event metadata keys promoted to stream labels. All have a small,
// fixed value set; user, device and session ids stay in the line.
var metadataLabels = []string{"verdict", "reason"}

var labelSanitize = regexp.MustCompile(`[^a-zA-Z0-9_\-:]`)

// PushRequest is the Loki v1 push body.
type PushRequest struct {
	Streams []Stream `json:"streams"`
}

// Stream is one label set and its [timestamp_ns, line] pairs.
type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

// Entry is one log line with its stream labels. The job label is added on push.
type Entry struct {
	Time   time.Time
	Line   string
	Labels map[string]string
}

type eventFields struct {
	EventType string                     `json:"eventType"`
	Source    string                     `json:"source"`
	CreatedAt string                     `json:"createdAt"`
	Metadata  map[string]json.RawMessage `json:"metadata"`
}

// EntryFromEvent turns a telemetry event JSON (a Kafka message value) into an entry labeled by
// event type, source, and the verdict or reject reason when present. Unparseable input is kept
// as the line with the current time and no extra labels.
func EntryFromEvent(raw []byte) Entry {
	e := Entry{Time: time.Now().UTC(), Line: string(raw), Labels: map[string]string{}}
	var f eventFields
	if err := json.Unmarshal(raw, &f); err != nil {
		return e
	}
	if f.EventType != "" {
		e.Labels["event_type"] = f.EventType
	}
	if f.Source != "" {
		e.Labels["source"] = f.Source
	}
	for _, key := range metadataLabels {
		var v string
		if rawVal, ok := f.Metadata[key]; ok && json.Unmarshal(rawVal, &v) == nil && v != "" {
			e.Labels[key] = v
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, f.CreatedAt); err == nil {
		e.Time = t
	}
	return e
}

// Client pushes entries to one Loki instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for baseURL (e.g. http://localhost:3100). A nil httpClient uses a 10s timeout client.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("loki: base URL is empty")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient}, nil
}

// PushEventJSON pushes one telemetry event.
func (c *Client) PushEventJSON(ctx context.Context, rawJSON []byte) error {
	return c.Push(ctx, EntryFromEvent(rawJSON))
}

// Push sends entries in one request, one stream per distinct label set. Non-2xx is an error.
func (c *Client) Push(ctx context.Context, entries ...Entry) error {
	if len(entries) == 0 {
		return nil
	}
	payload, err := json.Marshal(buildRequest(entries))
	if err != nil {
		return fmt.Errorf("loki: encode push: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+pushPath, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("loki: push: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("loki: push returned %s", resp.Status)
	}
	return nil
}

func buildRequest(entries []Entry) PushRequest {
	byKey := map[string]*Stream{}
	var keys []string
	for _, e := range entries {
		labels := streamLabels(e.Labels)
		key := labelKey(labels)
		s, ok := byKey[key]
		if !ok {
			s = &Stream{Stream: labels}
			byKey[key] = s
			keys = append(keys, key)
		}
		s.Values = append(s.Values, []string{strconv.FormatInt(e.Time.UnixNano(), 10), e.Line})
	}
	req := PushRequest{Streams: make([]Stream, 0, len(keys))}
	for _, k := range keys {
		req.Streams = append(req.Streams, *byKey[k])
	}
	return req
}

func streamLabels(in map[string]string) map[string]string {
	out := make(map[string]string, len(in)+1)
	for k, v := range in {
		if v = labelSanitize.ReplaceAllString(strings.TrimSpace(v), "_"); v != "" {
			out[k] = v
		}
	}
	out["job"] = Job
	return out
}

func labelKey(labels map[string]string) string {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, k := range names {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
		b.WriteByte(',')
	}
	return b.String()
}
