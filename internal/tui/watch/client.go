package watch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/cinema-bridge/internal/events"
	"github.com/mattjoyce/cinema-bridge/internal/journal"
)

// backfillLimit is how many journal entries are fetched on start.
const backfillLimit = 100

// --- Message types ---

type eventMsg events.Event

type healthMsg struct {
	Status         string `json:"status"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	Channel        string `json:"channel"`
	Method         string `json:"method"`
	JournalEnabled bool   `json:"journal_enabled"`
}

type dispatchesMsg []journal.Entry

type tickMsg time.Time

type errMsg error

type sseDisconnectedMsg struct{}
type reconnectMsg struct{}

// --- Commands ---

func newRequest(method, url, apiKey string) (*http.Request, error) {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	return req, nil
}

// subscribeToEvents connects to the SSE /events endpoint and feeds events
// into ch. Returns sseDisconnectedMsg when the connection drops.
func subscribeToEvents(apiURL, apiKey string, ch chan<- events.Event) tea.Cmd {
	return func() tea.Msg {
		req, err := newRequest(http.MethodGet, apiURL+"/events", apiKey)
		if err != nil {
			return errMsg(err)
		}

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return sseDisconnectedMsg{}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errMsg(fmt.Errorf("/events: %s", resp.Status))
		}

		for ev := range readSSE(bufio.NewScanner(resp.Body)) {
			ch <- ev
		}
		return sseDisconnectedMsg{}
	}
}

// readSSE yields each complete event frame read from scanner.
func readSSE(scanner *bufio.Scanner) func(func(events.Event) bool) {
	return func(yield func(events.Event) bool) {
		var cur events.Event
		var data strings.Builder

		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				if data.Len() > 0 {
					cur.Data = json.RawMessage(data.String())
					if cur.At.IsZero() {
						cur.At = time.Now()
					}
					if !yield(cur) {
						return
					}
				}
				cur = events.Event{}
				data.Reset()
			case strings.HasPrefix(line, "id: "):
				if id, err := strconv.ParseInt(line[4:], 10, 64); err == nil {
					cur.ID = id
				}
			case strings.HasPrefix(line, "event: "):
				cur.Type = line[7:]
			case strings.HasPrefix(line, "data: "):
				data.WriteString(line[6:])
			}
		}
	}
}

// receiveNextEvent waits for the next event from the channel.
func receiveNextEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

// fetchHealth queries the /healthz endpoint.
func fetchHealth(apiURL, apiKey string) tea.Msg {
	client := &http.Client{Timeout: 2 * time.Second}
	req, err := newRequest(http.MethodGet, apiURL+"/healthz", apiKey)
	if err != nil {
		return errMsg(err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return errMsg(err)
	}
	defer resp.Body.Close()

	var h healthMsg
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return errMsg(err)
	}
	return h
}

// fetchDispatches backfills the table from /dispatches. A disabled journal
// yields an empty backfill.
func fetchDispatches(apiURL, apiKey string) tea.Msg {
	client := &http.Client{Timeout: 5 * time.Second}
	req, err := newRequest(http.MethodGet, fmt.Sprintf("%s/dispatches?limit=%d", apiURL, backfillLimit), apiKey)
	if err != nil {
		return errMsg(err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return errMsg(err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return dispatchesMsg(nil)
	default:
		return errMsg(fmt.Errorf("/dispatches: %s", resp.Status))
	}

	var body struct {
		Dispatches []journal.Entry `json:"dispatches"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return errMsg(err)
	}
	return dispatchesMsg(body.Dispatches)
}
