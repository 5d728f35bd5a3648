package worker

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/pquerna/ffjson/ffjson"

	"github.com/nhle/paddledesk/internal/logging"
)

// Client talks to a Worker Server. A worker that cannot be reached is
// reported as ErrNoController.
type Client struct {
	baseURL string
	http    *http.Client
	stream  *http.Client
	log     *log.Logger
}

// NewClient creates a Client for the worker at baseURL
// (e.g. "http://localhost:7207").
func NewClient(baseURL string) *Client {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		stream:  &http.Client{},
		log:     logging.GetLogger(logging.Sync),
	}
}

// Request sends msg and waits for the reply.
func (c *Client) Request(ctx context.Context, msg Message) (Message, error) {
	buf, err := ffjson.Marshal(&msg)
	if err != nil {
		return Message{}, fmt.Errorf("encoding %s: %w", msg.Type, err)
	}
	body := bytes.NewReader(buf)
	defer ffjson.Pool(buf)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", body)
	if err != nil {
		return Message{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Message{}, ctx.Err()
		}
		return Message{}, fmt.Errorf("%w: %v", ErrNoController, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return Message{}, fmt.Errorf("reading reply: %w", err)
	}

	var reply Message
	if err := ffjson.Unmarshal(raw, &reply); err != nil {
		return Message{}, fmt.Errorf("decoding reply (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode == http.StatusServiceUnavailable {
		return Message{}, fmt.Errorf("%w: %s", ErrNoController, reply.Error)
	}
	if resp.StatusCode >= 400 || reply.Type == ErrorReply {
		return Message{}, fmt.Errorf("worker error (status %d): %s", resp.StatusCode, reply.Error)
	}
	return reply, nil
}

// Subscribe opens the event stream. The channel closes when the stream
// ends or cancel is called.
func (c *Client) Subscribe() (<-chan Message, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan Message, subscriberBuffer)

	go func() {
		defer close(ch)
		if err := c.readEvents(ctx, ch); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Printf("[WARN] worker event stream: %s\n", err)
		}
	}()

	return ch, cancel
}

func (c *Client) readEvents(ctx context.Context, ch chan<- Message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/events", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrNoController, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream: unexpected status %d", resp.StatusCode)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 64*1024), maxBody)
	for sc.Scan() {
		data, ok := strings.CutPrefix(sc.Text(), "data: ")
		if !ok {
			continue
		}
		var msg Message
		if err := ffjson.Unmarshal([]byte(data), &msg); err != nil {
			c.log.Printf("[WARN] dropping malformed event: %s\n", err)
			continue
		}
		select {
		case ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := sc.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return ctx.Err()
}
