package odrive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/SlimeVR/SlimeVR-Testing-Gyro-sub000/signal"
	"github.com/jpillora/maplock"
	"github.com/sirupsen/logrus"
)

// Lock serialises request/response exchanges that share a reply identifier.
var Lock = maplock.New()

// DefaultTimeout is used when neither the call nor the client sets a timeout.
const DefaultTimeout = 2 * time.Second

// TimeoutError is returned when no matching frame arrived before the deadline.
type TimeoutError struct {
	Description string
	Timeout     time.Duration
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s waiting for %s", e.Timeout, e.Description)
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var timeout TimeoutError
	return errors.As(err, &timeout)
}

// ExpectationFailed is a required precondition that did not hold in time.
// Callers treat it as fatal.
type ExpectationFailed struct {
	Message string
	Err     error
}

func (e ExpectationFailed) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e ExpectationFailed) Unwrap() error {
	return e.Err
}

// A Matcher reports whether a frame is the one being waited for.
type Matcher func(frame Frame) bool

// MatchID matches frames with the given identifier.
func MatchID(id uint32) Matcher {
	return func(frame Frame) bool {
		return frame.ID == id && !frame.Rtr
	}
}

// WaitResponse is the single result of a wait: a frame or an error.
type WaitResponse struct {
	Frame Frame
	Err   error
}

// A Request is a frame to publish and the matcher of its reply.
type Request struct {
	Frame       Frame
	Match       Matcher
	Description string
}

// NewRequest returns a request whose reply is the next frame with responseID.
func NewRequest(frame Frame, responseID uint32) *Request {
	return &Request{
		Frame:       frame,
		Match:       MatchID(responseID),
		Description: fmt.Sprintf("frame %03X", responseID),
	}
}

// A Response is the reply frame of a request.
type Response struct {
	Frame   Frame
	Request *Request
}

// A Client handles message communication by sending a request
// and waiting for the response.
//
// The bus is broadcast: a received frame resolves every pending wait whose
// matcher accepts it. Requests carry no identity beyond their matcher, so two
// concurrent waits with the same matcher race for the same replies.
type Client struct {
	Bus     Transport
	Catalog *signal.Catalog
	Timeout time.Duration
	Logger  logrus.FieldLogger
}

func (c *Client) timeout(timeout time.Duration) time.Duration {
	switch {
	case timeout > 0:
		return timeout
	case c.Timeout > 0:
		return c.Timeout
	}
	return DefaultTimeout
}

func (c *Client) logger() logrus.FieldLogger {
	if c.Logger == nil {
		return discardLogger()
	}
	return c.Logger
}

type waiter struct {
	mu          sync.Mutex
	resolved    bool
	unsubscribe func()
	timer       *time.Timer
	stopContext func() bool
	ch          chan WaitResponse
}

// resolve delivers the first response and tears the wait down. Later calls,
// e.g. a frame racing the timer, are ignored.
func (w *waiter) resolve(resp WaitResponse) {
	w.mu.Lock()
	if w.resolved {
		w.mu.Unlock()
		return
	}
	w.resolved = true
	unsubscribe, timer, stopContext := w.unsubscribe, w.timer, w.stopContext
	w.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if timer != nil {
		timer.Stop()
	}
	if stopContext != nil {
		stopContext()
	}
	w.ch <- resp
}

// Wait subscribes to the bus and returns a channel receiving exactly one
// response: the first frame published after the call for which match returns
// true, or a TimeoutError once timeout elapsed.
func (c *Client) Wait(match Matcher, timeout time.Duration) <-chan WaitResponse {
	return c.WaitContext(context.Background(), match, timeout)
}

// WaitContext is Wait with cancellation; a cancelled context resolves the wait
// with the context error.
func (c *Client) WaitContext(ctx context.Context, match Matcher, timeout time.Duration) <-chan WaitResponse {
	return c.wait(ctx, match, timeout, "matching frame")
}

func (c *Client) wait(ctx context.Context, match Matcher, timeout time.Duration, description string) <-chan WaitResponse {
	timeout = c.timeout(timeout)
	w := &waiter{ch: make(chan WaitResponse, 1)}

	unsubscribe := c.Bus.Subscribe(func(frame Frame) {
		if match(frame) {
			w.resolve(WaitResponse{Frame: frame})
		}
	})

	w.mu.Lock()
	if w.resolved {
		w.mu.Unlock()
		unsubscribe()
		return w.ch
	}
	w.unsubscribe = unsubscribe
	w.timer = time.AfterFunc(timeout, func() {
		w.resolve(WaitResponse{Err: TimeoutError{Description: description, Timeout: timeout}})
	})
	w.stopContext = context.AfterFunc(ctx, func() {
		w.resolve(WaitResponse{Err: ctx.Err()})
	})
	w.mu.Unlock()

	return w.ch
}

// Do sends a request and waits for a response.
// If the response frame doesn't arrive on time, an error is returned.
func (c *Client) Do(req *Request) (*Response, error) {
	return c.DoContext(context.Background(), req)
}

// DoContext sends a request and waits for a response or cancellation.
func (c *Client) DoContext(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	description := req.Description
	if description == "" {
		description = "response"
	}

	// Subscribe before publishing so a fast reply is never missed.
	rch := c.wait(ctx, req.Match, 0, description)

	if err := c.Bus.Publish(req.Frame); err != nil {
		return nil, err
	}

	resp := <-rch
	if resp.Err != nil {
		return nil, resp.Err
	}
	return &Response{resp.Frame, req}, nil
}

// Frame encodes a command for an address.
func (c *Client) Frame(address Address, commandID uint8, record signal.Record) (Frame, error) {
	msg, ok := c.Catalog.Message(commandID)
	if !ok {
		return Frame{}, fmt.Errorf("unknown command id 0x%02X", commandID)
	}

	id, err := address.ID(commandID, c.Catalog)
	if err != nil {
		return Frame{}, err
	}

	payload, err := signal.Encode(msg, record)
	if err != nil {
		return Frame{}, err
	}

	return NewFrame(id, payload), nil
}

// Send encodes and publishes a command without waiting for anything.
func (c *Client) Send(address Address, commandID uint8, record signal.Record) error {
	frame, err := c.Frame(address, commandID, record)
	if err != nil {
		return err
	}

	c.logger().WithFields(logrus.Fields{
		"node":    address.NodeID,
		"axis":    address.Axis,
		"command": fmt.Sprintf("0x%02X", commandID),
	}).Debug("send")
	return c.Bus.Publish(frame)
}

// Poll publishes a remote transmit request asking a device for a message.
func (c *Client) Poll(address Address, commandID uint8) error {
	id, err := address.ID(commandID, c.Catalog)
	if err != nil {
		return err
	}

	frame := NewFrame(id, nil)
	frame.Rtr = true
	return c.Bus.Publish(frame)
}

// ConditionResponse is the result of WaitCondition.
// Raw is set whenever a frame was matched, Record when it also decoded.
type ConditionResponse struct {
	Frame  Frame
	Raw    signal.Raw
	Record signal.Record
	Err    error
}

// WaitCondition waits for a message from an address whose decoded record
// satisfies cond. A frame of that message which fails to decode resolves the
// wait with the DecodeError.
func (c *Client) WaitCondition(ctx context.Context, address Address, commandID uint8, cond func(signal.Record) bool, timeout time.Duration) <-chan ConditionResponse {
	out := make(chan ConditionResponse, 1)

	msg, ok := c.Catalog.Message(commandID)
	if !ok {
		out <- ConditionResponse{Err: fmt.Errorf("unknown command id 0x%02X", commandID)}
		return out
	}

	match := func(frame Frame) bool {
		if frame.Rtr || frame.Extended || !address.Matches(frame.ID, commandID, c.Catalog) {
			return false
		}
		record, err := signal.Decode(msg, frame.Data)
		if err != nil {
			return true
		}
		return cond == nil || cond(record)
	}

	rch := c.wait(ctx, match, timeout, fmt.Sprintf("%s from %s", msg.Name, address))
	go func() {
		resp := <-rch
		if resp.Err != nil {
			out <- ConditionResponse{Err: resp.Err}
			return
		}

		raw, err := signal.DecodeRaw(msg, resp.Frame.Data)
		if err != nil {
			out <- ConditionResponse{Frame: resp.Frame, Err: err}
			return
		}
		record, err := signal.Decode(msg, resp.Frame.Data)
		out <- ConditionResponse{Frame: resp.Frame, Raw: raw, Record: record, Err: err}
	}()

	return out
}

// Expect receives a condition result and converts a timeout into an
// ExpectationFailed carrying message.
func Expect(rch <-chan ConditionResponse, message string) (ConditionResponse, error) {
	resp := <-rch
	if resp.Err != nil && IsTimeout(resp.Err) {
		return resp, ExpectationFailed{Message: message, Err: resp.Err}
	}
	return resp, resp.Err
}
