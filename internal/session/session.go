// Package session runs the interactive question loop: pick a region, name two
// crossing streets, then ask about a time of day.
package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/couchcryptid/street-parking-odds/internal/domain"
	"github.com/couchcryptid/street-parking-odds/internal/query"
)

// Publisher receives every answered intersection query.
type Publisher interface {
	Publish(ctx context.Context, answer domain.QueryAnswer) error
}

// Controller owns one interactive session over a reader and writer.
type Controller struct {
	id        string
	engine    *query.Engine
	regions   []string
	in        io.Reader
	out       io.Writer
	publisher Publisher
	logger    *slog.Logger

	lines <-chan line
}

type line struct {
	text string
	err  error
}

// Option configures a Controller.
type Option func(*Controller)

// WithPublisher sends each answered query to p. Publish failures are logged
// and do not interrupt the session.
func WithPublisher(p Publisher) Option {
	return func(c *Controller) { c.publisher = p }
}

// New creates a Controller. regions is the list shown when a region lookup
// misses.
func New(engine *query.Engine, regions []string, in io.Reader, out io.Writer, logger *slog.Logger, opts ...Option) *Controller {
	c := &Controller{
		id:      uuid.NewString(),
		engine:  engine,
		regions: regions,
		in:      in,
		out:     out,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ID returns the session identifier used as the audit key.
func (c *Controller) ID() string { return c.id }

// Run loops until the user asks to exit, input ends, or ctx is cancelled.
// End of input and a requested exit return nil; cancellation returns ctx.Err().
func (c *Controller) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	c.lines = pump(c.in, done)

	c.logger.Debug("session started", "session_id", c.id)

	err := c.loop(ctx)
	if errors.Is(err, io.EOF) {
		c.printf("\n")
		return nil
	}
	return err
}

func (c *Controller) loop(ctx context.Context) error {
	for {
		region, scoped, err := c.promptRegion(ctx)
		if err != nil {
			return err
		}

		if err := c.askIntersection(ctx, region, scoped); err != nil {
			return err
		}

		answer, err := c.prompt(ctx, "Would you like to exit? (y/n): ")
		if err != nil {
			return err
		}
		switch strings.ToLower(answer) {
		case "y", "yes":
			return nil
		}
	}
}

// askIntersection handles street selection and time questions for one region.
// "back" at the time prompt returns to street selection.
func (c *Controller) askIntersection(ctx context.Context, region string, scoped *query.Engine) error {
	for {
		a, b, err := c.promptIntersection(ctx, scoped)
		if err != nil {
			return err
		}

		total := scoped.TotalSpaces(a, b)
		c.printf("There are about %.0f parking spaces around %s and %s.\n", total, a, b)
		if avg, ok := scoped.AverageOccupancy(a, b); ok {
			c.printf("On average %.1f vehicles are parked there.\n", avg)
		}

		clock, err := c.promptClock(ctx)
		if errors.Is(err, errBack) {
			continue
		}
		if err != nil {
			return err
		}

		summary, err := scoped.Summary(a, b, clock)
		if err != nil {
			return err
		}
		c.printf("Chance of finding a free space at %s: %s\n", summary.Time, summary.Confidence)
		if summary.MatchedAtTime > 0 {
			c.printf("(%d of %d surveys around that time had an open space)\n", summary.AvailableAtTime, summary.MatchedAtTime)
		} else {
			c.printf("(no surveys around that time)\n")
		}

		c.publish(ctx, region, summary)
		return nil
	}
}

func (c *Controller) promptRegion(ctx context.Context) (string, *query.Engine, error) {
	for {
		name, err := c.prompt(ctx, "Please enter the region you are trying to find parking in: ")
		if err != nil {
			return "", nil, err
		}

		if name != "" {
			subset := c.engine.SelectRegion(name)
			if len(subset) == 0 {
				subset = c.engine.SelectRegionFold(name)
			}
			if len(subset) > 0 {
				return strings.ToLower(subset[0].Region), c.engine.Within(subset), nil
			}
		}

		c.printf("Could not find that region\n")
		c.printf("Possible regions include:\n")
		for i, r := range c.regions {
			c.printf("%d: %s\n", i, r)
		}
	}
}

func (c *Controller) promptIntersection(ctx context.Context, scoped *query.Engine) (string, string, error) {
	for {
		a, err := c.promptStreet(ctx, scoped, "Please enter the primary street: ")
		if err != nil {
			return "", "", err
		}
		b, err := c.promptStreet(ctx, scoped, "Please enter the cross street: ")
		if err != nil {
			return "", "", err
		}

		if scoped.IsValidIntersection(a, b) {
			return a, b, nil
		}
		c.printf("%s and %s do not intersect in that region\n", a, b)
	}
}

// promptStreet re-prompts until a street is found in scoped. Input that
// misses as typed is retried upper-cased, matching the export's casing.
func (c *Controller) promptStreet(ctx context.Context, scoped *query.Engine, msg string) (string, error) {
	for {
		name, err := c.prompt(ctx, msg)
		if err != nil {
			return "", err
		}
		if name == "" {
			c.printf("Please enter a street name\n")
			continue
		}

		if scoped.IsValidStreet(name) {
			return name, nil
		}
		if upper := strings.ToUpper(name); upper != name && scoped.IsValidStreet(upper) {
			return upper, nil
		}
		c.printf("Could not find %s in that region\n", name)
	}
}

var errBack = errors.New("back to street selection")

func (c *Controller) promptClock(ctx context.Context) (string, error) {
	for {
		in, err := c.prompt(ctx, "What time will you arrive? (HH:MM, or 'back'): ")
		if err != nil {
			return "", err
		}
		if strings.EqualFold(in, "back") {
			return "", errBack
		}
		if domain.IsClock(in) {
			return in, nil
		}
		c.printf("Please enter a 24-hour time like 17:30\n")
	}
}

func (c *Controller) publish(ctx context.Context, region string, summary domain.IntersectionSummary) {
	if c.publisher == nil {
		return
	}
	answer := domain.NewQueryAnswer(c.id, region, summary)
	if err := c.publisher.Publish(ctx, answer); err != nil {
		c.logger.Warn("publish query audit", "session_id", c.id, "answer_id", answer.ID, "error", err)
	}
}

func (c *Controller) prompt(ctx context.Context, msg string) (string, error) {
	c.printf("%s", msg)
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case l, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		if l.err != nil {
			return "", fmt.Errorf("read input: %w", l.err)
		}
		return strings.TrimSpace(l.text), nil
	}
}

func (c *Controller) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// pump reads r line by line until EOF, a read error, or done is closed.
func pump(r io.Reader, done <-chan struct{}) <-chan line {
	lines := make(chan line)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- line{text: sc.Text()}:
			case <-done:
				return
			}
		}
		if err := sc.Err(); err != nil {
			select {
			case lines <- line{err: err}:
			case <-done:
			}
		}
	}()
	return lines
}
