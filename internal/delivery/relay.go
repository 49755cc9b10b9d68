package delivery

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/shohag/slacker/internal/models"
)

type Limiter interface {
	Acquire(ctx context.Context) error
}

// ErrInvalidUTF8 rejects input that could not be posted byte for byte;
// JSON encoding would replace the bad bytes with U+FFFD.
var ErrInvalidUTF8 = errors.New("stream did not contain valid UTF-8")

// ReadError is an unrecoverable failure reading the input stream.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read input: %v", e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

type Stats struct {
	Read   int
	Sent   int
	Failed int
}

// Relay posts every input line, in order, to one endpoint.
type Relay struct {
	endpoint models.Endpoint
	poster   Poster
	limiter  Limiter
	log      zerolog.Logger
}

// NewRelay builds a relay. A nil limiter disables pacing entirely.
func NewRelay(endpoint models.Endpoint, poster Poster, limiter Limiter, log zerolog.Logger) *Relay {
	return &Relay{
		endpoint: endpoint,
		poster:   poster,
		limiter:  limiter,
		log:      log,
	}
}

type readResult struct {
	line string
	err  error
}

// Run reads in until EOF. Send failures are logged and skipped; only a read
// error or ctx ending stops the loop early.
func (r *Relay) Run(ctx context.Context, in io.Reader) (Stats, error) {
	var stats Stats

	lines := make(chan readResult)
	done := make(chan struct{})
	defer close(done)
	go readLines(in, lines, done)

	r.log.Debug().
		Str("endpoint", r.endpoint.Redacted()).
		Str("source", string(r.endpoint.Source)).
		Str("name", r.endpoint.Name).
		Bool("rate_limited", r.limiter != nil).
		Msg("relay started")

	for {
		var res readResult
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case res = <-lines:
		}

		if res.err != nil {
			if errors.Is(res.err, io.EOF) {
				return stats, nil
			}
			return stats, &ReadError{Err: res.err}
		}

		stats.Read++
		msg := models.NewMessage(stats.Read, TrimEOL(res.line))

		if r.limiter != nil {
			if err := r.limiter.Acquire(ctx); err != nil {
				return stats, err
			}
		}

		if err := r.poster.Send(ctx, r.endpoint.URL, msg.Text); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			stats.Failed++
			r.log.Error().Msgf("Failed to send message (%v)", err)
			r.log.Debug().Str("id", msg.ID).Int("seq", msg.Seq).Err(err).Msg("send failed")
			continue
		}

		stats.Sent++
		r.log.Debug().
			Str("id", msg.ID).
			Int("seq", msg.Seq).
			Int("bytes", len(msg.Text)).
			Msg("message sent")
	}
}

// readLines runs ahead of the relay by at most one line.
func readLines(in io.Reader, out chan<- readResult, done <-chan struct{}) {
	br := bufio.NewReader(in)
	for {
		line, err := br.ReadString('\n')
		if !utf8.ValidString(line) {
			err = ErrInvalidUTF8
			line = ""
		}
		if line != "" && (err == nil || errors.Is(err, io.EOF)) {
			select {
			case out <- readResult{line: line}:
			case <-done:
				return
			}
		}
		if err != nil {
			select {
			case out <- readResult{err: err}:
			case <-done:
			}
			return
		}
	}
}

// TrimEOL strips trailing CR and LF characters only.
func TrimEOL(line string) string {
	return strings.TrimRight(line, "\r\n")
}
