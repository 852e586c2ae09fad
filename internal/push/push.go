// Package push delivers notifications to mobile devices through Expo and
// Firebase Cloud Messaging.
package push

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/prepscuola/simulazioni-backend/internal/model"
)

// ErrProviderUnavailable marks a failure of the whole provider call, as
// opposed to the rejection of a single token.
var ErrProviderUnavailable = errors.New("push provider unavailable")

// Message is the user-visible content of a push.
type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// Job is a queued push to every active device of a set of users.
type Job struct {
	UserIDs []uuid.UUID `json:"user_ids"`
	Message Message     `json:"message"`
}

// Rejection is a token the provider refused. Rejected tokens are deactivated.
type Rejection struct {
	Token  string
	Reason string
}

// Provider sends one message to a batch of tokens of the same provider.
// A returned error means the call as a whole failed; per-token refusals are
// reported as rejections.
type Provider interface {
	Name() model.PushProvider
	BatchSize() int
	Send(ctx context.Context, tokens []string, msg Message) ([]Rejection, error)
}

// Report summarises one fan-out.
type Report struct {
	Sent     int
	Failed   int
	Rejected []Rejection
}

// Dispatcher fans a message out to devices across providers with bounded
// concurrency.
type Dispatcher struct {
	providers   map[model.PushProvider]Provider
	concurrency int
	log         zerolog.Logger
}

// NewDispatcher creates a Dispatcher over the configured providers. Nil
// providers are skipped.
func NewDispatcher(concurrency int, log zerolog.Logger, providers ...Provider) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	m := make(map[model.PushProvider]Provider, len(providers))
	for _, p := range providers {
		if p != nil {
			m[p.Name()] = p
		}
	}
	return &Dispatcher{
		providers:   m,
		concurrency: concurrency,
		log:         log.With().Str("component", "push_dispatcher").Logger(),
	}
}

// Send delivers msg to every device. Provider-wide failures are logged and
// counted, never retried.
func (d *Dispatcher) Send(ctx context.Context, devices []model.DeviceToken, msg Message) Report {
	byProvider := make(map[model.PushProvider][]string)
	for _, dev := range devices {
		byProvider[dev.Provider] = append(byProvider[dev.Provider], dev.Token)
	}

	var (
		mu      sync.Mutex
		report  Report
		skipped int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)

	for name, tokens := range byProvider {
		p, ok := d.providers[name]
		if !ok {
			d.log.Warn().Str("provider", string(name)).Int("tokens", len(tokens)).Msg("No provider configured, skipping")
			skipped += len(tokens)
			continue
		}
		for _, chunk := range chunks(tokens, p.BatchSize()) {
			g.Go(func() error {
				rejected, err := p.Send(gctx, chunk, msg)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					d.log.Error().Err(err).Str("provider", string(p.Name())).Int("tokens", len(chunk)).Msg("Push delivery failed")
					report.Failed += len(chunk)
					return nil
				}
				report.Sent += len(chunk) - len(rejected)
				report.Rejected = append(report.Rejected, rejected...)
				return nil
			})
		}
	}
	_ = g.Wait()
	report.Failed += skipped
	return report
}

func chunks(tokens []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var out [][]string
	for start := 0; start < len(tokens); start += size {
		end := min(start+size, len(tokens))
		out = append(out, tokens[start:end])
	}
	return out
}
