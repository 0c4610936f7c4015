// Package proxy serves upstream media assets through the local session.
// Each request decodes an opaque media reference, re-authenticates when
// needed and streams the original bytes to the caller.
package proxy

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"mewefeed/media"
	"mewefeed/mewe"
	"mewefeed/models"
)

var (
	proxyStreams = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mewefeed_proxy_streams_total",
		Help: "The total number of media assets streamed through the proxy",
	})

	proxyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mewefeed_proxy_failures_total",
		Help: "The total number of failed proxy fetches",
	})

	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mewefeed_proxy_active_streams",
		Help: "The current number of in-flight proxy streams",
	})
)

// Request lifecycle, used in logging so a failed fetch shows how far it got
type stage string

const (
	stageReceived  stage = "received"
	stageAuth      stage = "authenticating"
	stageFetching  stage = "fetching"
	stageStreaming stage = "streaming"
)

// Fetcher is the slice of the session provider the proxy needs
type Fetcher interface {
	Stream(ctx context.Context, locator string) (*mewe.Asset, error)
}

const (
	// DefaultTimeout bounds one proxy fetch end to end
	DefaultTimeout = 2 * time.Minute

	maxFetchRetries = 2
)

type Proxy struct {
	fetcher Fetcher
	timeout time.Duration
}

func New(fetcher Fetcher, timeout time.Duration) *Proxy {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Proxy{fetcher: fetcher, timeout: timeout}
}

// Result is a streamable asset with its download metadata. The caller owns
// Body; closing it releases the fetch deadline.
type Result struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	Filename      string
}

// Fetch resolves an opaque reference and streams the original asset.
// Transient upstream failures are retried a bounded number of times;
// auth and not-found outcomes surface as their distinct error kinds.
func (p *Proxy) Fetch(ctx context.Context, ref string) (*Result, error) {
	current := stageReceived

	loc, err := media.DecodeRef(ref)
	if err != nil {
		return nil, &models.ValidationError{Reason: err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)

	var asset *mewe.Asset
	operation := func() error {
		// Re-authentication happens inside the session provider; every
		// fetch passes through it before touching the upstream
		current = stageAuth
		a, err := p.fetcher.Stream(ctx, loc.Url)
		current = stageFetching
		if err != nil {
			var upstream *models.UpstreamError
			if errors.As(err, &upstream) && ctx.Err() == nil {
				return err
			}
			return backoff.Permanent(err)
		}
		asset = a
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxFetchRetries), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		cancel()
		proxyFailures.Inc()
		log.WithFields(log.Fields{
			"stage": current,
			"kind":  loc.Kind,
			"error": err,
		}).Warn("Proxy fetch failed")
		return nil, err
	}

	current = stageStreaming
	proxyStreams.Inc()
	activeStreams.Inc()

	contentType := asset.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		if loc.Mime != "" {
			contentType = loc.Mime
		}
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return &Result{
		Body:          &trackedBody{ReadCloser: asset.Body, cancel: cancel},
		ContentType:   contentType,
		ContentLength: asset.ContentLength,
		Filename:      loc.Name,
	}, nil
}

// trackedBody ties the fetch deadline and the stream gauge to body closure
type trackedBody struct {
	io.ReadCloser
	cancel context.CancelFunc
	closed bool
}

func (b *trackedBody) Close() error {
	if !b.closed {
		b.closed = true
		activeStreams.Dec()
		b.cancel()
	}
	return b.ReadCloser.Close()
}
