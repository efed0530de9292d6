package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// vclockHeader carries the causality token on Riak reads and writes.
const vclockHeader = "X-Riak-Vclock"

// RiakStore implements the Store interface on top of the Riak HTTP
// API. One RiakStore is bound to a single cluster node; load
// balancing across nodes happens above this type.
type RiakStore struct {
	client *resty.Client
	base   string
	bucket string
	probe  backoff.BackOff
	log    logrus.FieldLogger
}

// RiakOption customizes a RiakStore during construction.
type RiakOption func(*RiakStore)

// WithLogger attaches a logger to the store.
func WithLogger(log logrus.FieldLogger) RiakOption {
	return func(s *RiakStore) {
		if log != nil {
			s.log = log
		}
	}
}

// WithProbeBackOff sets the backoff used while probing the cluster
// configuration at construction time. The default probes exactly
// once. Per-key reads and writes are never retried.
func WithProbeBackOff(b backoff.BackOff) RiakOption {
	return func(s *RiakStore) {
		if b != nil {
			s.probe = b
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) RiakOption {
	return func(s *RiakStore) {
		s.client = resty.NewWithClient(client).SetBaseURL(s.base)
	}
}

// NewRiakStore connects to the cluster node at baseURL and verifies
// its configuration before returning. Sibling retention on write
// conflicts (allow_mult) must be enabled and last-write-wins must be
// disabled, otherwise concurrent writes could be silently merged; a
// cluster that fails these checks yields ErrBadConfiguration and no
// store.
func NewRiakStore(baseURL, bucket string, opts ...RiakOption) (*RiakStore, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("backend: base URL cannot be the empty string")
	}
	if bucket == "" {
		return nil, fmt.Errorf("backend: bucket cannot be the empty string")
	}
	s := &RiakStore{
		client: resty.New().SetBaseURL(baseURL),
		base:   baseURL,
		bucket: bucket,
		probe:  &backoff.StopBackOff{},
		log:    discardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.checkConfiguration(); err != nil {
		return nil, err
	}
	return s, nil
}

// bucketProps mirrors the JSON shape of the bucket properties
// resource.
type bucketProps struct {
	Props struct {
		AllowMult     bool `json:"allow_mult"`
		LastWriteWins bool `json:"last_write_wins"`
		NVal          int  `json:"n_val"`
	} `json:"props"`
}

func (s *RiakStore) checkConfiguration() error {
	err := backoff.Retry(s.fetchAndCheckProps, s.probe)
	if err != nil {
		return fmt.Errorf("%w: %s: %s", ErrBadConfiguration, s.base, err)
	}
	return nil
}

func (s *RiakStore) fetchAndCheckProps() error {
	resp, err := s.client.R().Get(s.propsPath())
	if err != nil {
		return fmt.Errorf("fetching bucket properties: %s", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("fetching bucket properties: status %d", resp.StatusCode())
	}
	var props bucketProps
	if err := json.Unmarshal(resp.Body(), &props); err != nil {
		return fmt.Errorf("parsing bucket properties: %s", err)
	}
	if !props.Props.AllowMult {
		return backoff.Permanent(fmt.Errorf("sibling retention (allow_mult) is disabled"))
	}
	if props.Props.LastWriteWins {
		return backoff.Permanent(fmt.Errorf("last_write_wins is enabled"))
	}
	s.log.WithFields(logrus.Fields{
		"endpoint": s.base,
		"bucket":   s.bucket,
		"n_val":    props.Props.NVal,
	}).Debug("cluster configuration accepted")
	return nil
}

// VectorClock reads key and extracts its causality token from the
// response headers. A 404 means the key does not exist yet and is not
// an error. A readable key without a token is a protocol violation.
func (s *RiakStore) VectorClock(key string) (string, bool, error) {
	resp, err := s.client.R().Get(s.keyPath(key))
	if err != nil {
		return "", false, fmt.Errorf("reading %q for vector clock: %w", key, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return "", false, nil
	}
	if resp.StatusCode() >= http.StatusBadRequest {
		return "", false, fmt.Errorf("reading %q for vector clock: status %d", key, resp.StatusCode())
	}
	token := resp.Header().Get(vclockHeader)
	if token == "" {
		return "", false, fmt.Errorf("%w: no %s header reading %q", ErrVectorClock, vclockHeader, key)
	}
	return token, true, nil
}

// Put pushes body under key. Critical writes request acknowledgement
// from all replicas for both the write and the durable-write quorum;
// plain writes are satisfied by a single replica. The HTTP client
// reads body fully into memory before sending, so each in-flight
// upload costs its object size in memory.
func (s *RiakStore) Put(key string, body io.Reader, size int64, opts WriteOptions) error {
	req := s.client.R().
		SetHeader("Content-Type", "application/octet-stream").
		SetQueryParam("returnbody", "false").
		SetBody(body)
	if opts.Critical {
		req.SetQueryParam("w", "all")
		req.SetQueryParam("dw", "all")
	} else {
		req.SetQueryParam("w", "1")
	}
	if opts.VectorClock != "" {
		req.SetHeader(vclockHeader, opts.VectorClock)
	}
	resp, err := req.Put(s.keyPath(key))
	if err != nil {
		return fmt.Errorf("writing %q to %s: %w", key, s.base, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: status %d writing %q to %s", ErrWriteRejected, resp.StatusCode(), key, s.base)
	}
	s.log.WithFields(logrus.Fields{"key": key, "bytes": size, "endpoint": s.base}).
		Debug("object stored")
	return nil
}

// Endpoint returns the base URL of the cluster node.
func (s *RiakStore) Endpoint() string {
	return s.base
}

func (s *RiakStore) propsPath() string {
	return fmt.Sprintf("/buckets/%s/props", url.PathEscape(s.bucket))
}

func (s *RiakStore) keyPath(key string) string {
	return fmt.Sprintf("/buckets/%s/keys/%s", url.PathEscape(s.bucket), url.PathEscape(key))
}

// Ensure that RiakStore implements the Store interface at compile-time
var _ Store = &RiakStore{}

func discardLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
