// Package http は外部API（取引所・通知先）向けのHTTPクライアントを提供します。
package http

import (
	"net"
	"net/http"
	"time"
)

// DefaultUserAgent は外部APIに送る User-Agent です。
const DefaultUserAgent = "market_etl/1.0"

// ClientOption は NewHTTPClient の設定を変更します。
type ClientOption func(*clientOptions)

type clientOptions struct {
	userAgent       string
	maxConnsPerHost int
}

// WithUserAgent はリクエストに付ける User-Agent を指定します。空文字なら付けません。
func WithUserAgent(ua string) ClientOption {
	return func(o *clientOptions) { o.userAgent = ua }
}

// WithMaxConnsPerHost は1ホストあたりの同時接続数の上限を指定します。
func WithMaxConnsPerHost(n int) ClientOption {
	return func(o *clientOptions) { o.maxConnsPerHost = n }
}

// NewHTTPClient は外部API呼び出し用のHTTPクライアントを作成します。
//
// ページングは逐次なので、接続は1ホストに対して少数を使い回します。
// Client.Timeout は1リクエスト全体の上限で、リトライの待ち時間は含みません。
func NewHTTPClient(timeout time.Duration, opts ...ClientOption) *http.Client {
	o := clientOptions{userAgent: DefaultUserAgent, maxConnsPerHost: 4}
	for _, opt := range opts {
		opt(&o)
	}

	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: o.maxConnsPerHost,
		MaxConnsPerHost:     o.maxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}

	var rt http.RoundTripper = t
	if o.userAgent != "" {
		rt = &userAgentTransport{base: t, userAgent: o.userAgent}
	}
	return &http.Client{Timeout: timeout, Transport: rt}
}

// userAgentTransport は呼び出し側が User-Agent を指定していないリクエストに既定値を付けます。
type userAgentTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.base.RoundTrip(req)
	}
	r := req.Clone(req.Context())
	r.Header.Set("User-Agent", t.userAgent)
	return t.base.RoundTrip(r)
}
