/*
Copyright 2024 The Warmshim Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package proxy

import (
	"context"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/warmshim/warmshim/pkg/common/headers"
	"github.com/warmshim/warmshim/pkg/event"
	"github.com/warmshim/warmshim/pkg/headeradapter"
	"github.com/warmshim/warmshim/pkg/params"

	"github.com/nuclio/errors"
	"github.com/nuclio/logger"
	"github.com/samber/lo"
	"github.com/valyala/fasthttp"
)

var knownMethods = []string{
	fasthttp.MethodGet,
	fasthttp.MethodHead,
	fasthttp.MethodPost,
	fasthttp.MethodPut,
	fasthttp.MethodPatch,
	fasthttp.MethodDelete,
	fasthttp.MethodOptions,
	fasthttp.MethodTrace,
	fasthttp.MethodConnect,
}

// methods whose body is rebuilt from form parameters
var formBodyMethods = []string{
	fasthttp.MethodPost,
	fasthttp.MethodPatch,
	fasthttp.MethodPut,
}

// headers describing the original connection or body framing, recomputed for the replayed request
var hopHeaders = []string{
	headers.ContentLength,
	"Connection",
	"Transfer-Encoding",
}

// Proxy replays invocation events as HTTP requests against the backend's HTTP port
type Proxy struct {
	logger        logger.Logger
	configuration *Configuration
	metrics       *Metrics
	baseURL       *url.URL
	client        *fasthttp.Client
}

func NewProxy(parentLogger logger.Logger, configuration *Configuration, metrics *Metrics) (*Proxy, error) {
	baseURL, err := url.Parse(configuration.URL)
	if err != nil {
		return nil, errors.Wrapf(err, "Invalid proxy URL %s", configuration.URL)
	}

	if baseURL.Scheme != "http" || baseURL.Host == "" {
		return nil, errors.Errorf("Proxy URL must be an http://host:port URL, got %s", configuration.URL)
	}

	openTimeout := configuration.OpenTimeout.Duration

	return &Proxy{
		logger:        parentLogger.GetChild("proxy"),
		configuration: configuration,
		metrics:       metrics,
		baseURL:       baseURL,
		client: &fasthttp.Client{
			Name:                          "warmshim",
			NoDefaultUserAgentHeader:      true,
			DisableHeaderNamesNormalizing: true,
			DisablePathNormalizing:        true,
			ReadTimeout:                   configuration.ReadTimeout.Duration,
			WriteTimeout:                  configuration.GetWriteTimeout(),
			MaxResponseBodySize:           configuration.MaxResponseBodySize,
			ReadBufferSize:                configuration.ReadBufferSize,
			MaxConnsPerHost:               configuration.MaxConnections,

			// replaying a non idempotent request could run it twice
			MaxIdemponentCallAttempts: 1,
			Dial: func(address string) (net.Conn, error) {
				return fasthttp.DialTimeout(address, openTimeout)
			},
		},
	}, nil
}

// Proxy sends the event to the backend as an HTTP request and converts the HTTP response. Fails
// with an error whose root cause is ErrUpstreamUnreachable or ErrUpstreamTimeout if the backend
// couldn't be reached or didn't answer in time
func (p *Proxy) Proxy(ctx context.Context, sourceEvent *event.Event) (*event.Response, error) {
	startTime := time.Now()

	response, err := p.proxy(ctx, sourceEvent)

	p.metrics.observeRequest(response, err, time.Since(startTime))

	return response, err
}

func (p *Proxy) proxy(ctx context.Context, sourceEvent *event.Event) (*event.Response, error) {
	request := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(request)

	if err := p.buildRequest(sourceEvent, request); err != nil {
		return nil, err
	}

	p.logger.DebugWith("Proxying event",
		"method", string(request.Header.Method()),
		"uri", string(request.RequestURI()),
		"event", sourceEvent.SafeCopy())

	response := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(response)

	if err := p.client.DoDeadline(request, response, p.deadline(ctx)); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(ErrUpstreamTimeout, "Invocation ended: %s", ctx.Err().Error())
		}

		return nil, classifyRequestError(err)
	}

	p.logger.DebugWith("Received response",
		"status", response.StatusCode(),
		"bytes", len(response.Body()))

	return p.convertResponse(response), nil
}

func (p *Proxy) buildRequest(sourceEvent *event.Event, request *fasthttp.Request) error {
	request.Header.DisableNormalizing()

	// path parameters are part of the path itself
	resolvedParams, err := params.Resolve(sourceEvent, params.Options{BodyParameters: true})
	if err != nil {
		p.logger.DebugWith("Failed to resolve parameters, forwarding body as is", "err", err.Error())
		resolvedParams = &params.Params{Values: map[string]interface{}{}, BodyKind: params.BodyKindNone}
	}

	method := params.MethodOverride(resolvedParams, sourceEvent.HTTPMethod)
	if !lo.Contains(knownMethods, method) {
		return errors.Wrapf(ErrInvalidRequest, "Unsupported method %s", method)
	}

	request.Header.SetMethod(method)
	request.SetRequestURI(p.buildURI(sourceEvent))

	// event headers plus the forwarded headers derived from them
	requestHeaders := headeradapter.ToForwardedHeaders(sourceEvent.GetHeaders())
	for _, key := range requestHeaders.Keys() {
		if lo.ContainsBy(hopHeaders, func(hopHeader string) bool {
			return strings.EqualFold(hopHeader, key)
		}) {
			continue
		}

		// the backend builds URLs from the client's host, not the loopback address it's dialed on
		if strings.EqualFold(key, headers.Host) {
			request.Header.SetHost(requestHeaders.Get(key))
			request.UseHostHeader = true

			continue
		}

		request.Header.Set(key, requestHeaders.Get(key))
	}

	// form posts are re-encoded from their parameters. everything else, multipart included, goes
	// through byte for byte
	if resolvedParams.FormEncoded() && lo.Contains(formBodyMethods, method) {
		request.Header.SetContentType(headers.FormURLEncoded)
		request.SetBodyString(params.EncodeNested(resolvedParams.Values))

		return nil
	}

	body, err := sourceEvent.DecodedBody()
	if err != nil {
		return errors.Wrap(ErrInvalidRequest, err.Error())
	}

	if len(body) > 0 {
		request.SetBody(body)
	}

	return nil
}

func (p *Proxy) buildURI(sourceEvent *event.Event) string {
	targetURL := *p.baseURL
	targetURL.Path = strings.TrimSuffix(p.baseURL.Path, "/") + ensureLeadingSlash(sourceEvent.Path)
	targetURL.RawPath = ""
	targetURL.RawQuery = ""

	if len(sourceEvent.QueryStringParameters) > 0 {
		targetURL.RawQuery = params.EncodeNested(lo.MapValues(sourceEvent.QueryStringParameters,
			func(value string, _ string) interface{} {
				return value
			}))
	}

	return targetURL.String()
}

func (p *Proxy) convertResponse(response *fasthttp.Response) *event.Response {
	responseHeaders := &event.HeaderMap{}
	multiValueHeaders := map[string][]string{}

	response.Header.VisitAll(func(key []byte, value []byte) {
		headerName := string(key)
		headerValue := string(value)

		if existingValue, found := responseHeaders.Lookup(headerName); found {
			headerValue = existingValue + ", " + headerValue
		}

		responseHeaders.Set(headerName, headerValue)
		multiValueHeaders[headerName] = append(multiValueHeaders[headerName], string(value))
	})

	return &event.Response{
		StatusCode:        response.StatusCode(),
		Headers:           responseHeaders,
		MultiValueHeaders: multiValueHeaders,
		Body:              string(response.Body()),
	}
}

// deadline is the read timeout from now, or the context's deadline if it's sooner
func (p *Proxy) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(p.configuration.OpenTimeout.Duration + p.configuration.ReadTimeout.Duration)

	if ctxDeadline, hasDeadline := ctx.Deadline(); hasDeadline && ctxDeadline.Before(deadline) {
		return ctxDeadline
	}

	return deadline
}

func ensureLeadingSlash(path string) string {
	if !strings.HasPrefix(path, "/") {
		return "/" + path
	}

	return path
}
