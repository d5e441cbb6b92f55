package mcpgen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/jordanhubbard/mmgen/internal/metrics"
	"github.com/jordanhubbard/mmgen/internal/telemetry"
)

var (
	// ErrMissingArgument is returned when a required argument is absent.
	ErrMissingArgument = errors.New("missing required argument")
	// ErrBackendStatus is returned when the backend answers with a non-2xx status.
	ErrBackendStatus = errors.New("backend returned an error status")
)

const maxResponseBytes = 8 << 20

// Dispatcher executes ToolSpecs against a backend.
type Dispatcher struct {
	baseURL string
	client  *http.Client
	curl    string // curl binary, empty for native HTTP
	limiter *rate.Limiter
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithHTTPClient sets the client used for native calls.
func WithHTTPClient(c *http.Client) DispatcherOption {
	return func(d *Dispatcher) { d.client = c }
}

// WithCurl shells out to the given curl binary instead of calling natively.
func WithCurl(bin string) DispatcherOption {
	return func(d *Dispatcher) {
		if bin == "" {
			bin = "curl"
		}
		d.curl = bin
	}
}

// WithRateLimit caps calls per second; zero or less disables the cap.
func WithRateLimit(perSecond float64) DispatcherOption {
	return func(d *Dispatcher) {
		if perSecond > 0 {
			burst := int(perSecond)
			if burst < 1 {
				burst = 1
			}
			d.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// NewDispatcher creates a dispatcher for the backend at baseURL.
func NewDispatcher(baseURL string, opts ...DispatcherOption) *Dispatcher {
	if baseURL == "" {
		baseURL = DefaultBackendURL
	}
	d := &Dispatcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 2 * time.Minute, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// BaseURL returns the backend base URL.
func (d *Dispatcher) BaseURL() string { return d.baseURL }

// Call runs one tool and returns the backend response body.
func (d *Dispatcher) Call(ctx context.Context, spec ToolSpec, args map[string]string) (out string, err error) {
	ctx, span := telemetry.StartSpan(ctx, "mcpgen.dispatch",
		attribute.String("tool", spec.Name),
		attribute.String("method", spec.Method),
		attribute.Bool("curl", d.curl != ""),
	)
	start := time.Now()
	defer func() {
		metrics.NewMetrics().RecordDispatch(spec.Name, err == nil, time.Since(start))
		telemetry.EndSpan(span, err)
	}()

	for _, name := range spec.Required() {
		if args[name] == "" {
			return "", fmt.Errorf("%s: %s: %w", spec.Name, name, ErrMissingArgument)
		}
	}
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	if d.curl != "" {
		return d.callCurl(ctx, spec, args)
	}
	return d.callHTTP(ctx, spec, args)
}

// RequestURL builds the full request URL: path placeholders substituted and
// escaped, non-empty query arguments appended.
func RequestURL(base string, spec ToolSpec, args map[string]string) string {
	path := pathParamRE.ReplaceAllStringFunc(spec.Path, func(m string) string {
		return url.PathEscape(args[m[1:len(m)-1]])
	})
	u := strings.TrimRight(base, "/") + path
	q := url.Values{}
	for _, p := range spec.ParamsIn(InQuery) {
		if v := args[p.Name]; v != "" {
			q.Set(p.Name, v)
		}
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (d *Dispatcher) callHTTP(ctx context.Context, spec ToolSpec, args map[string]string) (string, error) {
	var (
		body        io.Reader
		contentType string
	)
	switch {
	case spec.HasFile():
		buf, ct, err := multipartBody(spec, args)
		if err != nil {
			return "", err
		}
		body, contentType = buf, ct
	case len(spec.ParamsIn(InBody)) > 0:
		form := url.Values{}
		for _, p := range spec.ParamsIn(InBody) {
			if v := args[p.Name]; v != "" {
				form.Set(p.Name, v)
			}
		}
		body, contentType = strings.NewReader(form.Encode()), "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, RequestURL(d.baseURL, spec, args), body)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", spec.Method, spec.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return string(data), fmt.Errorf("%s: %d: %w", spec.Name, resp.StatusCode, ErrBackendStatus)
	}
	return string(data), nil
}

func multipartBody(spec ToolSpec, args map[string]string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range spec.ParamsIn(InBody) {
		if v := args[p.Name]; v != "" {
			if err := w.WriteField(p.Name, v); err != nil {
				return nil, "", err
			}
		}
	}

	path := args[FileArg]
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	field := spec.FileField
	if field == "" {
		field = "IN"
	}
	part, err := w.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("failed to read upload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// BuildCurlArgs returns the curl arguments for one call, in the shape the
// rendered wrapper servers use.
func BuildCurlArgs(base string, spec ToolSpec, args map[string]string) []string {
	cmd := []string{"-s", "-X", spec.Method}
	if spec.HasFile() {
		for _, p := range spec.ParamsIn(InBody) {
			if v := args[p.Name]; v != "" {
				cmd = append(cmd, "-F", p.Name+"="+v)
			}
		}
		field := spec.FileField
		if field == "" {
			field = "IN"
		}
		if v := args[FileArg]; v != "" {
			cmd = append(cmd, "-F", field+"=@"+v)
		}
	} else {
		for _, p := range spec.ParamsIn(InBody) {
			if v := args[p.Name]; v != "" {
				cmd = append(cmd, "-d", p.Name+"="+v)
			}
		}
	}
	return append(cmd, RequestURL(base, spec, args))
}

func (d *Dispatcher) callCurl(ctx context.Context, spec ToolSpec, args map[string]string) (string, error) {
	argv := BuildCurlArgs(d.baseURL, spec, args)
	cmd := exec.CommandContext(ctx, d.curl, argv...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Printf("[MCPGen] curl %s failed: %v", spec.Name, err)
		return stdout.String(), fmt.Errorf("curl failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
