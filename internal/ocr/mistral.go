package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/finetune-cli/internal/resilience"
)

const (
	mistralOCREndpoint  = "https://api.mistral.ai/v1/ocr"
	defaultMistralModel = "pixtral-large-latest"
)

// MistralOCR extracts statement pages through the Mistral OCR API. Each page
// comes back as markdown; transient failures are retried.
type MistralOCR struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
	retry    resilience.RetryConfig
	log      *zap.Logger
}

// MistralOption configures a MistralOCR.
type MistralOption func(*MistralOCR)

// WithMistralEndpoint overrides the OCR endpoint URL.
func WithMistralEndpoint(url string) MistralOption {
	return func(m *MistralOCR) { m.endpoint = url }
}

// WithMistralHTTPClient sets the HTTP client.
func WithMistralHTTPClient(c *http.Client) MistralOption {
	return func(m *MistralOCR) { m.client = c }
}

// WithMistralRetry sets the retry policy for OCR calls.
func WithMistralRetry(cfg resilience.RetryConfig) MistralOption {
	return func(m *MistralOCR) { m.retry = cfg }
}

// WithMistralLogger sets the logger used for retry warnings.
func WithMistralLogger(log *zap.Logger) MistralOption {
	return func(m *MistralOCR) { m.log = log }
}

// NewMistralOCR creates a MistralOCR extractor. An empty model selects the
// default.
func NewMistralOCR(apiKey, model string, opts ...MistralOption) *MistralOCR {
	if model == "" {
		model = defaultMistralModel
	}
	m := &MistralOCR{
		apiKey:   apiKey,
		model:    model,
		endpoint: mistralOCREndpoint,
		client:   &http.Client{},
		retry:    resilience.DefaultRetryConfig(),
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

type ocrRequest struct {
	Model    string      `json:"model"`
	Document ocrDocument `json:"document"`
}

type ocrDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type ocrResponse struct {
	Pages []ocrPage `json:"pages"`
}

type ocrPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

// ExtractPages implements Extractor. Pages are returned in index order
// regardless of the order the API lists them.
func (m *MistralOCR) ExtractPages(ctx context.Context, path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ocr: read statement %s", path)
	}

	body, err := json.Marshal(ocrRequest{
		Model: m.model,
		Document: ocrDocument{
			Type:        "document_url",
			DocumentURL: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data),
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "ocr: encode mistral request")
	}

	retry := m.retry
	retry.OnRetry = resilience.RetryLogger(m.log, "mistral", "ocr")

	parsed, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*ocrResponse, error) {
		return m.post(ctx, body)
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(parsed.Pages, func(i, j int) bool {
		return parsed.Pages[i].Index < parsed.Pages[j].Index
	})
	pages := make([]string, len(parsed.Pages))
	for i, p := range parsed.Pages {
		pages[i] = p.Markdown
	}
	return pages, nil
}

func (m *MistralOCR) post(ctx context.Context, body []byte) (*ocrResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "ocr: build mistral request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: mistral request")
	}
	defer resp.Body.Close() //nolint:errcheck

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: read mistral response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.ForStatus(
			eris.Errorf("ocr: mistral: unexpected status %d: %s", resp.StatusCode, string(raw)),
			resp.StatusCode,
		)
	}

	var out ocrResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, eris.Wrap(err, "ocr: decode mistral response")
	}
	return &out, nil
}
