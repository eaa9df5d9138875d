// Package client is a typed HTTP client for the report RAG API.
package client

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
)

const retryWait = 500 * time.Millisecond

// Client talks to a running report RAG server.
type Client struct {
	http *resty.Client
}

// New builds a client for the server at baseURL. The timeout is
// generous because answering and comparing block on LLM calls. Retries
// are bounded with a fixed backoff and fire only on transport errors
// and 5xx responses, never on rejected input.
func New(baseURL string) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(2 * time.Minute).
		SetRetryCount(2).
		SetRetryWaitTime(retryWait).
		SetRetryMaxWaitTime(retryWait).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || resp.StatusCode() >= http.StatusInternalServerError
		})
	return &Client{http: httpClient}
}

type apiError struct {
	Message string `json:"error"`
}

func check(resp *resty.Response, err error, apiErr *apiError) error {
	if err != nil {
		return err
	}
	if resp.IsSuccess() {
		return nil
	}
	if apiErr.Message != "" {
		return fmt.Errorf("server returned %s: %s", resp.Status(), apiErr.Message)
	}
	return fmt.Errorf("server returned %s", resp.Status())
}

// Health reports whether the server is up.
func (c *Client) Health() error {
	resp, err := c.http.R().Get("/health")
	if err != nil {
		return err
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode())
	}
	return nil
}

// UploadedFile describes one stored document.
type UploadedFile struct {
	File   string `json:"file"`
	Digest string `json:"digest"`
	Bytes  int64  `json:"bytes"`
}

// UploadResult is the response of POST /upload_pdfs/.
type UploadResult struct {
	Uploaded []UploadedFile `json:"uploaded"`
}

// replayReader re-reads its buffer from the start after hitting EOF.
// resty rebuilds multipart bodies on every retry attempt, so a reader
// left at EOF would turn a retried upload into empty parts.
type replayReader struct {
	data []byte
	off  int
}

func (r *replayReader) Read(p []byte) (int, error) {
	if r.off >= len(r.data) {
		r.off = 0
		return 0, io.EOF
	}
	n := copy(p, r.data[r.off:])
	r.off += n
	return n, nil
}

// Upload sends the named local files to the server store.
func (c *Client) Upload(paths ...string) (*UploadResult, error) {
	req := c.http.R()
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		req.SetFileReader("files", filepath.Base(p), &replayReader{data: data})
	}

	var result UploadResult
	var apiErr apiError
	resp, err := req.SetResult(&result).SetError(&apiErr).Post("/upload_pdfs/")
	if err := check(resp, err, &apiErr); err != nil {
		return nil, err
	}
	return &result, nil
}

// Warning flags a page that lost text during extraction.
type Warning struct {
	File   string `json:"file"`
	Page   int    `json:"page"`
	Reason string `json:"reason"`
}

// ProcessResult is the response of POST /process_pdfs/.
type ProcessResult struct {
	Status   string    `json:"status"`
	LLM      string    `json:"llm"`
	Session  string    `json:"session"`
	Pages    int       `json:"pages"`
	Chunks   int       `json:"chunks"`
	Warnings []Warning `json:"warnings"`
}

// Process indexes the named uploaded files and starts a fresh
// conversation using the given LLM backend.
func (c *Client) Process(llm string, files ...string) (*ProcessResult, error) {
	form := url.Values{"llm_choice": {llm}}
	for _, f := range files {
		form.Add("pdf_files", f)
	}

	var result ProcessResult
	var apiErr apiError
	resp, err := c.http.R().
		SetFormDataFromValues(form).
		SetResult(&result).
		SetError(&apiErr).
		Post("/process_pdfs/")
	if err := check(resp, err, &apiErr); err != nil {
		return nil, err
	}
	return &result, nil
}

// Message is one conversation turn half.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Citation points at a retrieved passage.
type Citation struct {
	Page    int    `json:"page"`
	File    string `json:"file"`
	Snippet string `json:"snippet"`
}

// AskResult is the response of POST /ask_question/.
type AskResult struct {
	Answer      string     `json:"answer"`
	ChatHistory []Message  `json:"chat_history"`
	Sources     []Citation `json:"sources"`
}

// Ask poses a question against the processed documents.
func (c *Client) Ask(question, llm string) (*AskResult, error) {
	var result AskResult
	var apiErr apiError
	resp, err := c.http.R().
		SetBody(map[string]string{"question": question, "llm_choice": llm}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/ask_question/")
	if err := check(resp, err, &apiErr); err != nil {
		return nil, err
	}
	return &result, nil
}

// CompareResult is the response of POST /compare_reports/.
type CompareResult struct {
	Comparison string            `json:"comparison"`
	Summaries  map[string]string `json:"summaries"`
}

// Compare summarizes exactly two uploaded files and contrasts them.
func (c *Client) Compare(llm string, files ...string) (*CompareResult, error) {
	form := url.Values{"llm_choice": {llm}}
	for _, f := range files {
		form.Add("pdf_files", f)
	}

	var result CompareResult
	var apiErr apiError
	resp, err := c.http.R().
		SetFormDataFromValues(form).
		SetResult(&result).
		SetError(&apiErr).
		Post("/compare_reports/")
	if err := check(resp, err, &apiErr); err != nil {
		return nil, err
	}
	return &result, nil
}
