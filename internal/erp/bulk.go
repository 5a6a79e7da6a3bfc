package erp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// headerLocator names the response header carrying the next result
// page locator. The final page sets it to "null" or omits it.
const headerLocator = "X-Query-Locator"

const (
	jobStateOpen       = "Open"
	jobStateInProgress = "InProgress"
	jobStateComplete   = "JobComplete"
	jobStateFailed     = "Failed"
	jobStateAborted    = "Aborted"
)

type bulkJobRequest struct {
	Operation string `json:"operation"`
	Query     string `json:"query"`
}

type bulkJob struct {
	ID                     string `json:"id"`
	State                  string `json:"state"`
	NumberRecordsProcessed int64  `json:"numberRecordsProcessed"`
	ErrorMessage           string `json:"errorMessage"`
}

// BulkQuery runs q as an asynchronous query job: create, poll until a
// terminal state, then download every CSV result page. Meant for the
// transaction-line extraction, which is far too large for the REST
// endpoint.
func (c *Client) BulkQuery(ctx context.Context, q string) ([]Record, error) {
	id, err := c.createQueryJob(ctx, q)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("bulk job created", "job_id", id)

	if err := c.waitForJob(ctx, id); err != nil {
		return nil, err
	}
	return c.downloadResults(ctx, id)
}

func (c *Client) createQueryJob(ctx context.Context, q string) (string, error) {
	var job bulkJob
	payload := bulkJobRequest{Operation: "query", Query: q}
	if err := c.callJSON(ctx, http.MethodPost, "/api/data/jobs/query", payload, &job); err != nil {
		return "", err
	}
	if job.ID == "" {
		return "", fmt.Errorf("erp: job create response missing id")
	}
	return job.ID, nil
}

func (c *Client) jobStatus(ctx context.Context, id string) (bulkJob, error) {
	var job bulkJob
	err := c.callJSON(ctx, http.MethodGet, "/api/data/jobs/query/"+url.PathEscape(id), nil, &job)
	return job, err
}

// waitForJob polls until the job completes, fails, is aborted, or the
// configured timeout elapses.
func (c *Client) waitForJob(ctx context.Context, id string) error {
	deadline := time.Now().Add(c.jobTimeout)

	for {
		job, err := c.jobStatus(ctx, id)
		if err != nil {
			return err
		}

		switch job.State {
		case jobStateComplete:
			c.logger.Debug("bulk job complete", "job_id", id, "records", job.NumberRecordsProcessed)
			return nil
		case jobStateFailed:
			return fmt.Errorf("erp: job %s: %s: %w", id, job.ErrorMessage, ErrJobFailed)
		case jobStateAborted:
			return fmt.Errorf("erp: job %s: %w", id, ErrJobAborted)
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("erp: job %s still %s after %s: %w", id, job.State, c.jobTimeout, ErrJobTimeout)
		}
		c.logger.Debug("bulk job pending", "job_id", id, "state", job.State)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *Client) downloadResults(ctx context.Context, id string) ([]Record, error) {
	var records []Record

	locator := ""
	for {
		path := fmt.Sprintf("/api/data/jobs/query/%s/results?maxRecords=%d", url.PathEscape(id), c.pageSize)
		if locator != "" {
			path += "&locator=" + url.QueryEscape(locator)
		}

		// The page is replaced, not appended, inside the handler so a
		// retried download cannot double-count rows.
		var page []Record
		next, err := c.callCSV(ctx, path, func(r io.Reader) error {
			rows, err := readRecords(r)
			if err != nil {
				return err
			}
			page = rows
			return nil
		})
		if err != nil {
			return nil, err
		}
		records = append(records, page...)

		if next == "" || next == "null" {
			return records, nil
		}
		locator = next
	}
}
