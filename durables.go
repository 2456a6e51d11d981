package fbq

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
)

// DurablePlace stages a local file as a durable artifact attached to the
// given job name and returns the id the service assigned to it. The file is
// uploaded as a multipart form with the job name, the file basename, and the
// file content.
func (c *Client) DurablePlace(ctx context.Context, jname, path string) (int64, error) {
	if err := validateName(jname); err != nil {
		return 0, err
	}
	if err := validateFile(path); err != nil {
		return 0, err
	}
	defer c.transport.timed(ctx, "durable_place")()

	body, contentType, err := durableForm(jname, path)
	if err != nil {
		return 0, err
	}

	out, err := c.transport.execute(ctx, requestSpec{
		method:      http.MethodPost,
		segments:    []string{"durables", "place"},
		body:        body,
		contentType: contentType,
		accept:      []int{http.StatusFound},
	})
	if err != nil {
		return 0, err
	}

	raw := out.headers.Get(headerDurableID)
	if raw == "" {
		return 0, fmt.Errorf("fbq: %s header is missing in the response", headerDurableID)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("fbq: parse durable id %q: %w", raw, err)
	}
	return id, nil
}

// DurableSave uploads the content of a local file into an existing durable,
// replacing whatever the service holds for it.
func (c *Client) DurableSave(ctx context.Context, id int64, path string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := validateFile(path); err != nil {
		return err
	}
	defer c.transport.timed(ctx, "durable_save")()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("fbq: read %q: %w", path, err)
	}

	_, err = c.transport.execute(ctx, requestSpec{
		method:   http.MethodPut,
		segments: []string{"durables", strconv.FormatInt(id, 10)},
		body:     data,
	})
	return err
}

// DurableLoad streams the content of a durable into the sink. Durables may
// be large; they are never buffered in memory.
func (c *Client) DurableLoad(ctx context.Context, id int64, sink io.Writer) error {
	if err := validateID(id); err != nil {
		return err
	}
	if sink == nil {
		return fmt.Errorf("fbq: sink is required")
	}
	defer c.transport.timed(ctx, "durable_load")()

	_, err := c.transport.execute(ctx, requestSpec{
		method:   http.MethodGet,
		segments: []string{"durables", strconv.FormatInt(id, 10)},
		sink:     sink,
	})
	return err
}

// DurableLock acquires the lock on a durable on behalf of the owner.
// Durables are lockable independently from job names.
func (c *Client) DurableLock(ctx context.Context, id int64, owner string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := validateOwner(owner); err != nil {
		return err
	}
	_, err := c.transport.execute(ctx, requestSpec{
		method:   http.MethodGet,
		segments: []string{"durables", strconv.FormatInt(id, 10), "lock"},
		query:    url.Values{"owner": []string{owner}},
		accept:   []int{http.StatusFound},
	})
	return err
}

// DurableUnlock releases the lock on a durable held by the owner.
func (c *Client) DurableUnlock(ctx context.Context, id int64, owner string) error {
	if err := validateID(id); err != nil {
		return err
	}
	if err := validateOwner(owner); err != nil {
		return err
	}
	_, err := c.transport.execute(ctx, requestSpec{
		method:   http.MethodGet,
		segments: []string{"durables", strconv.FormatInt(id, 10), "unlock"},
		query:    url.Values{"owner": []string{owner}},
		accept:   []int{http.StatusFound},
	})
	return err
}

// durableForm builds the multipart body for DurablePlace: plain fields
// "jname" and "file", plus a "zip" file part with the content.
func durableForm(jname, path string) ([]byte, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("fbq: open %q: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("jname", jname); err != nil {
		return nil, "", fmt.Errorf("fbq: build form: %w", err)
	}
	base := filepath.Base(path)
	if err := w.WriteField("file", base); err != nil {
		return nil, "", fmt.Errorf("fbq: build form: %w", err)
	}
	part, err := w.CreateFormFile("zip", base)
	if err != nil {
		return nil, "", fmt.Errorf("fbq: build form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("fbq: build form: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("fbq: build form: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
