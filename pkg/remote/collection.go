package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Collection binds one REST collection endpoint to its item type.
type Collection[T any] struct {
	Client *Client
	Path   string
	// Query, when set, is evaluated on every request so values such as
	// today's date stay current.
	Query func() url.Values
}

// NewCollection binds path on c.
func NewCollection[T any](c *Client, path string) Collection[T] {
	return Collection[T]{Client: c, Path: path}
}

func (c Collection[T]) query() url.Values {
	q := url.Values{}
	if c.Query != nil {
		for k, vs := range c.Query() {
			q[k] = append([]string(nil), vs...)
		}
	}
	return q
}

// List fetches the authoritative snapshot.
func (c Collection[T]) List(ctx context.Context) ([]T, error) {
	var items []T
	err := c.Client.SafeFetchJSON(ctx, Request{
		Method: http.MethodGet,
		Path:   c.Path,
		Query:  c.query(),
	}, &items)
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Create POSTs body and returns the confirmed item.
func (c Collection[T]) Create(ctx context.Context, body any) (T, error) {
	var item T
	err := c.Client.SafeFetchJSON(ctx, Request{
		Method: http.MethodPost,
		Path:   c.Path,
		Query:  c.query(),
		Body:   body,
	}, &item)
	return item, err
}

// Update PUTs a partial update. ok is false when the server answered 2xx
// without a body.
func (c Collection[T]) Update(ctx context.Context, body any) (item T, ok bool, err error) {
	resp, err := c.Client.Do(ctx, Request{
		Method: http.MethodPut,
		Path:   c.Path,
		Query:  c.query(),
		Body:   body,
	})
	if err != nil {
		return item, false, err
	}
	if err := checkStatus(resp); err != nil {
		return item, false, err
	}
	if resp.StatusCode == http.StatusNoContent || resp.ContentLength == 0 || !isJSON(resp.Header.Get("Content-Type")) {
		drain(resp)
		return item, false, nil
	}
	if err := SafeParseJSON(resp, &item); err != nil {
		if errors.Is(err, io.EOF) {
			return item, false, nil
		}
		return item, false, err
	}
	return item, true, nil
}

// Delete removes the item with id.
func (c Collection[T]) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("remote: delete %s: id required", c.Path)
	}
	q := c.query()
	q.Set("id", id)
	return c.Client.Send(ctx, Request{
		Method: http.MethodDelete,
		Path:   c.Path,
		Query:  q,
	})
}
