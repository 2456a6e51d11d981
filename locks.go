package fbq

import (
	"context"
	"net/http"
	"net/url"
)

// Lock acquires the named lock on behalf of the owner. The service enforces
// mutual exclusion; locking a name already held by another owner fails with
// a [BadResponseError].
func (c *Client) Lock(ctx context.Context, name, owner string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateOwner(owner); err != nil {
		return err
	}
	_, err := c.transport.execute(ctx, requestSpec{
		method:   http.MethodGet,
		segments: []string{"lock", name},
		query:    url.Values{"owner": []string{owner}},
		accept:   []int{http.StatusFound},
	})
	return err
}

// Unlock releases the named lock held by the owner.
func (c *Client) Unlock(ctx context.Context, name, owner string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateOwner(owner); err != nil {
		return err
	}
	_, err := c.transport.execute(ctx, requestSpec{
		method:   http.MethodGet,
		segments: []string{"unlock", name},
		query:    url.Values{"owner": []string{owner}},
		accept:   []int{http.StatusFound},
	})
	return err
}
