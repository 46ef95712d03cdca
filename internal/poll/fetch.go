package poll

import (
	"context"
	"time"

	"go.uber.org/multierr"

	"github.com/watchboard/watchboard/internal/backend"
)

// BackendFetch builds the FetchFunc for a view backed by the monitoring
// backend. One pass reads raw logs (when the query carries a limit) and
// aggregated logs (when it carries a granularity); failures of the two legs
// are joined so a partial outage still surfaces as one status line.
func BackendFetch(c *backend.Client) FetchFunc {
	return func(ctx context.Context, q Query) (Result, error) {
		var (
			res  Result
			errs error
		)
		since := time.Time{}
		if q.Window > 0 {
			since = time.Now().UTC().Add(-q.Window)
		}

		if q.Limit > 0 {
			records, err := c.RawLogs(ctx, backend.LogQuery{URL: q.URL, Limit: q.Limit, Since: since})
			if err != nil {
				errs = multierr.Append(errs, err)
			} else {
				res.Records = records
			}
		}

		if q.GroupBy != "" {
			summary, buckets, err := c.AggregatedLogs(ctx, backend.AggQuery{Since: since, GroupBy: q.GroupBy, URL: q.URL})
			if err != nil {
				errs = multierr.Append(errs, err)
			} else {
				res.Summary = summary
				res.Buckets = buckets
			}
		}

		return res, errs
	}
}
