// Package retry runs operations with bounded retries and backoff.
//
// Nothing is retried unless Config.MaxRetries is positive, and by default
// only timeout and connection errors qualify. An expired pre-signed link
// or an HTTP status answer is returned on the first attempt:
//
//	cfg := retry.DefaultConfig()
//	cfg.MaxRetries = 2
//	n, err := retry.DoWithResult(ctx, func(ctx context.Context) (int64, error) {
//		return downloads.Fetch(ctx, url, dest)
//	}, cfg)
package retry
