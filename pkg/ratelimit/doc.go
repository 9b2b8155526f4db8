// Package ratelimit paces requests against the portal.
//
// Two algorithms are provided. TokenBucket refills to capacity once per
// period; NewInterval(d) is a one-token bucket used as a courtesy delay
// between navigations and between downloads. SlidingWindow caps how many
// downloads start within a moving window. Chain combines limiters.
//
// Every Wait takes a context and returns its error when cancelled:
//
//	nav := ratelimit.NewInterval(500 * time.Millisecond)
//	if err := nav.Wait(ctx); err != nil {
//	    return err
//	}
package ratelimit
