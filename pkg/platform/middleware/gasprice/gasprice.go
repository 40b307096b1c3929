// Package gasprice extracts the gas price a caller declares for a request.
// The immediate registration protocol reads it to enforce its ceiling.
package gasprice

import (
	"net/http"
	"strconv"

	"namereg/pkg/requestcontext"
)

// HeaderGasPrice carries the declared gas price in wei.
const HeaderGasPrice = "X-Gas-Price"

// Middleware parses the gas price header into the request context. A missing
// or malformed header leaves the context at zero; the protocol decides what
// zero means.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(HeaderGasPrice)
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		price, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		ctx := requestcontext.WithGasPrice(r.Context(), price)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
