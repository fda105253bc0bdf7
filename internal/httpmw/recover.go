package httpmw

import (
	"net/http"

	"github.com/varserve/varserve/internal/log"
	"github.com/varserve/varserve/internal/xerrors"
)

// Recover converts handler panics into 500 responses. The panic value is
// logged with a stack trace; onPanic (optional) is invoked afterwards,
// used for incrementing the panic counter.
func Recover(logger log.Logger, onPanic func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					// the server uses this sentinel to abort the
					// connection; suppressing it would break that
					panic(rec)
				}

				var err error
				if e, ok := rec.(error); ok {
					err = xerrors.Wrap(e, "panic in http handler")
				} else {
					err = xerrors.Newf("panic in http handler: %v", rec)
				}

				logger.With(
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
				).Error(r.Context(), err, "httpserver panic recovered")

				if onPanic != nil {
					onPanic()
				}

				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
