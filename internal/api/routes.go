package api

import "net/http"

// Router is satisfied by *http.ServeMux.
type Router interface {
	Handle(pattern string, handler http.Handler)
}

// Middleware wraps every mounted handler, outermost first.
type Middleware func(http.Handler) http.Handler

// Mount registers the gateway routes. The notify route is also served under
// /api/ for deployments that prefix serverless functions.
func Mount(router Router, tokens *TokenAPI, notify *NotifyAPI, mws ...Middleware) {
	wrap := func(h http.HandlerFunc) http.Handler {
		var handler http.Handler = h
		for i := len(mws) - 1; i >= 0; i-- {
			handler = mws[i](handler)
		}
		return handler
	}

	router.Handle("/register-token", wrap(tokens.RegisterToken))
	router.Handle("/unregister-token", wrap(tokens.UnregisterToken))
	router.Handle("/register-web-push", wrap(tokens.RegisterWebPush))
	router.Handle("/unregister-web-push", wrap(tokens.UnregisterWebPush))

	notifyHandler := wrap(notify.NotifyTaskAssigned)
	router.Handle("/notify-task-assigned", notifyHandler)
	router.Handle("/api/notify-task-assigned", notifyHandler)
	router.Handle("/api/register-token", wrap(tokens.RegisterToken))
}
