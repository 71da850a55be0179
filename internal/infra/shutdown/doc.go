// Package shutdown runs cleanup hooks on SIGINT or SIGTERM.
//
// Usage:
//
//	h := shutdown.NewHandler(10 * time.Second)
//	h.OnShutdown(store.Close)
//	err := h.Wait(ctx)
package shutdown
