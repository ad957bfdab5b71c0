package endpoints

import "net/http"

// Interactor latches a user interaction for the next frame. *host.Loop
// satisfies it.
type Interactor interface {
	Interact()
}

// InteractHandler handles /interact requests. Any touch or key press on the
// client resets the idle timer.
type InteractHandler struct {
	loop Interactor
}

// NewInteractHandler creates a new interact handler
func NewInteractHandler(loop Interactor) *InteractHandler {
	return &InteractHandler{loop: loop}
}

// ServeHTTP handles interact requests
func (h *InteractHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.loop.Interact()
	w.WriteHeader(http.StatusNoContent)
}
