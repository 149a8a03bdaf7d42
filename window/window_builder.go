package window

// WindowOption is a functional option for configuring an effectWindow.
// Use the With* functions to create options.
type WindowOption func(w *effectWindow)

// WithTitle sets the window title displayed in the title bar.
//
// Parameters:
//   - title: the window title text
//
// Returns:
//   - WindowOption: option function to apply
func WithTitle(title string) WindowOption {
	return func(w *effectWindow) {
		w.title = title
	}
}

// WithWidth sets the initial window width.
//
// Parameters:
//   - width: initial width in pixels
//
// Returns:
//   - WindowOption: option function to apply
func WithWidth(width int) WindowOption {
	return func(w *effectWindow) {
		w.width = width
	}
}

// WithHeight sets the initial window height.
//
// Parameters:
//   - height: initial height in pixels
//
// Returns:
//   - WindowOption: option function to apply
func WithHeight(height int) WindowOption {
	return func(w *effectWindow) {
		w.height = height
	}
}
