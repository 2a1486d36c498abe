package browser

// Backend names a browser automation driver.
type Backend string

const (
	// BackendPlaywright drives Chromium through Playwright (default)
	BackendPlaywright Backend = "playwright"

	// BackendRod drives Chromium through the DevTools protocol with rod
	BackendRod Backend = "rod"
)

// LaunchOptions configures the browser started by a Launcher.
type LaunchOptions struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Viewport sets the initial viewport size of every tab
	Viewport *Viewport

	// Timeout sets the default timeout for page operations (in milliseconds)
	Timeout float64

	// ControlURL connects to an already running browser instead of launching
	// one. Only honoured by the rod backend.
	ControlURL string
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// Default values for launch options
const (
	DefaultTimeout        = 30000.0 // 30 seconds in milliseconds
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)

func (o LaunchOptions) withDefaults() LaunchOptions {
	if o.Viewport == nil {
		o.Viewport = &Viewport{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		}
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// NewLauncher returns the Launcher for backend.
func NewLauncher(backend Backend, opts LaunchOptions) Launcher {
	if backend == BackendRod {
		return NewRodLauncher(opts)
	}
	return NewPlaywrightLauncher(opts)
}
