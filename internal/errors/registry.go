package errors

import "sort"

// Template defines a registered error.
type Template struct {
	Category Category
	Message  string
	Detail   string
}

var registry = map[string]Template{
	// Config (E100-E119)

	"E100": {
		Category: CategoryConfig,
		Message:  "Config file not found",
		Detail:   "No liveview.yaml, liveview.yml or liveview.json was found in the given directory.",
	},
	"E101": {
		Category: CategoryConfig,
		Message:  "Invalid config syntax",
		Detail:   "The config file could not be parsed.",
	},
	"E102": {
		Category: CategoryConfig,
		Message:  "Invalid config value",
		Detail:   "A config value is outside its allowed range.",
	},
	"E103": {
		Category: CategoryConfig,
		Message:  "Unsupported config format",
		Detail:   "Config files must end in .yaml, .yml or .json.",
	},
	"E104": {
		Category: CategoryConfig,
		Message:  "Invalid duration",
		Detail:   "Durations use Go syntax, such as 30s, 5m or 1h30m.",
	},
	"E105": {
		Category: CategoryConfig,
		Message:  "Invalid log setting",
		Detail:   "log.format must be text or json and log.level one of debug, info, warn or error.",
	},
	"E106": {
		Category: CategoryConfig,
		Message:  "Config write failed",
		Detail:   "The config file could not be written.",
	},

	// Store (E120-E139)

	"E120": {
		Category: CategoryStore,
		Message:  "Unknown store driver",
		Detail:   "store.driver must be memory, redis, postgres, sqlite or s3.",
	},
	"E121": {
		Category: CategoryStore,
		Message:  "Missing store setting",
		Detail:   "The selected store driver needs a setting that is empty.",
	},
	"E122": {
		Category: CategoryStore,
		Message:  "Store connection failed",
		Detail:   "The session state store could not be reached.",
	},

	// CLI (E140-E159)

	"E140": {
		Category: CategoryCLI,
		Message:  "Unknown view",
		Detail:   "The requested view is not registered with the server.",
	},
	"E141": {
		Category: CategoryCLI,
		Message:  "Invalid flag value",
		Detail:   "A command line flag has a value the command cannot use.",
	},

	// Server (E160-E179)

	"E160": {
		Category: CategoryServer,
		Message:  "Server failed to start",
		Detail:   "The HTTP listener could not be started.",
	},
	"E161": {
		Category: CategoryServer,
		Message:  "Shutdown timed out",
		Detail:   "Live sessions did not terminate before the shutdown deadline.",
	},
}

// Codes returns all registered codes in order.
func Codes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Lookup returns the template for a code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds or replaces a template.
func Register(code string, template Template) {
	registry[code] = template
}
