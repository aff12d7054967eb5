package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

const docBase = "https://webdriverbidi.dev/docs/errors/"

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// Protocol (E060-E079)
	"E060": {
		Category: CategoryProtocol,
		Message:  "Cannot connect to remote end",
		Detail:   "The websocket handshake with the remote end failed. Check that the browser was started with BiDi enabled and that the URL points at its session endpoint.",
		DocURL:   docBase + "E060",
	},
	"E061": {
		Category: CategoryProtocol,
		Message:  "Remote end rejected command",
		Detail:   "The remote end answered with an error response. The error code and message come from the browser.",
		DocURL:   docBase + "E061",
	},
	"E062": {
		Category: CategoryProtocol,
		Message:  "Command timed out",
		Detail:   "No response arrived before the command deadline. The command may still run on the remote end.",
		DocURL:   docBase + "E062",
	},
	"E063": {
		Category: CategoryProtocol,
		Message:  "Connection closed",
		Detail:   "The connection ended before the command completed.",
		DocURL:   docBase + "E063",
	},
	"E064": {
		Category: CategoryProtocol,
		Message:  "Malformed response",
		Detail:   "The remote end sent a response that does not match the protocol schema.",
		DocURL:   docBase + "E064",
	},

	// Config (E120-E139)
	"E120": {
		Category: CategoryConfig,
		Message:  "Config file not found",
		Detail:   "The file passed with --config does not exist.",
		DocURL:   docBase + "E120",
	},
	"E121": {
		Category: CategoryConfig,
		Message:  "Config file could not be parsed",
		Detail:   "The config file is not valid JSON or TOML.",
		DocURL:   docBase + "E121",
	},
	"E122": {
		Category: CategoryConfig,
		Message:  "Invalid config value",
		Detail:   "A config value is out of range or has the wrong format.",
		DocURL:   docBase + "E122",
	},
	"E123": {
		Category: CategoryConfig,
		Message:  "Unsupported config format",
		Detail:   "Config files must end in .json or .toml.",
		DocURL:   docBase + "E123",
	},

	// CLI (E140-E159)
	"E140": {
		Category: CategoryCLI,
		Message:  "Invalid arguments",
		Detail:   "The command was called with the wrong number or kind of arguments.",
		DocURL:   docBase + "E140",
	},
	"E141": {
		Category: CategoryCLI,
		Message:  "Invalid JSON params",
		Detail:   "Command params must be a JSON object.",
		DocURL:   docBase + "E141",
	},
	"E142": {
		Category: CategoryCLI,
		Message:  "Cannot open recording database",
		Detail:   "The --record path could not be opened as a SQLite database.",
		DocURL:   docBase + "E142",
	},
	"E143": {
		Category: CategoryCLI,
		Message:  "Script threw an exception",
		Detail:   "The evaluated expression threw. The exception text comes from the browser.",
		DocURL:   docBase + "E143",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
