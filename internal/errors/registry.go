package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Transport Errors (E001-E019)
	// ============================================

	"E001": {
		Category: CategoryTransport,
		Message:  "Connection failed",
		Detail:   "Unable to establish a connection to the server. Check the address, and that the server is running.",
		DocURL:   "https://mirada.dev/docs/errors/E001",
	},
	"E002": {
		Category: CategoryTransport,
		Message:  "Connection lost",
		Detail:   "The connection to the server was dropped. The client will reconnect if the reconnect policy allows.",
		DocURL:   "https://mirada.dev/docs/errors/E002",
	},
	"E003": {
		Category: CategoryTransport,
		Message:  "Server not responding",
		Detail:   "The server has not answered pings within the keepalive timeout.",
		DocURL:   "https://mirada.dev/docs/errors/E003",
	},

	// ============================================
	// Frame Errors (E020-E039)
	// ============================================

	"E020": {
		Category: CategoryFrame,
		Message:  "Invalid frame header",
		Detail:   "The received bytes do not start with the expected frame magic. The peer is not speaking this protocol.",
		DocURL:   "https://mirada.dev/docs/errors/E020",
	},
	"E021": {
		Category: CategoryFrame,
		Message:  "Unsupported compressor",
		Detail:   "The server sent a frame compressed with a codec this client does not implement.",
		DocURL:   "https://mirada.dev/docs/errors/E021",
	},
	"E022": {
		Category: CategoryFrame,
		Message:  "Frame too large",
		Detail:   "The declared payload size exceeds the maximum packet size.",
		DocURL:   "https://mirada.dev/docs/errors/E022",
	},
	"E023": {
		Category: CategoryFrame,
		Message:  "Raw subpacket index out of range",
		Detail:   "The frame header carries a raw subpacket index outside the allowed range.",
		DocURL:   "https://mirada.dev/docs/errors/E023",
	},

	// ============================================
	// Cipher Errors (E040-E059)
	// ============================================

	"E040": {
		Category: CategoryCipher,
		Message:  "Unsupported cipher parameters",
		Detail:   "The server requested a cipher algorithm, mode, key hash or padding scheme this client does not implement.",
		DocURL:   "https://mirada.dev/docs/errors/E040",
	},
	"E041": {
		Category: CategoryCipher,
		Message:  "Encrypted frame before key exchange",
		Detail:   "An encrypted frame arrived before encryption was negotiated. The stream cannot be decrypted.",
		DocURL:   "https://mirada.dev/docs/errors/E041",
	},
	"E042": {
		Category: CategoryCipher,
		Message:  "Decryption failed",
		Detail:   "The payload could not be decrypted. The key material is mismatched and the stream cannot be resynchronized.",
		DocURL:   "https://mirada.dev/docs/errors/E042",
	},

	// ============================================
	// Serialization Errors (E060-E079)
	// ============================================

	"E060": {
		Category: CategorySerialization,
		Message:  "Malformed packet",
		Detail:   "The packet payload could not be decoded. The packet was dropped; the connection stays up.",
		DocURL:   "https://mirada.dev/docs/errors/E060",
	},
	"E061": {
		Category: CategorySerialization,
		Message:  "Unexpected packet shape",
		Detail:   "The packet decoded to a value this client does not understand.",
		DocURL:   "https://mirada.dev/docs/errors/E061",
	},

	// ============================================
	// Handshake Errors (E080-E099)
	// ============================================

	"E080": {
		Category: CategoryHandshake,
		Message:  "Server version unsupported",
		Detail:   "The server reported a version below the minimum this client supports, or one that could not be parsed.",
		DocURL:   "https://mirada.dev/docs/errors/E080",
	},
	"E081": {
		Category: CategoryHandshake,
		Message:  "Authentication failed",
		Detail:   "The server rejected the challenge response. Check the password.",
		DocURL:   "https://mirada.dev/docs/errors/E081",
	},
	"E082": {
		Category: CategoryHandshake,
		Message:  "Unsupported digest",
		Detail:   "The server requested a challenge digest this client does not implement.",
		DocURL:   "https://mirada.dev/docs/errors/E082",
	},
	"E083": {
		Category: CategoryHandshake,
		Message:  "Refusing xor digest over insecure transport",
		Detail:   "The xor salt digest exposes password material to anyone who can read the connection, so it is only allowed over TLS.",
		DocURL:   "https://mirada.dev/docs/errors/E083",
	},
	"E084": {
		Category: CategoryHandshake,
		Message:  "Hello timeout",
		Detail:   "The server did not complete the capability exchange in time.",
		DocURL:   "https://mirada.dev/docs/errors/E084",
	},
	"E085": {
		Category: CategoryHandshake,
		Message:  "Password required",
		Detail:   "The server sent an authentication challenge but no password is configured.",
		DocURL:   "https://mirada.dev/docs/errors/E085",
	},
	"E086": {
		Category: CategoryHandshake,
		Message:  "Reconnect attempts exhausted",
		Detail:   "The client gave up reconnecting after reaching the configured attempt limit.",
		DocURL:   "https://mirada.dev/docs/errors/E086",
	},

	// ============================================
	// Paint Errors (E100-E119)
	// ============================================

	"E100": {
		Category: CategoryPaint,
		Message:  "Unknown encoding",
		Detail:   "A draw packet used a pixel encoding this client does not implement. The paint was acknowledged as failed.",
		DocURL:   "https://mirada.dev/docs/errors/E100",
	},
	"E101": {
		Category: CategoryPaint,
		Message:  "Pixel decode failed",
		Detail:   "The pixel payload could not be decoded. The paint was acknowledged as failed and the window will be repainted.",
		DocURL:   "https://mirada.dev/docs/errors/E101",
	},
	"E102": {
		Category: CategoryPaint,
		Message:  "Unknown window",
		Detail:   "A draw packet referenced a window id the server never announced.",
		DocURL:   "https://mirada.dev/docs/errors/E102",
	},

	// ============================================
	// Configuration Errors (E120-E139)
	// ============================================

	"E120": {
		Category: CategoryConfig,
		Message:  "Invalid mirada.json",
		Detail:   "The mirada.json configuration file is malformed.",
		DocURL:   "https://mirada.dev/docs/errors/E120",
	},
	"E121": {
		Category: CategoryConfig,
		Message:  "Missing required configuration",
		Detail:   "A required configuration value is not set.",
		DocURL:   "https://mirada.dev/docs/errors/E121",
	},
	"E122": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		Detail:   "A configuration value is outside its allowed range.",
		DocURL:   "https://mirada.dev/docs/errors/E122",
	},

	// ============================================
	// CLI Errors (E140-E159)
	// ============================================

	"E140": {
		Category: CategoryCLI,
		Message:  "Invalid server address",
		Detail:   "The server address must be a ws:// or wss:// URL.",
		DocURL:   "https://mirada.dev/docs/errors/E140",
	},
	"E141": {
		Category: CategoryCLI,
		Message:  "Configuration file not found",
		Detail:   "The configuration file given on the command line does not exist.",
		DocURL:   "https://mirada.dev/docs/errors/E141",
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
