package toolpipeline

// Hardcoded deny defaults, merged into whatever a tool's configured filter
// specifies and never removable from it. Ported verbatim from
// original_source's agent::hardcoded_filters.

// BashDenySubstrings blocks access to daemon-internal secrets/audit files
// and the most catastrophic shell one-liners, regardless of configuration.
var BashDenySubstrings = []string{
	".device_key",
	".security_audit.jsonl",
	".localgpt_manifest.json",
	"rm -rf /",
	"mkfs",
	":(){ :|:& };:",
	"chmod 777",
}

// BashDenyPatterns blocks privilege escalation and pipe-to-shell idioms.
var BashDenyPatterns = []string{
	`\bsudo\b`,
	`curl\s.*\|\s*sh`,
	`wget\s.*\|\s*sh`,
	`curl\s.*\|\s*bash`,
	`wget\s.*\|\s*bash`,
	`curl\s.*\|\s*python`,
}

// WebFetchDenySubstrings blocks the local-file scheme and well-known
// loopback/link-local hostnames that a fetch tool could use to pivot into
// the host's own metadata services.
var WebFetchDenySubstrings = []string{
	"file://",
	"localhost",
	"0.0.0.0",
	"169.254.169.254",
	"[::1]",
}

// WebFetchDenyPatterns blocks fetches into RFC1918 private address ranges
// and loopback, by regex over the literal IP in the URL.
var WebFetchDenyPatterns = []string{
	`https?://10\.\d{1,3}\.\d{1,3}\.\d{1,3}`,
	`https?://172\.(1[6-9]|2\d|3[01])\.\d{1,3}\.\d{1,3}`,
	`https?://192\.168\.\d{1,3}\.\d{1,3}`,
	`https?://127\.\d{1,3}\.\d{1,3}\.\d{1,3}`,
}
