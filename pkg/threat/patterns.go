package threat

import (
	"fmt"
	"regexp"

	"github.com/mitchellh/mapstructure"
)

// LibraryVersion identifies the built-in rule set. Bump when the
// pattern table below changes.
const LibraryVersion = "2025.08"

type Category string

const (
	SQLInjection         Category = "sql_injection"
	CommandInjection     Category = "command_injection"
	XSS                  Category = "xss"
	PathTraversal        Category = "path_traversal"
	NullByteInjection    Category = "null_byte_injection"
	LDAPInjection        Category = "ldap_injection"
	NoSQLInjection       Category = "nosql_injection"
	ControlCharInjection Category = "control_char_injection"
)

// Level orders threat severities so escalation logic can compare them.
type Level int

const (
	Low Level = iota
	Medium
	High
	Critical
)

func (l Level) String() string {
	switch l {
	case Critical:
		return "critical"
	case High:
		return "high"
	case Medium:
		return "medium"
	default:
		return "low"
	}
}

func ParseLevel(s string) Level {
	switch s {
	case "critical":
		return Critical
	case "high":
		return High
	case "medium":
		return Medium
	default:
		return Low
	}
}

// patternSpec is the raw, data-only form of a category's rule set.
type patternSpec struct {
	severity Level
	patterns []string
}

// The detection rule table. Patterns within a category are alternatives:
// the first one that matches wins for that category.
var builtinPatterns = map[Category]patternSpec{
	SQLInjection: {
		severity: Critical,
		patterns: []string{
			`(?i)UNION\s+(?:ALL\s+)?SELECT\s+`,
			`(?i)['"]\s*OR\s+\d+\s*=\s*\d+|['"]\s*OR\s*['"][^'"]*['"]\s*=\s*['"]`,
			`(?i)['";]\s*;?\s*(?:INSERT\s+INTO|UPDATE\s+\w+\s+SET|DELETE\s+FROM|DROP\s+(?:TABLE|DATABASE|SCHEMA)|TRUNCATE\s+TABLE|ALTER\s+TABLE|CREATE\s+(?:TABLE|DATABASE))`,
			`(?i)\bDROP\s+TABLE\s+\w+|\bDELETE\s+FROM\s+\w+|\bINSERT\s+INTO\s+\w+`,
			`(?i)(?:SLEEP|BENCHMARK|PG_SLEEP)\s*\(\s*\d|WAITFOR\s+DELAY\b`,
			`(?i)\bSELECT\s+[\w*,\s]+\s+FROM\s+\w+`,
			`(?i)(?:--|#|/\*)[^\r\n]*(?:DROP|SELECT|INSERT|DELETE|UPDATE)`,
			`(?i)\bLOAD_FILE\s*\(|\bINTO\s+(?:OUTFILE|DUMPFILE)\b`,
		},
	},
	CommandInjection: {
		severity: Critical,
		patterns: []string{
			`(?i)[;&|]\s*(?:ls|cat|pwd|whoami|id|uname|ps|kill|rm|mv|cp|chmod|chown)\b`,
			`(?i)[;&|]\s*(?:curl|wget|nc|netcat|telnet|ssh|scp|rsync)\b`,
			`(?i)\|\s*(?:sh|bash|zsh|cmd|cmd\.exe|powershell)\b`,
			`(?i)\b(?:eval|exec|system|popen|shell_exec|passthru|subprocess)\s*\(`,
			`(?i)\$\(\s*[\w./-]+|` + "`" + `[\w./ -]+` + "`",
			`(?i)(?:nc|netcat|ncat)\s+-[ev]\b`,
			`(?i)python[23]?\s+-c\s*['"]|perl\s+-e\s|ruby\s+-[er]\s`,
			`(?i)powershell\s+-[ec]\s|IEX\s*\(|Invoke-Expression`,
			`(?i)echo\s+[A-Za-z0-9+/=]+\s*\|\s*base64\s+-d`,
			`(?i)\bos\.system\s*\(|\bos\.popen\s*\(|__import__\s*\(`,
		},
	},
	XSS: {
		severity: High,
		patterns: []string{
			`(?i)<[^>]*script`,
			`(?i)\bon(?:load|error|click|mouseover|focus|blur)\s*=`,
			`(?i)javascript\s*:|vbscript\s*:|data:text/javascript`,
			`(?i)\b(?:alert|confirm|prompt)\s*\(`,
			`(?i)document\.(?:cookie|write|domain|location)`,
			`(?i)<[^>]*(?:iframe|object|embed|applet)`,
			`(?i)\bexpression\s*\(`,
		},
	},
	PathTraversal: {
		severity: High,
		patterns: []string{
			`(?i)\.\./|\.\.\\`,
			`(?i)%2e%2e%2f|%2e%2e%5c|\.\.%2f|\.\.%5c`,
			`(?i)%252e%252e%252f|%c0%ae%c0%ae/|%c0%af|%c1%9c`,
			`(?i)/etc/(?:passwd|shadow|group|hosts)\b`,
			`(?i)(?:/|\\)(?:proc|sys)(?:/|\\)self\b`,
			`(?i)\.ssh(?:/|\\)id_rsa\b|\bbash_history\b`,
		},
	},
	NullByteInjection: {
		severity: High,
		patterns: []string{
			"\x00",
			`%00`,
			`\\u0000|\\x00`,
		},
	},
	LDAPInjection: {
		severity: Medium,
		patterns: []string{
			`\*\)\s*\(`,
			`\)\s*\(\s*[|&!]\s*\(`,
			`(?i)\(\s*(?:objectClass|cn|uid|mail|sn|userPassword)\s*=\s*\*`,
		},
	},
	NoSQLInjection: {
		severity: Medium,
		patterns: []string{
			`(?i)"?\$(?:where|regex|ne|gt|lt|gte|lte|nin|exists|elemMatch|function)"?\s*[:=]`,
			`(?i)\{\s*"\$or"\s*:\s*\[|\{\s*"\$and"\s*:\s*\[`,
			`(?i)this\.\w+\s*==`,
		},
	},
	ControlCharInjection: {
		severity: Medium,
		patterns: []string{
			"[\x01-\x08\x0b\x0c\x0e-\x1f]",
			`%0d%0a|%0a%0d`,
			"\r\n(?:HTTP/|Location:|Set-Cookie:|Content-Type:)",
		},
	},
}

// CustomPattern is an operator-supplied rule loaded from configuration.
type CustomPattern struct {
	Name     string `mapstructure:"name"`
	Pattern  string `mapstructure:"pattern"`
	Severity string `mapstructure:"severity"`
}

type compiledPattern struct {
	id string
	re *regexp.Regexp
}

type categoryRules struct {
	category Category
	severity Level
	patterns []compiledPattern
}

// Library is the compiled, immutable detection rule set. Build one at
// startup and share it across every classifier; compiled patterns are
// safe for concurrent use.
type Library struct {
	version string
	rules   []categoryRules
}

func NewLibrary() *Library {
	lib := &Library{version: LibraryVersion}
	for _, cat := range orderedCategories() {
		spec := builtinPatterns[cat]
		rules := categoryRules{category: cat, severity: spec.severity}
		for i, raw := range spec.patterns {
			rules.patterns = append(rules.patterns, compiledPattern{
				id: fmt.Sprintf("%s:%d", cat, i+1),
				re: regexp.MustCompile(raw),
			})
		}
		lib.rules = append(lib.rules, rules)
	}
	return lib
}

// WithCustomPatterns returns a copy of the library extended with
// operator-defined rules decoded from raw config settings.
func (l *Library) WithCustomPatterns(settings map[string]interface{}) (*Library, error) {
	var cfg struct {
		CustomPatterns []CustomPattern `mapstructure:"custom_patterns"`
	}
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode custom patterns: %w", err)
	}
	return l.withCustom(cfg.CustomPatterns)
}

func (l *Library) withCustom(custom []CustomPattern) (*Library, error) {
	out := &Library{version: l.version, rules: make([]categoryRules, len(l.rules))}
	copy(out.rules, l.rules)
	for _, cp := range custom {
		if cp.Name == "" {
			return nil, fmt.Errorf("custom pattern name cannot be empty")
		}
		re, err := regexp.Compile(cp.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid custom pattern %q: %w", cp.Name, err)
		}
		out.rules = append(out.rules, categoryRules{
			category: Category(cp.Name),
			severity: ParseLevel(cp.Severity),
			patterns: []compiledPattern{{id: "custom:" + cp.Name, re: re}},
		})
	}
	return out, nil
}

func (l *Library) Version() string { return l.version }

// Severity reports the default severity of a built-in category.
func Severity(cat Category) Level {
	if spec, ok := builtinPatterns[cat]; ok {
		return spec.severity
	}
	return Low
}

// orderedCategories fixes iteration order so scans and pattern IDs are
// deterministic across runs.
func orderedCategories() []Category {
	return []Category{
		SQLInjection,
		CommandInjection,
		XSS,
		PathTraversal,
		NullByteInjection,
		LDAPInjection,
		NoSQLInjection,
		ControlCharInjection,
	}
}
