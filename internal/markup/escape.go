// Package markup provides MarkdownV2 text safety for the Telegram transport.
//
// All dynamic strings (user input, tool names, parameter values, API data)
// must be converted to Safe before they reach a transport call. The transport
// layer only accepts Safe, so an unescaped string cannot be sent by accident.
package markup

import (
	"fmt"
	"strings"
)

// Safe is text that is valid Telegram MarkdownV2. Produced by Escape (full
// escaping), Raw (trusted literals), or the entity helpers below.
type Safe string

// String returns the underlying MarkdownV2 text.
func (s Safe) String() string { return string(s) }

// reserved is the MarkdownV2 character set that must be backslash-escaped
// outside of formatting entities, per the Bot API spec.
const reserved = "_*[]()~`>#+-=|{}.!"

// codeReserved is the subset that must be escaped inside code entities.
const codeReserved = "`\\"

// Escape returns s with every MarkdownV2 reserved character escaped.
func Escape(s string) Safe {
	return Safe(escapeSet(s, reserved))
}

// Raw marks s as already-valid MarkdownV2. Only for trusted literals that
// intentionally contain formatting entities; never pass user input.
func Raw(s string) Safe { return Safe(s) }

// Escapef formats via fmt.Sprintf and escapes the result. Convenience for
// plain sentences assembled from dynamic parts.
func Escapef(format string, args ...any) Safe {
	return Escape(fmt.Sprintf(format, args...))
}

// Bold wraps the escaped text in a bold entity.
func Bold(s string) Safe {
	return Safe("*" + escapeSet(s, reserved) + "*")
}

// Italic wraps the escaped text in an italic entity.
func Italic(s string) Safe {
	return Safe("_" + escapeSet(s, reserved) + "_")
}

// Code wraps s in an inline code entity. Inside code only backslash and
// backtick need escaping.
func Code(s string) Safe {
	return Safe("`" + escapeSet(s, codeReserved) + "`")
}

// Join concatenates already-safe parts.
func Join(parts ...Safe) Safe {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(string(p))
	}
	return Safe(b.String())
}

// Line joins parts and appends a newline.
func Line(parts ...Safe) Safe {
	return Join(parts...) + "\n"
}

func escapeSet(s, set string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/4)
	for _, r := range s {
		if strings.ContainsRune(set, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
