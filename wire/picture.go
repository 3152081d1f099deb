package wire

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// MinLevel and MaxLevel bound picture contrast and brightness.
	MinLevel = -255
	MaxLevel = 255

	signNegative = "01"
	signPositive = "00"

	// offsets inside a ready notification line
	readyTypeOffset   = 3
	readyLengthOffset = 4
	readyLengthEnd    = 12
)

// PictureStartCommand encodes the picture mode start command (without CR).
//
// Brightness and contrast are sent as the two digit hex of their absolute value,
// followed by one sign flag each (brightness first): "01" negative, "00" otherwise.
// Callers validate the ranges; values outside [MinLevel, MaxLevel] would not fit.
func PictureStartCommand(trigger Trigger, contrast, brightness int) string {
	var b strings.Builder
	b.WriteString(cmdPictureStartPrefix)
	b.WriteString(string(trigger))
	b.WriteString("0")
	fmt.Fprintf(&b, "%02x", abs(brightness))
	fmt.Fprintf(&b, "%02x", abs(contrast))
	b.WriteString(sign(brightness))
	b.WriteString(sign(contrast))
	return b.String()
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) string {
	if v < 0 {
		return signNegative
	}
	return signPositive
}

// Ready is a parsed picture ready notification.
type Ready struct {
	ContentType ContentType
	// Code is the raw content type digit, kept for diagnostics when
	// ContentType is ContentUnknown.
	Code   int
	Length int
}

// ParseReady parses a "$i" line. The content type is the hex digit at offset 3
// and the content length the 8 hex digits at offsets 4 to 12.
func ParseReady(line string) (Ready, error) {
	if !strings.HasPrefix(line, PrefixReady) {
		return Ready{}, fmt.Errorf("not a ready notification: %q", line)
	}
	if len(line) < readyLengthEnd {
		return Ready{}, fmt.Errorf("ready notification too short: %q", line)
	}

	code, err := strconv.ParseUint(line[readyTypeOffset:readyLengthOffset], 16, 8)
	if err != nil {
		return Ready{}, fmt.Errorf("ready notification content type %q: %w", line, err)
	}
	length, err := strconv.ParseUint(line[readyLengthOffset:readyLengthEnd], 16, 32)
	if err != nil {
		return Ready{}, fmt.Errorf("ready notification content length %q: %w", line, err)
	}

	ct := ContentType(code)
	if ct < ContentBMP || ct > ContentTIFF {
		ct = ContentUnknown
	}
	return Ready{ContentType: ct, Code: int(code), Length: int(length)}, nil
}

// Classify identifies the nature of a response line.
func Classify(line string) ResponseType {
	switch {
	case strings.HasPrefix(line, PrefixReady):
		return TypeReady
	case strings.HasPrefix(line, PrefixClosing):
		return TypeClosing
	default:
		return TypeData
	}
}
