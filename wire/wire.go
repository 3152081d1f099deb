package wire

const (
	// Terminal Control
	CR = "\r"

	// Commands
	CmdIdentify        = "$+$!"
	CmdConfigModeStart = "$S"
	CmdConfigModeEnd   = "$s"
	CmdPictureFetch    = "x030000000000"
	CmdPictureEnd      = "x040000000000"

	// picture mode start is "x0" + trigger + "0" + brightness + contrast + sign flags
	cmdPictureStartPrefix = "x0"

	// Response prefixes
	PrefixReady   = "$i"
	PrefixClosing = "$b"
)

// Trigger selects how the device starts an image capture.
type Trigger string

const (
	TriggerAuto     Trigger = "00"
	TriggerButton   Trigger = "11"
	TriggerCodeRead Trigger = "21"
)

// ParseTrigger maps a human readable trigger name to its wire code.
func ParseTrigger(name string) (Trigger, bool) {
	switch name {
	case "auto":
		return TriggerAuto, true
	case "trigger", "":
		return TriggerButton, true
	case "code-read", "coderead":
		return TriggerCodeRead, true
	}
	return "", false
}

func (t Trigger) String() string {
	switch t {
	case TriggerAuto:
		return "auto"
	case TriggerButton:
		return "trigger"
	case TriggerCodeRead:
		return "code-read"
	default:
		return "trigger(" + string(t) + ")"
	}
}

// ContentType is the image encoding announced by a ready notification.
type ContentType int

const (
	ContentBMP ContentType = iota
	ContentJPEG
	ContentJPEG2000
	ContentTIFF
	ContentUnknown ContentType = -1
)

func (c ContentType) String() string {
	switch c {
	case ContentBMP:
		return "BMP"
	case ContentJPEG:
		return "JPEG"
	case ContentJPEG2000:
		return "JPEG2K"
	case ContentTIFF:
		return "TIFF"
	default:
		return "unknown"
	}
}

// MIMEType returns the media type used when serving an image of this type.
func (c ContentType) MIMEType() string {
	switch c {
	case ContentBMP:
		return "image/bmp"
	case ContentJPEG:
		return "image/jpeg"
	case ContentJPEG2000:
		return "image/jp2"
	case ContentTIFF:
		return "image/tiff"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the file extension (without dot) for this type.
func (c ContentType) Extension() string {
	switch c {
	case ContentBMP:
		return "bmp"
	case ContentJPEG:
		return "jpg"
	case ContentJPEG2000:
		return "jp2"
	case ContentTIFF:
		return "tif"
	default:
		return "bin"
	}
}

type ResponseType int

const (
	TypeData    ResponseType = iota // Scanned codes, identification, anything else
	TypeReady                       // Picture ready notification ($i...)
	TypeClosing                     // Picture mode closing acknowledgment ($b...)
)
