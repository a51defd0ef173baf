package urlpolicy

// AssetType classifies a referenced URL by the kind of static resource it
// names. It is derived from either the CSS/HTML context that introduced the
// reference or the URL's file extension.
type AssetType string

const (
	AssetImage AssetType = "image"
	AssetCSS   AssetType = "css"
	AssetJS    AssetType = "js"
	AssetFont  AssetType = "font"
	AssetMedia AssetType = "media"
	AssetOther AssetType = "other"
)

// subdir returns the run-tree subdirectory an asset of this type is stored
// under.
func (a AssetType) subdir() string {
	switch a {
	case AssetImage:
		return "images"
	case AssetCSS:
		return "css"
	case AssetJS:
		return "js"
	case AssetFont:
		return "fonts"
	case AssetMedia:
		return "media"
	default:
		return "assets"
	}
}

// defaultExt is used when the URL path carries no usable extension.
func (a AssetType) defaultExt() string {
	switch a {
	case AssetImage:
		return ".jpg"
	case AssetCSS:
		return ".css"
	case AssetJS:
		return ".js"
	default:
		return ".bin"
	}
}

var extensionToAssetType = map[string]AssetType{
	"jpg": AssetImage, "jpeg": AssetImage, "png": AssetImage, "gif": AssetImage,
	"webp": AssetImage, "svg": AssetImage, "ico": AssetImage, "bmp": AssetImage, "avif": AssetImage,
	"css": AssetCSS,
	"js":  AssetJS, "mjs": AssetJS,
	"woff": AssetFont, "woff2": AssetFont, "ttf": AssetFont, "eot": AssetFont, "otf": AssetFont,
	"mp4": AssetMedia, "webm": AssetMedia, "ogg": AssetMedia, "mp3": AssetMedia, "wav": AssetMedia,
}

// downloadBlacklist holds single-segment file extensions that are never
// in-scope for page admission, regardless of host or path. The compound
// "tar.gz" extension is matched separately in InScope, since pathExtension
// only ever returns the final dot-segment ("gz").
var downloadBlacklist = map[string]struct{}{
	"pdf": {}, "zip": {}, "exe": {}, "dmg": {}, "msi": {},
	"rar": {}, "doc": {}, "docx": {}, "xls": {}, "xlsx": {},
}

var excludedPathSegments = []string{
	"/login", "/signin", "/signup", "/register", "/logout",
}

var excludedQueryKeys = []string{
	"download", "login", "logout", "signin", "signup",
}

var excludedSchemes = map[string]struct{}{
	"mailto":     {},
	"tel":        {},
	"javascript": {},
}
