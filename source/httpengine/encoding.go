package httpengine

import "strings"

// BinaryEncoding is the sentinel recorded when a response body isn't
// textual. Mirrors cache.BinaryEncoding;
// duplicated here so source/httpengine doesn't need to import cache
// just for a string constant.
const BinaryEncoding = "binary"

// EncodingForContentType applies the encoding policy: JSON
// and text/* content types (optionally carrying a charset parameter)
// are recorded with their charset (default "utf-8"); everything else is
// recorded as BinaryEncoding. The cache layer never decodes the
// payload; this is provenance only.
func EncodingForContentType(contentType string) string {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	mediaType, params := splitContentType(ct)
	if mediaType == "application/json" || strings.HasPrefix(mediaType, "text/") {
		if charset, ok := params["charset"]; ok && charset != "" {
			return charset
		}
		return "utf-8"
	}
	return BinaryEncoding
}

func splitContentType(ct string) (string, map[string]string) {
	parts := strings.Split(ct, ";")
	mediaType := strings.TrimSpace(parts[0])
	params := map[string]string{}
	for _, p := range parts[1:] {
		kv := strings.SplitN(strings.TrimSpace(p), "=", 2)
		if len(kv) == 2 {
			params[strings.TrimSpace(kv[0])] = strings.Trim(strings.TrimSpace(kv[1]), `"`)
		}
	}
	return mediaType, params
}
