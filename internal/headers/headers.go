// Package headers implements the Header Processor (SPEC_FULL.md §4.3):
// BuildFinalHeaders composes outgoing request headers from base,
// provider-mapped, forward-listed, and proxy-passthrough sources, then
// applies method/content-type post-rules; ShouldProcessRequestBody decides
// the request body shape.
package headers

import (
	"os"
	"strings"
)

// customHeadersToIgnore is read once at process start from
// CUSTOM_HEADERS_TO_IGNORE (comma-separated), matching internal/logging.Setup's
// os.Getenv(...) idiom for env-driven config.
var customHeadersToIgnore = parseIgnoreList(os.Getenv("CUSTOM_HEADERS_TO_IGNORE"))

func parseIgnoreList(raw string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, h := range strings.Split(raw, ",") {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			out[h] = struct{}{}
		}
	}
	return out
}

// alwaysIgnoredProxyHeaders are dropped in proxy passthrough regardless of
// CUSTOM_HEADERS_TO_IGNORE (SPEC_FULL.md §4.3 step 4).
var alwaysIgnoredProxyHeaders = map[string]struct{}{
	"expect":         {},
	"content-length": {},
}

const portkeyHeaderPrefix = "x-portkey-"

// BuildFinalHeaders composes the outgoing request headers for one leaf
// call, merging in the order Base ◁ Provider ◁ Forward ◁ Proxy (later
// overwrites earlier), then applies post-processing.
//
// clientHeaders are the original request headers received from the caller
// (case preserved as given; lookups are case-insensitive).
func BuildFinalHeaders(providerMappedHeaders map[string]string, forwardList []string, clientHeaders map[string]string, endpoint, method, clientContentType string) map[string]string {
	final := map[string]string{}

	// 1. Base.
	final["content-type"] = "application/json"
	if v, ok := lookupCI(clientHeaders, "accept-encoding"); ok {
		final["accept-encoding"] = v
	}

	// 2. Provider.
	for k, v := range providerMappedHeaders {
		final[strings.ToLower(k)] = v
	}

	// 3. Forward list.
	for _, name := range forwardList {
		if v, ok := lookupCI(clientHeaders, name); ok {
			final[strings.ToLower(name)] = v
		}
	}

	// 4. Proxy passthrough.
	if endpoint == "proxy" {
		for k, v := range clientHeaders {
			lk := strings.ToLower(k)
			if _, ignored := alwaysIgnoredProxyHeaders[lk]; ignored {
				continue
			}
			if _, ignored := customHeadersToIgnore[lk]; ignored {
				continue
			}
			if strings.HasPrefix(lk, portkeyHeaderPrefix) {
				continue
			}
			final[lk] = v
		}
	}

	return PostProcess(final, endpoint, method, clientContentType)
}

// PostProcess applies the method/content-type post-rules. It is idempotent:
// PostProcess(PostProcess(h, ...), ...) == PostProcess(h, ...) (SPEC_FULL.md
// §8 invariant 5).
func PostProcess(h map[string]string, endpoint, method, clientContentType string) map[string]string {
	out := make(map[string]string, len(h)+1)
	for k, v := range h {
		out[k] = v
	}

	ct, hasCT := lookupCI(out, "content-type")
	if strings.EqualFold(method, "GET") || (hasCT && strings.HasPrefix(strings.ToLower(ct), "multipart/form-data")) {
		deleteCI(out, "content-type")
	}

	if endpoint == "uploadFile" {
		if clientContentType != "" {
			deleteCI(out, "content-type")
			out["Content-Type"] = clientContentType
		}
		// Note: the caller is responsible for copying x-portkey-file-purpose
		// from the client headers before calling BuildFinalHeaders, since
		// that header is outside the provider/forward/proxy sources above;
		// SetFilePurposeHeader does this.
	}

	return out
}

// SetFilePurposeHeader copies x-portkey-file-purpose from clientHeaders onto
// h when the uploadFile endpoint post-rule applies (SPEC_FULL.md §4.3 step 6).
func SetFilePurposeHeader(h map[string]string, clientHeaders map[string]string, endpoint string) {
	if endpoint != "uploadFile" {
		return
	}
	if v, ok := lookupCI(clientHeaders, "x-portkey-file-purpose"); ok {
		h["x-portkey-file-purpose"] = v
	}
}

// ShouldProcessRequestBody decides the request body shape per
// SPEC_FULL.md §4.3: isMultiPart, isProxyAudio, shouldProcessAsJson.
func ShouldProcessRequestBody(providerContentType, clientContentType, endpoint string) (isMultiPart, isProxyAudio, shouldProcessAsJSON bool) {
	providerCT := strings.ToLower(providerContentType)
	clientCT := strings.ToLower(clientContentType)

	isMultiPart = providerCT == "multipart/form-data" || (endpoint == "proxy" && clientCT == "multipart/form-data")
	isProxyAudio = endpoint == "proxy" && strings.HasPrefix(clientCT, "audio/")
	shouldProcessAsJSON = !isMultiPart && !isProxyAudio && clientContentType != ""
	return
}

func lookupCI(h map[string]string, name string) (string, bool) {
	if v, ok := h[name]; ok {
		return v, true
	}
	lname := strings.ToLower(name)
	for k, v := range h {
		if strings.ToLower(k) == lname {
			return v, true
		}
	}
	return "", false
}

func deleteCI(h map[string]string, name string) {
	lname := strings.ToLower(name)
	for k := range h {
		if strings.ToLower(k) == lname {
			delete(h, k)
		}
	}
}
