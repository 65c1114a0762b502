package http1

import (
	"bufio"
	"sort"
	"strconv"
)

// StartResponse writes the status line and header block. When chunked is
// set it emits Transfer-Encoding: chunked and drops any Content-Length.
// The Connection header is always derived from keepAlive. Header keys are
// written sorted so responses are byte-for-byte reproducible.
func StartResponse(bw *bufio.Writer, status int, hdr map[string][]string, chunked, keepAlive bool) error {
	bw.WriteString("HTTP/1.1 ")
	bw.WriteString(strconv.Itoa(status))
	bw.WriteByte(' ')
	bw.WriteString(StatusText(status))
	bw.WriteString("\r\n")

	keys := make([]string, 0, len(hdr))
	for k := range hdr {
		switch k {
		case "Connection", "Transfer-Encoding":
			continue
		case "Content-Length":
			if chunked {
				continue
			}
		}
		if SanitizeHeaderKey(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range hdr[k] {
			bw.WriteString(k)
			bw.WriteString(": ")
			bw.WriteString(SanitizeHeaderValue(v))
			bw.WriteString("\r\n")
		}
	}
	if chunked {
		bw.WriteString("Transfer-Encoding: chunked\r\n")
	}
	if keepAlive {
		bw.WriteString("Connection: keep-alive\r\n")
	} else {
		bw.WriteString("Connection: close\r\n")
	}
	_, err := bw.WriteString("\r\n")
	return err
}

// WriteResponse writes a complete response with a fixed body.
func WriteResponse(bw *bufio.Writer, status int, hdr map[string][]string, body []byte, keepAlive bool) error {
	if hdr == nil {
		hdr = map[string][]string{}
	}
	hdr["Content-Length"] = []string{strconv.Itoa(len(body))}
	if err := StartResponse(bw, status, hdr, false, keepAlive); err != nil {
		return err
	}
	_, err := bw.Write(body)
	return err
}

var statusText = map[int]string{
	100: "Continue",
	200: "OK",
	201: "Created",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	413: "Content Too Large",
	414: "URI Too Long",
	431: "Request Header Fields Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
	503: "Service Unavailable",
	505: "HTTP Version Not Supported",
}

// StatusText returns the reason phrase for code, or "Status" when unknown.
func StatusText(code int) string {
	if s, ok := statusText[code]; ok {
		return s
	}
	return "Status"
}
